package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"yt-clip-studio/internal/model"
)

const GenericFailureMessage = "Processing failed. Check the YouTube link and retry."

var ErrNoActiveJob = errors.New("no active job")

type Notifier interface {
	JobCompleted(job model.Job)
	JobFailed(job model.Job, message string)
	TransientError(err error)
}

type Advancer interface {
	AdvanceJob(ctx context.Context, jobID string) (model.Job, error)
}

type nopNotifier struct{}

func (nopNotifier) JobCompleted(model.Job)      {}
func (nopNotifier) JobFailed(model.Job, string) {}
func (nopNotifier) TransientError(error)        {}

// FailureMessage is the text shown for a failed job.
func FailureMessage(job model.Job) string {
	if msg := strings.TrimSpace(job.ErrorMessage); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

// Tracker owns the job collection and the active job. It is driven from a
// single goroutine; sessions only hand it events.
type Tracker struct {
	fetcher  JobFetcher
	notifier Notifier
	opts     Options
	jobs     *model.JobCollection

	activeID     string
	session      *Session
	terminalSeen bool
	notified     bool
}

func NewTracker(fetcher JobFetcher, notifier Notifier, jobs *model.JobCollection, opts Options) *Tracker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if jobs == nil {
		jobs = model.NewJobCollection()
	}
	return &Tracker{
		fetcher:  fetcher,
		notifier: notifier,
		opts:     opts.normalized(),
		jobs:     jobs,
	}
}

func (t *Tracker) Jobs() *model.JobCollection {
	return t.jobs
}

func (t *Tracker) Active() (model.Job, bool) {
	if t.activeID == "" {
		return model.Job{}, false
	}
	return t.jobs.Get(t.activeID)
}

// Session returns the current session, or nil when nothing is polling.
func (t *Tracker) Session() *Session {
	return t.session
}

func (t *Tracker) State() State {
	if t.session == nil {
		return StateIdle
	}
	return t.session.State()
}

// Track makes job the active job. Any previous session is cancelled first, so
// none of its results can reach the collection afterwards.
func (t *Tracker) Track(ctx context.Context, job model.Job) *Session {
	t.Stop()
	t.jobs.Upsert(job)
	t.activeID = job.ID
	t.terminalSeen = job.Terminal()
	t.notified = false
	t.session = nil
	if job.Terminal() {
		return nil
	}
	s := NewSession(t.fetcher, job, t.opts)
	s.Start(ctx)
	t.session = s
	return s
}

func (t *Tracker) Stop() {
	if t.session != nil {
		t.session.Cancel()
	}
}

// Apply merges one session event. It returns false when the event was
// discarded as stale.
func (t *Tracker) Apply(ev Event) bool {
	if t.session == nil || ev.SessionID != t.session.ID() || t.session.Cancelled() {
		return false
	}
	switch ev.Kind {
	case EventFetchError:
		t.notifier.TransientError(ev.Err)
		return true
	case EventSnapshot:
		if t.terminalSeen || ev.Job.ID != t.activeID {
			return false
		}
		t.jobs.Upsert(ev.Job)
		if ev.Job.Terminal() {
			t.terminalSeen = true
			t.notifyTerminal(ev.Job)
		}
		return true
	default:
		return false
	}
}

func (t *Tracker) notifyTerminal(job model.Job) {
	if t.notified {
		return
	}
	t.notified = true
	switch job.Status {
	case model.StatusCompleted:
		t.notifier.JobCompleted(job)
	case model.StatusError:
		t.notifier.JobFailed(job, FailureMessage(job))
	}
}

// MergeList folds a job listing into the collection through Upsert, oldest
// first so the newest job ends on top. Jobs missing from the listing are kept.
// The active job is skipped while this tracker owns a fresher view of it:
// a live session or a terminal snapshot.
func (t *Tracker) MergeList(jobs []model.Job) {
	for i := len(jobs) - 1; i >= 0; i-- {
		job := jobs[i]
		if job.ID == t.activeID && t.ownsActive() {
			continue
		}
		t.jobs.Upsert(job)
	}
}

func (t *Tracker) ownsActive() bool {
	if t.terminalSeen {
		return true
	}
	return t.session != nil && !t.session.Cancelled()
}

// Observe records a snapshot of a job that is not being tracked. Snapshots of
// the active job are left to its session.
func (t *Tracker) Observe(job model.Job) bool {
	if job.ID == t.activeID && t.ownsActive() {
		return false
	}
	t.jobs.Upsert(job)
	return true
}

// Retry resubmits the active job through the advance endpoint and tracks the
// returned snapshot. On failure nothing changes.
func (t *Tracker) Retry(ctx context.Context, adv Advancer) (model.Job, error) {
	active, ok := t.Active()
	if !ok {
		return model.Job{}, ErrNoActiveJob
	}
	updated, err := adv.AdvanceJob(ctx, active.ID)
	if err != nil {
		return model.Job{}, fmt.Errorf("retry job %s: %w", active.ID, err)
	}
	t.Track(ctx, updated)
	return updated, nil
}

// Drain applies events of the current session until it stops or ctx ends.
// onEvent, when set, sees every event that was applied.
func (t *Tracker) Drain(ctx context.Context, onEvent func(Event)) error {
	s := t.session
	if s == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			if t.Apply(ev) && onEvent != nil {
				onEvent(ev)
			}
		}
	}
}
