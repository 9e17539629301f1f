// Package poller reconciles a tracked job with the backend until it reaches
// a terminal status.
package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"yt-clip-studio/internal/model"
)

const DefaultInterval = 1400 * time.Millisecond

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type JobFetcher interface {
	GetJob(ctx context.Context, jobID string) (model.Job, error)
}

type EventKind int

const (
	EventSnapshot EventKind = iota + 1
	EventFetchError
)

// Event is one tick outcome. SessionID lets the consumer drop events from
// sessions it no longer tracks.
type Event struct {
	SessionID uint64
	Kind      EventKind
	Job       model.Job
	Err       error
}

type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

func (o Options) normalized() Options {
	out := o
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}

var sessionSeq atomic.Uint64

// Session polls one job. Fetches are strictly sequential: the next tick is
// scheduled only after the previous fetch resolved.
type Session struct {
	id       uint64
	fetcher  JobFetcher
	job      model.Job
	interval time.Duration
	logger   *slog.Logger

	state     atomic.Int32
	cancelled atomic.Bool
	events    chan Event
	done      chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func NewSession(fetcher JobFetcher, job model.Job, opts Options) *Session {
	opts = opts.normalized()
	id := sessionSeq.Add(1)
	return &Session{
		id:       id,
		fetcher:  fetcher,
		job:      job,
		interval: opts.Interval,
		logger:   opts.Logger.With("component", "poller", "job_id", job.ID, "session", id),
		events:   make(chan Event),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) JobID() string {
	return s.job.ID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Cancelled reports whether the session was stopped by its owner rather than
// by reaching a terminal status.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Events is closed when the session stops.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start moves Idle to Polling. A job that is already terminal goes straight to
// Stopped without any fetch. Start is a no-op after the first call.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	if s.job.Terminal() || s.cancelled.Load() {
		s.state.Store(int32(StateStopped))
		close(s.events)
		close(s.done)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state.Store(int32(StatePolling))
	s.logger.Debug("polling started", "interval", s.interval.String())
	go s.loop(ctx)
}

// Cancel stops the session. A fetch already in flight completes but its
// result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateStopped {
		return
	}
	s.cancelled.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	if !s.started {
		s.state.Store(int32(StateStopped))
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.state.Store(int32(StateStopped))
	defer s.cancel()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		job, err := s.fetcher.GetJob(ctx, s.job.ID)
		if ctx.Err() != nil {
			s.logger.Debug("discarding fetch result of cancelled session")
			return
		}
		if err != nil {
			s.logger.Warn("poll failed", "error", err)
			if !s.emit(ctx, Event{SessionID: s.id, Kind: EventFetchError, Err: err}) {
				return
			}
			timer.Reset(s.interval)
			continue
		}

		if !s.emit(ctx, Event{SessionID: s.id, Kind: EventSnapshot, Job: job}) {
			return
		}
		if job.Terminal() {
			s.logger.Info("polling stopped on terminal status", "status", job.Status)
			return
		}
		timer.Reset(s.interval)
	}
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
