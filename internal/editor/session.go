// Package editor implements the trim editing session over a single clip.
package editor

import (
	"context"
	"errors"
	"fmt"

	"yt-clip-studio/internal/model"
)

var ErrNoClipBound = errors.New("no clip bound to editor session")

type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

func (e Edge) String() string {
	if e == EdgeStart {
		return "start"
	}
	return "end"
}

// ClipUpdater persists a patch and returns the authoritative clip.
type ClipUpdater interface {
	UpdateClip(ctx context.Context, jobID, clipID string, patch model.ClipPatch) (model.Clip, error)
}

// RangePolicy computes the upper range bound when the source duration is unknown.
type RangePolicy func(clip model.Clip) int

// DefaultRangePolicy allows a minute past the clip end, and never less than two minutes.
func DefaultRangePolicy(clip model.Clip) int {
	return max(clip.EndTime+60, 120)
}

type Option func(*Session)

func WithRangePolicy(p RangePolicy) Option {
	return func(s *Session) {
		if p != nil {
			s.policy = p
		}
	}
}

// Session holds unsaved edits for one clip. The bound clip itself is only
// replaced by a value the backend confirmed.
type Session struct {
	updater ClipUpdater
	policy  RangePolicy

	bound          bool
	jobID          string
	clip           model.Clip
	sourceDuration int
	title          string
	caption        string
	start          int
	end            int
	maxRange       int
}

func NewSession(updater ClipUpdater, opts ...Option) *Session {
	s := &Session{updater: updater, policy: DefaultRangePolicy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind resets every field from clip. sourceDuration <= 0 means unknown.
func (s *Session) Bind(jobID string, clip model.Clip, sourceDuration int) {
	s.bound = true
	s.jobID = jobID
	s.clip = clip
	s.sourceDuration = sourceDuration
	s.title = clip.Title
	s.caption = clip.Caption
	s.start = clip.StartTime
	s.end = clip.EndTime
	s.maxRange = s.computeMaxRange(clip)
}

func (s *Session) BindJob(job model.Job, clip model.Clip) {
	s.Bind(job.ID, clip, job.SourceDuration)
}

func (s *Session) Unbind() {
	*s = Session{updater: s.updater, policy: s.policy}
}

func (s *Session) computeMaxRange(clip model.Clip) int {
	var bound int
	if s.sourceDuration > 0 {
		bound = max(s.sourceDuration, clip.EndTime)
	} else {
		bound = s.policy(clip)
	}
	return max(bound, 1)
}

func (s *Session) SetTitle(text string) {
	s.title = text
}

func (s *Session) SetCaption(text string) {
	s.caption = text
}

// Nudge moves one edge by delta seconds and re-applies the range invariants.
func (s *Session) Nudge(delta int, edge Edge) {
	if !s.bound {
		return
	}
	start, end := s.start, s.end
	if edge == EdgeStart {
		start += delta
	} else {
		end += delta
	}
	s.start, s.end = s.clamp(start, end)
}

func (s *Session) SetRange(start, end int) {
	if !s.bound {
		return
	}
	s.start, s.end = s.clamp(start, end)
}

func (s *Session) clamp(start, end int) (int, int) {
	start = min(max(start, 0), s.maxRange-1)
	end = min(end, s.maxRange)
	if end < start+1 {
		end = start + 1
	}
	return start, end
}

func (s *Session) Bound() bool {
	return s.bound
}

func (s *Session) JobID() string {
	return s.jobID
}

func (s *Session) Clip() model.Clip {
	return s.clip
}

func (s *Session) Title() string {
	return s.title
}

func (s *Session) Caption() string {
	return s.caption
}

func (s *Session) Range() (int, int) {
	return s.start, s.end
}

func (s *Session) Duration() int {
	return s.end - s.start
}

func (s *Session) MaxRange() int {
	return s.maxRange
}

func (s *Session) SourceDuration() int {
	return s.sourceDuration
}

// Dirty reports whether any field differs from the bound clip.
func (s *Session) Dirty() bool {
	if !s.bound {
		return false
	}
	return s.title != s.clip.Title ||
		s.caption != s.clip.Caption ||
		s.start != s.clip.StartTime ||
		s.end != s.clip.EndTime
}

func (s *Session) Patch() model.ClipPatch {
	return model.ClipPatch{
		Title:     s.title,
		Caption:   s.caption,
		StartTime: s.start,
		EndTime:   s.end,
	}
}

// Save sends the current edits. On success the session rebinds to the
// returned clip; on failure the local edits stay untouched.
func (s *Session) Save(ctx context.Context) (model.Clip, error) {
	if !s.bound {
		return model.Clip{}, ErrNoClipBound
	}
	if s.updater == nil {
		return model.Clip{}, fmt.Errorf("save clip %s: no updater configured", s.clip.ID)
	}
	patch := s.Patch()
	if err := model.ValidateRange(patch.StartTime, patch.EndTime); err != nil {
		return model.Clip{}, err
	}
	updated, err := s.updater.UpdateClip(ctx, s.jobID, s.clip.ID, patch)
	if err != nil {
		return model.Clip{}, fmt.Errorf("save clip %s: %w", s.clip.ID, err)
	}
	s.Bind(s.jobID, updated, s.sourceDuration)
	return updated, nil
}
