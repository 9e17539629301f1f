package sim

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"yt-clip-studio/internal/model"
)

// Runner is the simulated pipeline: on every tick it advances each
// processing job by one step.
type Runner struct {
	service  *Service
	repo     Repository
	logger   *slog.Logger
	interval time.Duration
	running  atomic.Bool
	paused   atomic.Bool
}

func NewRunner(service *Service, repo Repository, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		service:  service,
		repo:     repo,
		logger:   logger,
		interval: interval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("job runner disabled")
		return
	}
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.Tick(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Tick advances every processing job once and returns how many it touched.
func (r *Runner) Tick(ctx context.Context) int {
	ids, err := r.repo.ListJobIDsByStatus(ctx, model.StatusProcessing)
	if err != nil {
		r.logger.Error("failed to list processing jobs", "error", err)
		return 0
	}
	advanced := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		job, err := r.service.Advance(ctx, id)
		if err != nil {
			r.logger.Error("advance failed", "job_id", id, "error", err)
			continue
		}
		advanced++
		r.logger.Debug("job advanced", "job_id", id, "status", job.Status, "progress", job.Progress)
	}
	return advanced
}
