package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/ytdlp"
)

const (
	DefaultTitle      = "YouTube import"
	DefaultCaption    = "Auto-generated caption for social media."
	InvalidURLMessage = "Could not find a YouTube video at this link."
	generatedClips    = 4
	probeTimeout      = 20 * time.Second

	// Fixed width keeps created_at sortable as text.
	createdAtLayout = "2006-01-02T15:04:05.000000Z07:00"
)

type Prober interface {
	Probe(ctx context.Context, videoURL string) (ytdlp.Metadata, error)
}

type ServiceOptions struct {
	Renderer *Renderer
	// Prober fills title and source duration on create. Nil skips probing.
	Prober Prober
	Rand   *rand.Rand
	Logger *slog.Logger
	Now    func() time.Time
}

// Service owns the simulated pipeline. Mutations are serialized so the
// runner and HTTP handlers never interleave a read-modify-write.
type Service struct {
	repo     Repository
	renderer *Renderer
	prober   Prober
	rng      *rand.Rand
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewService(repo Repository, opts ServiceOptions) *Service {
	s := &Service{
		repo:     repo,
		renderer: opts.Renderer,
		prober:   opts.Prober,
		rng:      opts.Rand,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Create(ctx context.Context, req model.CreateJobRequest) (model.Job, error) {
	norm, err := req.Normalize()
	if err != nil {
		return model.Job{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	job := model.Job{
		ID:         uuid.NewString(),
		YouTubeURL: norm.YouTubeURL,
		Title:      DefaultTitle,
		Status:     model.StatusProcessing,
		Progress:   0,
		Clips:      []model.Clip{},
		ClipLength: norm.ClipLength,
		Language:   norm.Language,
		Style:      norm.Style,
		CreatedAt:  s.now().UTC().Format(createdAtLayout),
	}
	s.probe(ctx, &job)

	if s.renderer != nil {
		waveform, sprite, err := s.renderer.JobAssets(job.ID)
		if err != nil {
			s.logger.Warn("render job assets failed", "job_id", job.ID, "error", err)
		} else {
			job.WaveformURL = waveform
			job.SpriteURL = sprite
		}
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info("job created", "job_id", job.ID, "clip_length", job.ClipLength, "style", job.Style)
	return job, nil
}

func (s *Service) probe(ctx context.Context, job *model.Job) {
	if s.prober == nil {
		return
	}
	if _, ok := ytdlp.VideoID(job.YouTubeURL); !ok {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	meta, err := s.prober.Probe(pctx, job.YouTubeURL)
	if err != nil {
		s.logger.Warn("probe failed", "job_id", job.ID, "error", err)
		return
	}
	if meta.Title != "" {
		job.Title = meta.Title
	}
	job.SourceDuration = meta.DurationSeconds()
}

func (s *Service) Get(ctx context.Context, id string) (model.Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Job, error) {
	return s.repo.ListJobs(ctx, listLimit)
}

func (s *Service) Clips(ctx context.Context, jobID string) ([]model.Clip, error) {
	if _, err := s.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListClips(ctx, jobID)
}

// Advance moves a job one simulated step. Error jobs restart from zero,
// completed jobs are returned unchanged.
func (s *Service) Advance(ctx context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return model.Job{}, err
	}

	switch job.Status {
	case model.StatusCompleted:
		return job, nil
	case model.StatusError:
		if err := model.TransitionJobStatus(&job, model.StatusProcessing, ""); err != nil {
			return model.Job{}, err
		}
		job.Progress = 0
		s.logger.Info("job restarted", "job_id", job.ID)
		return s.save(ctx, job)
	}

	if _, ok := ytdlp.VideoID(job.YouTubeURL); !ok {
		if err := model.TransitionJobStatus(&job, model.StatusError, InvalidURLMessage); err != nil {
			return model.Job{}, err
		}
		s.logger.Info("job failed", "job_id", job.ID, "reason", "not a youtube url")
		return s.save(ctx, job)
	}

	job.Progress = min(100, job.Progress+18+s.rng.IntN(19))
	if job.Progress < 100 {
		if err := model.TransitionJobStatus(&job, model.StatusProcessing, ""); err != nil {
			return model.Job{}, err
		}
		return s.save(ctx, job)
	}

	if len(job.Clips) == 0 {
		clips, err := s.generateClips(job)
		if err != nil {
			return model.Job{}, err
		}
		if err := s.repo.ReplaceClips(ctx, job.ID, clips); err != nil {
			return model.Job{}, fmt.Errorf("store clips: %w", err)
		}
	}
	if err := model.TransitionJobStatus(&job, model.StatusCompleted, ""); err != nil {
		return model.Job{}, err
	}
	s.logger.Info("job completed", "job_id", job.ID)
	return s.save(ctx, job)
}

func (s *Service) save(ctx context.Context, job model.Job) (model.Job, error) {
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("update job: %w", err)
	}
	return s.repo.GetJob(ctx, job.ID)
}

func (s *Service) generateClips(job model.Job) ([]model.Clip, error) {
	length := job.ClipLength
	base := 10 + s.rng.IntN(111)
	span := (2*(generatedClips-1) + 1) * length
	if job.SourceDuration > 0 && base+span > job.SourceDuration {
		base = max(0, job.SourceDuration-span)
	}

	clips := make([]model.Clip, 0, generatedClips)
	for i := 0; i < generatedClips; i++ {
		start := base + i*length*2
		c := model.Clip{
			ID:         uuid.NewString(),
			Title:      fmt.Sprintf("Viral cut #%d", i+1),
			Caption:    DefaultCaption,
			StartTime:  start,
			EndTime:    start + length,
			Duration:   length,
			ViralScore: 78 + s.rng.IntN(21),
		}
		if s.renderer != nil {
			thumb, video, err := s.renderer.ClipAssets(job.ID, c.ID, length)
			if err != nil {
				return nil, fmt.Errorf("render clip %d: %w", i+1, err)
			}
			c.ThumbnailURL = thumb
			c.VideoURL = video
		}
		clips = append(clips, c)
	}
	return clips, nil
}

// ClipUpdate is a partial clip edit; nil fields keep the stored value.
type ClipUpdate struct {
	Title     *string `json:"title" validate:"omitempty,max=200"`
	Caption   *string `json:"caption" validate:"omitempty,max=2200"`
	StartTime *int    `json:"start_time" validate:"omitempty,min=0"`
	EndTime   *int    `json:"end_time" validate:"omitempty,min=1"`
}

func (s *Service) UpdateClip(ctx context.Context, jobID, clipID string, upd ClipUpdate) (model.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clips, err := s.Clips(ctx, jobID)
	if err != nil {
		return model.Clip{}, err
	}
	clip, ok := model.FindClip(clips, clipID)
	if !ok {
		return model.Clip{}, fmt.Errorf("clip %s: %w", clipID, ErrNotFound)
	}

	patch := model.ClipPatch{Title: clip.Title, Caption: clip.Caption, StartTime: clip.StartTime, EndTime: clip.EndTime}
	if upd.Title != nil {
		patch.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Caption != nil {
		patch.Caption = *upd.Caption
	}
	if upd.StartTime != nil {
		patch.StartTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		patch.EndTime = *upd.EndTime
	}
	if err := model.ValidateRange(patch.StartTime, patch.EndTime); err != nil {
		return model.Clip{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	updated := clip.Apply(patch)
	if err := s.repo.UpdateClip(ctx, jobID, updated); err != nil {
		return model.Clip{}, fmt.Errorf("update clip: %w", err)
	}
	s.logger.Info("clip updated", "job_id", jobID, "clip_id", clipID, "start", updated.StartTime, "end", updated.EndTime)
	return updated, nil
}

// IsNotFound reports whether err means the job or clip does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
