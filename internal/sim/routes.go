package sim

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"yt-clip-studio/internal/model"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type ServerConfig struct {
	Service   *Service
	Runner    *Runner
	MediaDir  string
	Logger    *slog.Logger
	StartTime time.Time
}

// CreateJobPayload is the POST /api/jobs body.
type CreateJobPayload struct {
	YouTubeURL string `json:"youtube_url" validate:"required,max=2048"`
	ClipLength int    `json:"clip_length" validate:"omitempty,min=15,max=120"`
	Language   string `json:"language" validate:"omitempty,oneof=pt es en"`
	Style      string `json:"style" validate:"omitempty,oneof=dinamico calmo podcast"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
	Paused  bool   `json:"runner_paused"`
}

type RunnerResponse struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"message": "clip-sim"})
		})
		r.Post("/jobs", createJobHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/clips", listClipsHandler(cfg))
		r.Post("/jobs/{id}/advance", advanceJobHandler(cfg))
		r.Patch("/jobs/{id}/clips/{clipId}", updateClipHandler(cfg))
		r.Get("/jobs/{id}/download", downloadJobHandler(cfg))

		r.Get("/runner", runnerStatusHandler(cfg))
		r.Post("/runner/pause", runnerToggleHandler(cfg, true))
		r.Post("/runner/resume", runnerToggleHandler(cfg, false))
	})

	if cfg.MediaDir != "" {
		files := http.StripPrefix(strings.TrimSuffix(MediaPrefix, "/"), http.FileServer(http.Dir(cfg.MediaDir)))
		r.Handle(MediaPrefix+"*", files)
	}
	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Paused:  cfg.Runner != nil && cfg.Runner.IsPaused(),
		})
	}
}

func createJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload CreateJobPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		job, err := cfg.Service.Create(r.Context(), model.CreateJobRequest{
			YouTubeURL: payload.YouTubeURL,
			ClipLength: payload.ClipLength,
			Language:   payload.Language,
			Style:      payload.Style,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Service.List(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, jobs)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Service.Clips(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clips)
	}
}

func advanceJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.Advance(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd ClipUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		clip, err := cfg.Service.UpdateClip(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "clipId"), upd)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func downloadJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		// Build in memory so a failure can still become a JSON error.
		var buf bytes.Buffer
		if err := cfg.Service.writeJobArchive(&buf, job); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "clips-"+job.ID+".zip"))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func runnerStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusNotFound, "runner not configured", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, RunnerResponse{Running: cfg.Runner.IsRunning(), Paused: cfg.Runner.IsPaused()})
	}
}

func runnerToggleHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusNotFound, "runner not configured", "NOT_FOUND")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		WriteJSON(w, http.StatusOK, RunnerResponse{Running: cfg.Runner.IsRunning(), Paused: cfg.Runner.IsPaused()})
	}
}

// decodeBody reads and validates a JSON body, writing the error response
// itself when it returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, validationMessage(err), "VALIDATION_ERROR")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	case errors.Is(err, ErrInvalidInput):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "VALIDATION_ERROR")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
