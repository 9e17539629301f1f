package sim

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/ytdlp"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	db       *DB
	repo     *SQLiteRepository
	service  *Service
	renderer *Renderer
}

func newFixture(t *testing.T, opts ServiceOptions) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenDB(filepath.Join(dir, "sim.db"), testLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db.Conn())
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer(filepath.Join(dir, "media"), true)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(7, 11))
	}
	opts.Logger = testLogger()
	return fixture{db: db, repo: repo, service: NewService(repo, opts), renderer: opts.Renderer}
}

func advanceUntilTerminal(t *testing.T, s *Service, id string) model.Job {
	t.Helper()
	for i := 0; i < 10; i++ {
		job, err := s.Advance(context.Background(), id)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if job.Terminal() {
			return job
		}
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return model.Job{}
}

func TestOpenDB_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	for i := 0; i < 2; i++ {
		db, err := OpenDB(path, nil)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		var n int
		if err := db.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected one recorded migration, got %d", n)
		}
		db.Close()
	}
}

func TestService_CreateDefaults(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	job, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != model.StatusProcessing || job.Progress != 0 || job.ClipCount != 0 {
		t.Fatalf("unexpected initial job: %+v", job)
	}
	if job.ClipLength != 30 || job.Language != "pt" || job.Style != "dinamico" || job.Title != DefaultTitle {
		t.Fatalf("defaults not applied: %+v", job)
	}
	if job.WaveformURL == "" || job.SpriteURL == "" {
		t.Fatalf("expected timeline assets, got %+v", job)
	}
	p, ok := f.renderer.Path(job.WaveformURL)
	if !ok {
		t.Fatalf("waveform ref outside media dir: %s", job.WaveformURL)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("waveform not rendered: %v", err)
	}

	_, err = f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL, ClipLength: 5})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short clip length, got %v", err)
	}
}

func TestService_AdvanceToCompletion(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	created, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL, ClipLength: 20})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	prev := 0
	var job model.Job
	for i := 0; i < 10; i++ {
		job, err = f.service.Advance(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		step := job.Progress - prev
		if job.Progress < 100 && (step < 18 || step > 36) {
			t.Fatalf("progress step %d outside 18..36", step)
		}
		prev = job.Progress
		if job.Terminal() {
			break
		}
	}
	if job.Status != model.StatusCompleted || job.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s/%d", job.Status, job.Progress)
	}
	if job.ClipCount != 4 || len(job.Clips) != 4 || !job.ClipsConsistent() {
		t.Fatalf("expected four consistent clips, got count=%d len=%d", job.ClipCount, len(job.Clips))
	}

	base := job.Clips[0].StartTime
	if base < 10 || base > 120 {
		t.Fatalf("base start %d outside 10..120", base)
	}
	for i, c := range job.Clips {
		if c.StartTime != base+i*20*2 || c.Duration != 20 || c.EndTime != c.StartTime+20 {
			t.Fatalf("clip %d has unexpected range %+v", i, c)
		}
		if c.ViralScore < 78 || c.ViralScore > 98 {
			t.Fatalf("viral score %d outside 78..98", c.ViralScore)
		}
		if c.ThumbnailURL == "" || c.VideoURL == "" {
			t.Fatalf("clip %d missing media: %+v", i, c)
		}
	}

	again, err := f.service.Advance(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("advance completed: %v", err)
	}
	if again.Status != model.StatusCompleted || again.Clips[0].ID != job.Clips[0].ID {
		t.Fatalf("advancing a completed job must be a no-op")
	}
}

func TestService_NonYouTubeURLFailsThenRetries(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	created, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: "https://vimeo.com/123456"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	failed, err := f.service.Advance(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if failed.Status != model.StatusError || failed.ErrorMessage != InvalidURLMessage {
		t.Fatalf("expected error status with message, got %+v", failed)
	}

	retried, err := f.service.Advance(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != model.StatusProcessing || retried.Progress != 0 || retried.ErrorMessage != "" {
		t.Fatalf("retry should reset to processing/0, got %+v", retried)
	}
}

func TestService_RenderClipsDisabled(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, ServiceOptions{Renderer: NewRenderer(dir, false)})
	created, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	job := advanceUntilTerminal(t, f.service, created.ID)
	for _, c := range job.Clips {
		if c.VideoURL != "" || c.ThumbnailURL == "" {
			t.Fatalf("expected thumbnail only, got %+v", c)
		}
	}
}

type stubProber struct {
	meta  ytdlp.Metadata
	err   error
	calls int
}

func (p *stubProber) Probe(ctx context.Context, videoURL string) (ytdlp.Metadata, error) {
	p.calls++
	return p.meta, p.err
}

func TestService_ProbeFillsMetadataAndFitsClips(t *testing.T) {
	prober := &stubProber{meta: ytdlp.Metadata{Title: "Conference keynote", Duration: 250.4}}
	f := newFixture(t, ServiceOptions{Prober: prober})

	created, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL, ClipLength: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "Conference keynote" || created.SourceDuration != 251 {
		t.Fatalf("probe metadata not applied: %+v", created)
	}
	job := advanceUntilTerminal(t, f.service, created.ID)
	last := job.Clips[len(job.Clips)-1]
	if last.EndTime > 251 {
		t.Fatalf("clips should fit the source: last clip ends at %d", last.EndTime)
	}

	prober.err = errors.New("network down")
	fallback, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	if err != nil {
		t.Fatalf("create with failing probe: %v", err)
	}
	if fallback.Title != DefaultTitle || fallback.SourceDuration != 0 {
		t.Fatalf("probe failure should keep defaults: %+v", fallback)
	}

	before := prober.calls
	if _, err := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: "https://example.com/x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if prober.calls != before {
		t.Fatalf("non-YouTube links must not be probed")
	}
}

func TestService_UpdateClip(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	created, _ := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	job := advanceUntilTerminal(t, f.service, created.ID)
	target := job.Clips[1]

	title := "  Better title "
	start := 5
	end := 50
	updated, err := f.service.UpdateClip(context.Background(), job.ID, target.ID, ClipUpdate{Title: &title, StartTime: &start, EndTime: &end})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Better title" || updated.Duration != 45 || updated.Caption != target.Caption {
		t.Fatalf("unexpected updated clip: %+v", updated)
	}

	clips, err := f.service.Clips(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("clips: %v", err)
	}
	if clips[1].StartTime != 5 || clips[1].EndTime != 50 || clips[1].Duration != 45 {
		t.Fatalf("update not persisted: %+v", clips[1])
	}

	bad := 5
	if _, err := f.service.UpdateClip(context.Background(), job.ID, target.ID, ClipUpdate{EndTime: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for end < start+1, got %v", err)
	}
	if _, err := f.service.UpdateClip(context.Background(), job.ID, "missing", ClipUpdate{}); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown clip, got %v", err)
	}
}

func TestRepository_ListOrderAndLimit(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		job := model.Job{
			ID: "job-" + string(rune('a'+i)), YouTubeURL: testVideoURL, Title: DefaultTitle,
			Status: model.StatusProcessing, ClipLength: 30, Language: "pt", Style: "calmo",
			CreatedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
		}
		if err := f.repo.CreateJob(context.Background(), job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
	jobs, err := f.repo.ListJobs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != "job-c" || jobs[2].ID != "job-a" {
		t.Fatalf("expected newest first, got %v", []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
	}
	if _, err := f.repo.GetJob(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunner_TickAdvancesProcessingJobs(t *testing.T) {
	f := newFixture(t, ServiceOptions{})
	a, _ := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	b, _ := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})

	runner := NewRunner(f.service, f.repo, time.Hour, testLogger())
	if n := runner.Tick(context.Background()); n != 2 {
		t.Fatalf("expected two jobs advanced, got %d", n)
	}
	for _, id := range []string{a.ID, b.ID} {
		job, err := f.service.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.Progress == 0 {
			t.Fatalf("job %s was not advanced", id)
		}
	}

	runner.Pause()
	if !runner.IsPaused() {
		t.Fatalf("expected paused")
	}
	runner.Resume()
	if runner.IsPaused() {
		t.Fatalf("expected resumed")
	}
}

func newTestServer(t *testing.T) (*httptest.Server, fixture) {
	t.Helper()
	f := newFixture(t, ServiceOptions{})
	runner := NewRunner(f.service, f.repo, time.Hour, testLogger())
	srv := httptest.NewServer(NewRouter(ServerConfig{
		Service:   f.service,
		Runner:    runner,
		MediaDir:  f.renderer.Dir(),
		Logger:    testLogger(),
		StartTime: time.Now(),
	}))
	t.Cleanup(srv.Close)
	return srv, f
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestRouter_JobLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	var created model.Job
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/jobs", map[string]any{"youtube_url": testVideoURL, "style": "podcast"}, &created); code != http.StatusOK {
		t.Fatalf("create status = %d", code)
	}
	if created.Style != "podcast" || created.Status != model.StatusProcessing {
		t.Fatalf("unexpected created job: %+v", created)
	}

	var job model.Job
	for i := 0; i < 10 && !job.Terminal(); i++ {
		if code := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+created.ID+"/advance", nil, &job); code != http.StatusOK {
			t.Fatalf("advance status = %d", code)
		}
	}
	if job.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}

	var clips []model.Clip
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+created.ID+"/clips", nil, &clips); code != http.StatusOK || len(clips) != 4 {
		t.Fatalf("clips status=%d len=%d", code, len(clips))
	}

	patch := model.ClipPatch{Title: "Edited", Caption: "c", StartTime: 10, EndTime: 40}
	var edited model.Clip
	if code := doJSON(t, http.MethodPatch, srv.URL+"/api/jobs/"+created.ID+"/clips/"+clips[0].ID, patch, &edited); code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}
	if edited.Duration != 30 || edited.Title != "Edited" {
		t.Fatalf("unexpected edited clip: %+v", edited)
	}

	var list []model.Job
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/jobs", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list status=%d len=%d", code, len(list))
	}

	resp, err := http.Get(srv.URL + clips[1].ThumbnailURL)
	if err != nil {
		t.Fatalf("get thumbnail: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("thumbnail status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestRouter_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	var errResp ErrorResponse
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/missing", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if errResp.Detail != "not found" || errResp.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error body: %+v", errResp)
	}

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/missing/clips", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for clips of unknown job, got %d", code)
	}

	errResp = ErrorResponse{}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/jobs", map[string]any{"youtube_url": testVideoURL, "clip_length": 200}, &errResp); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for clip_length 200, got %d", code)
	}
	if !strings.Contains(errResp.Error, "ClipLength") {
		t.Fatalf("expected field name in validation error, got %q", errResp.Error)
	}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/jobs", map[string]any{"youtube_url": testVideoURL, "language": "de"}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown language, got %d", code)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/jobs", strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", resp.StatusCode)
	}
}

func TestRouter_PatchRejectsInvalidRange(t *testing.T) {
	srv, f := newTestServer(t)
	created, _ := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	job := advanceUntilTerminal(t, f.service, created.ID)

	body := map[string]any{"start_time": 50, "end_time": 50}
	if code := doJSON(t, http.MethodPatch, srv.URL+"/api/jobs/"+job.ID+"/clips/"+job.Clips[0].ID, body, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	body = map[string]any{"start_time": -1}
	if code := doJSON(t, http.MethodPatch, srv.URL+"/api/jobs/"+job.ID+"/clips/"+job.Clips[0].ID, body, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative start, got %d", code)
	}
}

func TestRouter_DownloadArchive(t *testing.T) {
	srv, f := newTestServer(t)
	created, _ := f.service.Create(context.Background(), model.CreateJobRequest{YouTubeURL: testVideoURL})
	job := advanceUntilTerminal(t, f.service, created.ID)

	resp, err := http.Get(srv.URL + "/api/jobs/" + job.ID + "/download")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;") {
		t.Fatalf("missing attachment disposition: %q", resp.Header.Get("Content-Disposition"))
	}
	data, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := map[string]bool{}
	for _, zf := range zr.File {
		names[zf.Name] = true
	}
	for _, want := range []string{"clips.json", "timeline/waveform.png", "timeline/sprite.jpg", "clips/" + job.Clips[0].ID + ".mp4"} {
		if !names[want] {
			t.Fatalf("archive missing %s (has %v)", want, names)
		}
	}
}

func TestRouter_RunnerToggle(t *testing.T) {
	srv, _ := newTestServer(t)
	var state RunnerResponse
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/runner/pause", nil, &state); code != http.StatusOK || !state.Paused {
		t.Fatalf("pause: status=%d state=%+v", code, state)
	}
	var health HealthResponse
	doJSON(t, http.MethodGet, srv.URL+"/health", nil, &health)
	if health.Status != "ok" || !health.Paused {
		t.Fatalf("unexpected health: %+v", health)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/runner/resume", nil, &state); code != http.StatusOK || state.Paused {
		t.Fatalf("resume: status=%d state=%+v", code, state)
	}
}

func TestRenderer_PathStaysInsideDir(t *testing.T) {
	r := NewRenderer("/srv/media", true)
	p, ok := r.Path("/media/../../etc/passwd")
	if !ok || p != filepath.Join("/srv/media", "etc", "passwd") {
		t.Fatalf("unexpected path %q, %v", p, ok)
	}
	if _, ok := r.Path("https://cdn.example/x.jpg"); ok {
		t.Fatalf("absolute URLs are not media refs")
	}
	if !bytes.HasPrefix(placeholderVideo(2)[4:], []byte("ftyp")) {
		t.Fatalf("placeholder should start with an ftyp box")
	}
}
