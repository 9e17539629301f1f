package cli

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yt-clip-studio/internal/api"
	"yt-clip-studio/internal/config"
	"yt-clip-studio/internal/download"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/runstore"
	"yt-clip-studio/internal/sim"
)

// startSim serves a clip-sim backend whose runner advances jobs every 20ms.
func startSim(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	db, err := sim.OpenDB(filepath.Join(dir, "sim.db"), logging.Discard())
	if err != nil {
		t.Fatalf("open sim db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := sim.NewRepository(db.Conn())
	renderer := sim.NewRenderer(filepath.Join(dir, "media"), true)
	svc := sim.NewService(repo, sim.ServiceOptions{Renderer: renderer, Logger: logging.Discard()})
	runner := sim.NewRunner(svc, repo, 20*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Start(ctx)

	srv := httptest.NewServer(sim.NewRouter(sim.ServerConfig{
		Service:   svc,
		Runner:    runner,
		MediaDir:  renderer.Dir(),
		Logger:    logging.Discard(),
		StartTime: time.Now(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupClientEnv(t *testing.T, apiBase string) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv(config.EnvDataDir, dataDir)
	t.Setenv(config.EnvAPIBase, apiBase)
	t.Setenv(config.EnvMediaBase, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvLogLevel, "debug")
	t.Setenv(config.EnvPollInterval, "100")
	t.Setenv(config.EnvHTTPTimeout, "5s")
	t.Setenv(config.EnvDownloadWorkers, "2")
	return dataDir
}

func TestHarnessSubmitWatchEditDownload(t *testing.T) {
	srv := startSim(t)
	dataDir := setupClientEnv(t, srv.URL)

	if err := Run([]string{"submit", "--url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "--clip-length", "20", "--language", "en", "--watch"}); err != nil {
		t.Fatalf("submit --watch failed: %v", err)
	}

	cache, err := runstore.LoadJobs(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.Jobs) != 1 {
		t.Fatalf("expected one cached job, got %d", len(cache.Jobs))
	}
	job := cache.Jobs[0]
	if job.Status != model.StatusCompleted || job.ClipCount != 4 {
		t.Fatalf("expected completed job with 4 clips in cache, got status=%s clips=%d", job.Status, job.ClipCount)
	}
	if job.Language != model.LanguageEN || job.ClipLength != 20 {
		t.Fatalf("submit options not applied: %+v", job)
	}

	if err := Run([]string{"clips", "--job", job.ID}); err != nil {
		t.Fatalf("clips failed: %v", err)
	}
	if err := Run([]string{"status", "--job", job.ID, "--json"}); err != nil {
		t.Fatalf("status failed: %v", err)
	}

	client := api.NewClient(api.Options{BaseURL: srv.URL})
	clips, err := client.ListClips(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	target := clips[1]
	if err := Run([]string{"edit", "--job", job.ID, "--clip", target.ID, "--title", "Best bit", "--nudge-end", "-2"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	clips, err = client.ListClips(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	edited, ok := model.FindClip(clips, target.ID)
	if !ok {
		t.Fatal("edited clip missing")
	}
	if edited.Title != "Best bit" || edited.EndTime != target.EndTime-2 || edited.StartTime != target.StartTime {
		t.Fatalf("unexpected edited clip: %+v (was %+v)", edited, target)
	}
	if edited.Duration != edited.EndTime-edited.StartTime {
		t.Fatalf("duration not rederived: %+v", edited)
	}

	outDir := t.TempDir()
	if err := Run([]string{"download", "--job", job.ID, "--out", outDir}); err != nil {
		t.Fatalf("download archive failed: %v", err)
	}
	entries, err := download.ArchiveEntries(filepath.Join(outDir, job.ID+".zip"))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["clips.json"] || !names["timeline/waveform.png"] {
		t.Fatalf("archive missing expected entries: %v", entries)
	}

	clipsDir := t.TempDir()
	if err := Run([]string{"download", "--job", job.ID, "--clips", "--out", clipsDir}); err != nil {
		t.Fatalf("download --clips failed: %v", err)
	}
	files, err := os.ReadDir(clipsDir)
	if err != nil {
		t.Fatal(err)
	}
	mp4 := 0
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".mp4") {
			mp4++
		}
	}
	if mp4 != 4 {
		t.Fatalf("expected 4 clip files, got %d", mp4)
	}
	if _, err := os.Stat(filepath.Join(clipsDir, "best-bit.mp4")); err != nil {
		t.Fatalf("expected edited title in filename: %v", err)
	}

	if err := Run([]string{"jobs", "--cached", "--json"}); err != nil {
		t.Fatalf("jobs --cached failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, config.LogFilename)); err != nil {
		t.Fatalf("expected client log file: %v", err)
	}
}

func TestHarnessFailedJobReportsMessageAndRetries(t *testing.T) {
	srv := startSim(t)
	dataDir := setupClientEnv(t, srv.URL)

	err := Run([]string{"submit", "--url", "https://vimeo.com/12345", "--watch", "--json"})
	if err == nil {
		t.Fatal("expected watch to fail for a non-YouTube link")
	}
	if !strings.Contains(err.Error(), sim.InvalidURLMessage) {
		t.Fatalf("expected backend error message, got %v", err)
	}

	cache, err := runstore.LoadJobs(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.Jobs) != 1 || cache.Jobs[0].Status != model.StatusError {
		t.Fatalf("expected one failed job in cache, got %+v", cache.Jobs)
	}
	if err := Run([]string{"retry", "--job", cache.Jobs[0].ID}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestHarnessWatchLockIsExclusive(t *testing.T) {
	srv := startSim(t)
	dataDir := setupClientEnv(t, srv.URL)

	lock, err := runstore.AcquireLock(dataDir, "watch-job-1", "test", runstore.DefaultLockTTL)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	app, err := openApp("test")
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	tracker := app.newTracker(time.Hour, true)
	tracker.Track(context.Background(), model.Job{ID: "job-1", Status: model.StatusCompleted})
	err = app.drainTracker(context.Background(), tracker, true)
	if err == nil || !strings.Contains(err.Error(), "lock is held") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestRunSettingsPersistsFlags(t *testing.T) {
	dataDir := setupClientEnv(t, "http://127.0.0.1:1")
	t.Setenv(config.EnvDownloadWorkers, "")

	if err := Run([]string{"settings", "--api-base", "http://clips.example:9000/", "--workers", "5", "--poll-interval", "2s", "--token", "abcdefghijkl"}); err != nil {
		t.Fatalf("settings failed: %v", err)
	}
	s, err := config.ReadSettings(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if s.APIBase != "http://clips.example:9000" || s.DownloadWorkers != 5 || s.PollIntervalMS != 2000 || s.Token != "abcdefghijkl" {
		t.Fatalf("unexpected saved settings: %+v", s)
	}

	if err := Run([]string{"settings", "--workers", "99"}); err == nil {
		t.Fatal("expected out-of-range workers to fail")
	}
	if err := Run([]string{"settings", "--api-base", "ftp://nope"}); err == nil {
		t.Fatal("expected non-http api base to fail")
	}
}

func TestRunRejectsUnknownCommandAndMissingJob(t *testing.T) {
	if err := Run([]string{"bogus"}); err == nil {
		t.Fatal("expected unknown command error")
	}
	for _, cmd := range []string{"status", "watch", "retry", "clips", "download"} {
		if err := Run([]string{cmd}); err == nil || !strings.Contains(err.Error(), "--job is required") {
			t.Fatalf("%s: expected --job error, got %v", cmd, err)
		}
	}
	if err := Run([]string{"edit", "--job", "x"}); err == nil || !strings.Contains(err.Error(), "--clip is required") {
		t.Fatalf("expected --clip error, got %v", err)
	}
}

func TestDoctorFailsWhenBackendIsDown(t *testing.T) {
	srv := startSim(t)
	setupClientEnv(t, srv.URL)
	if err := Run([]string{"doctor"}); err != nil {
		t.Fatalf("doctor against live backend failed: %v", err)
	}

	setupClientEnv(t, "http://127.0.0.1:1")
	if err := Run([]string{"doctor", "--json"}); err == nil {
		t.Fatal("expected doctor to fail without a backend")
	}
}

func TestHarnessRetryRejectsJobsThatHaveNotFailed(t *testing.T) {
	srv := startSim(t)
	dataDir := setupClientEnv(t, srv.URL)

	if err := Run([]string{"submit", "--url", "https://youtu.be/dQw4w9WgXcQ", "--json"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	cache, err := runstore.LoadJobs(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.Jobs) != 1 {
		t.Fatalf("expected one cached job, got %d", len(cache.Jobs))
	}
	id := cache.Jobs[0].ID

	err = Run([]string{"retry", "--job", id})
	if err == nil || !strings.Contains(err.Error(), "only failed jobs can be retried") {
		t.Fatalf("expected retry of a non-failed job to be rejected, got %v", err)
	}

	client := api.NewClient(api.Options{BaseURL: srv.URL})
	job, err := client.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status == model.StatusError {
		t.Fatalf("rejected retry must not touch the job: %+v", job)
	}
}
