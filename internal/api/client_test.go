package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"yt-clip-studio/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClient_CreateJob_SendsPayloadAndHeaders(t *testing.T) {
	var received model.CreateJobRequest
	var auth, requestID, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-Id")
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		_ = json.NewEncoder(w).Encode(model.Job{ID: "job-1", Status: model.StatusProcessing, ClipLength: received.ClipLength})
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL + "/", Token: "secret-token", Logger: testLogger()})
	job, err := client.CreateJob(context.Background(), model.CreateJobRequest{
		YouTubeURL: "https://youtu.be/abc",
		ClipLength: 30,
		Language:   "pt",
		Style:      "dinamico",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.ID != "job-1" || job.Status != model.StatusProcessing {
		t.Fatalf("unexpected job: %+v", job)
	}
	if received.YouTubeURL != "https://youtu.be/abc" || received.ClipLength != 30 {
		t.Fatalf("unexpected payload: %+v", received)
	}
	if auth != "Bearer secret-token" {
		t.Fatalf("auth = %q", auth)
	}
	if requestID == "" {
		t.Fatalf("expected X-Request-Id header")
	}
	if contentType != "application/json" {
		t.Fatalf("content type = %q", contentType)
	}
}

func TestClient_GetJob_NotFoundDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"job not found"}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Logger: testLogger()})
	_, err := client.GetJob(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error")
	}
	if apiErr.Message != "job not found" {
		t.Fatalf("message = %q", apiErr.Message)
	}
	if apiErr.IsRetryable() {
		t.Fatalf("404 must not be retryable")
	}
}

func TestClient_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down","code":"UPSTREAM"}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Logger: testLogger()})
	_, err := client.ListJobs(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("error text missing message: %v", err)
	}
}

func TestClient_UpdateClip_PatchesPath(t *testing.T) {
	var method, path string
	var patch model.ClipPatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&patch)
		_ = json.NewEncoder(w).Encode(model.Clip{ID: "c1", Title: patch.Title, StartTime: patch.StartTime, EndTime: patch.EndTime, Duration: 1})
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Logger: testLogger()})
	clip, err := client.UpdateClip(context.Background(), "job-1", "c1", model.ClipPatch{Title: "t", StartTime: 10, EndTime: 40})
	if err != nil {
		t.Fatalf("update clip: %v", err)
	}
	if method != http.MethodPatch || path != "/api/jobs/job-1/clips/c1" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if clip.Duration != 30 {
		t.Fatalf("expected derived duration 30, got %d", clip.Duration)
	}
}

func TestClient_ResolveClips(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]model.Clip{{ID: "remote", StartTime: 1, EndTime: 2}})
	}))
	defer server.Close()
	client := NewClient(Options{BaseURL: server.URL, Logger: testLogger()})

	processing := model.Job{ID: "j", Status: model.StatusProcessing, Clips: []model.Clip{{ID: "embedded"}}}
	clips, err := client.ResolveClips(context.Background(), processing)
	if err != nil || len(clips) != 1 || clips[0].ID != "embedded" || calls != 0 {
		t.Fatalf("expected embedded clips without fetch, got %+v calls=%d err=%v", clips, calls, err)
	}

	completed := model.Job{ID: "j", Status: model.StatusCompleted, ClipCount: 1}
	clips, err = client.ResolveClips(context.Background(), completed)
	if err != nil || len(clips) != 1 || clips[0].ID != "remote" || calls != 1 {
		t.Fatalf("expected fetched clips, got %+v calls=%d err=%v", clips, calls, err)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: url, Logger: testLogger()})
	_, err := client.GetJob(context.Background(), "job-1")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if !IsRetryable(err) {
		t.Fatalf("transport errors should be retryable")
	}
}

func TestJobDownloadURL(t *testing.T) {
	got := JobDownloadURL("http://127.0.0.1:8000/", "job 1")
	if got != "http://127.0.0.1:8000/api/jobs/job%201/download" {
		t.Fatalf("unexpected url: %q", got)
	}
}

func TestClient_OpenStreamsPastRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for i := 0; i < 4; i++ {
			time.Sleep(40 * time.Millisecond)
			_, _ = w.Write([]byte("chunk"))
			w.(http.Flusher).Flush()
		}
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Timeout: 60 * time.Millisecond, Logger: testLogger()})
	resp, err := client.Open(context.Background(), server.URL+"/api/jobs/job-1/download")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("expected slow body to stream past the request timeout: %v", err)
	}
	if string(body) != strings.Repeat("chunk", 4) {
		t.Fatalf("unexpected body %q", body)
	}

	// Regular API calls still carry the full request timeout.
	if _, err := client.ListJobs(context.Background()); err == nil {
		t.Fatalf("expected list to time out on a slow response")
	}
}

func TestClient_OpenHonoursContextAndHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond, Logger: testLogger()})
	if _, err := client.Open(context.Background(), server.URL+"/media/a.mp4"); err == nil {
		t.Fatalf("expected response header timeout")
	}

	slow := NewClient(Options{BaseURL: server.URL, Timeout: time.Minute, Logger: testLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := slow.Open(ctx, server.URL+"/media/a.mp4"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}
