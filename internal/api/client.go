// Package api is the HTTP client for the clip backend REST contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"yt-clip-studio/internal/model"
)

const (
	BasePath = "/api"

	DefaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
	maxErrorBytes    = 4096
)

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the backend under BaseURL + /api.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient serves Open. Its timeout covers the response headers
	// only; body reads are bounded by the request context.
	streamClient *http.Client
	logger       *slog.Logger
}

func NewClient(opts Options) *Client {
	hc, stream := opts.HTTPClient, opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		stream = &http.Client{Transport: transport}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:        strings.TrimSpace(opts.Token),
		httpClient:   hc,
		streamClient: stream,
		logger:       logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// JobDownloadURL is the bulk archive address for a job.
func JobDownloadURL(baseURL, jobID string) string {
	return strings.TrimRight(baseURL, "/") + BasePath + "/jobs/" + url.PathEscape(jobID) + "/download"
}

func (c *Client) CreateJob(ctx context.Context, req model.CreateJobRequest) (model.Job, error) {
	var job model.Job
	err := c.do(ctx, "create job", http.MethodPost, "/jobs", req, &job)
	return job, err
}

func (c *Client) ListJobs(ctx context.Context) ([]model.Job, error) {
	jobs := []model.Job{}
	err := c.do(ctx, "list jobs", http.MethodGet, "/jobs", nil, &jobs)
	return jobs, err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (model.Job, error) {
	var job model.Job
	err := c.do(ctx, "get job "+jobID, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &job)
	return job, err
}

func (c *Client) ListClips(ctx context.Context, jobID string) ([]model.Clip, error) {
	clips := []model.Clip{}
	err := c.do(ctx, "list clips "+jobID, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/clips", nil, &clips)
	return clips, err
}

// AdvanceJob asks the backend to resume processing; used as the retry action.
func (c *Client) AdvanceJob(ctx context.Context, jobID string) (model.Job, error) {
	var job model.Job
	err := c.do(ctx, "advance job "+jobID, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/advance", nil, &job)
	return job, err
}

func (c *Client) UpdateClip(ctx context.Context, jobID, clipID string, patch model.ClipPatch) (model.Clip, error) {
	var clip model.Clip
	path := "/jobs/" + url.PathEscape(jobID) + "/clips/" + url.PathEscape(clipID)
	err := c.do(ctx, "update clip "+clipID, http.MethodPatch, path, patch, &clip)
	return clip, err
}

// ResolveClips returns the clips to show for job: the listing endpoint once
// the job produced clips, the embedded list otherwise.
func (c *Client) ResolveClips(ctx context.Context, job model.Job) ([]model.Clip, error) {
	if !job.NeedsClipFetch() {
		return append([]model.Clip(nil), job.Clips...), nil
	}
	clips, err := c.ListClips(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 && len(job.Clips) > 0 {
		return append([]model.Clip(nil), job.Clips...), nil
	}
	return clips, nil
}

// Open issues an authenticated GET for an absolute URL and returns the raw
// response for streaming. The caller closes the body.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		_ = resp.Body.Close()
		return nil, newError("download", resp.StatusCode, body)
	}
	return resp, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + BasePath + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	c.decorate(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", BasePath+path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get("X-Request-Id"),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return newError(op, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
