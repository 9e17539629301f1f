package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os/exec"
	"strings"
)

const DefaultBinary = "yt-dlp"

var ErrNotInstalled = errors.New("yt-dlp is not installed or not on PATH")

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

// Metadata is the subset of yt-dlp's info JSON the clip backend cares about.
type Metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
}

// DurationSeconds rounds up so a trim range never falls short of the source.
func (m Metadata) DurationSeconds() int {
	if m.Duration <= 0 {
		return 0
	}
	return int(math.Ceil(m.Duration))
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(DefaultBinary); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

type Prober struct {
	Binary string
}

func NewProber() *Prober {
	return &Prober{Binary: DefaultBinary}
}

func (p *Prober) binary() string {
	if p == nil || strings.TrimSpace(p.Binary) == "" {
		return DefaultBinary
	}
	return p.Binary
}

func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

// Probe reads single-video metadata without downloading anything.
func (p *Prober) Probe(ctx context.Context, videoURL string) (Metadata, error) {
	if strings.TrimSpace(videoURL) == "" {
		return Metadata{}, fmt.Errorf("video URL is required")
	}
	bin := p.binary()
	if _, err := exec.LookPath(bin); err != nil {
		return Metadata{}, ErrNotInstalled
	}

	args := []string{"--dump-single-json", "--no-playlist", "--skip-download", "--no-warnings", videoURL}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return Metadata{}, fmt.Errorf("yt-dlp returned empty output")
	}
	return ParseMetadata(stdout.Bytes())
}

func ParseMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	m.Title = strings.TrimSpace(m.Title)
	return m, nil
}

// VideoID extracts the video id from the YouTube URL shapes users paste.
// It returns false for anything that is not a YouTube video link.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				break
			}
		}
	default:
		return "", false
	}
	if !validVideoID(id) {
		return "", false
	}
	return id, true
}

func validVideoID(id string) bool {
	if len(id) < 6 || len(id) > 20 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
