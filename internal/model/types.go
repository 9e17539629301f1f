package model

import (
	"fmt"
	"strings"
)

const (
	StyleDinamico = "dinamico"
	StyleCalmo    = "calmo"
	StylePodcast  = "podcast"

	LanguagePT = "pt"
	LanguageES = "es"
	LanguageEN = "en"

	DefaultClipLength = 30
	MinClipLength     = 15
	MaxClipLength     = 120
	DefaultLanguage   = LanguagePT
	DefaultStyle      = StyleDinamico
)

var (
	Styles    = []string{StyleDinamico, StyleCalmo, StylePodcast}
	Languages = []string{LanguagePT, LanguageES, LanguageEN}
)

// Job is one processing request as reported by the backend.
type Job struct {
	ID             string `json:"id"`
	YouTubeURL     string `json:"youtube_url"`
	Title          string `json:"title,omitempty"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	ClipCount      int    `json:"clip_count"`
	Clips          []Clip `json:"clips,omitempty"`
	ClipLength     int    `json:"clip_length"`
	Language       string `json:"language"`
	Style          string `json:"style"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	WaveformURL    string `json:"waveform_url,omitempty"`
	SpriteURL      string `json:"sprite_url,omitempty"`
	SourceDuration int    `json:"source_duration,omitempty"`
}

func (j Job) Terminal() bool {
	return IsTerminal(j.Status)
}

// ClipsConsistent reports whether clip_count agrees with the embedded clips.
// Jobs that do not embed clips are consistent by definition.
func (j Job) ClipsConsistent() bool {
	if j.Status != StatusCompleted || len(j.Clips) == 0 {
		return true
	}
	return j.ClipCount == len(j.Clips)
}

// NeedsClipFetch mirrors the results view rule: the clip listing endpoint is
// authoritative once the job produced clips or completed.
func (j Job) NeedsClipFetch() bool {
	return j.ClipCount > 0 || j.Status == StatusCompleted
}

// Clone returns a copy that shares no slices with j.
func (j Job) Clone() Job {
	out := j
	if j.Clips != nil {
		out.Clips = append([]Clip(nil), j.Clips...)
	}
	return out
}

type CreateJobRequest struct {
	YouTubeURL string `json:"youtube_url"`
	ClipLength int    `json:"clip_length"`
	Language   string `json:"language"`
	Style      string `json:"style"`
}

// Normalize fills defaults and validates the enumerations.
func (r CreateJobRequest) Normalize() (CreateJobRequest, error) {
	out := r
	out.YouTubeURL = strings.TrimSpace(out.YouTubeURL)
	out.Language = strings.ToLower(strings.TrimSpace(out.Language))
	out.Style = strings.ToLower(strings.TrimSpace(out.Style))
	if out.YouTubeURL == "" {
		return CreateJobRequest{}, fmt.Errorf("%w: youtube_url is required", ErrInvalidJobRequest)
	}
	if out.ClipLength == 0 {
		out.ClipLength = DefaultClipLength
	}
	if out.ClipLength < MinClipLength || out.ClipLength > MaxClipLength {
		return CreateJobRequest{}, fmt.Errorf("%w: clip_length %d outside %d..%d", ErrInvalidJobRequest, out.ClipLength, MinClipLength, MaxClipLength)
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	if !contains(Languages, out.Language) {
		return CreateJobRequest{}, fmt.Errorf("%w: language %q (expected %s)", ErrInvalidJobRequest, out.Language, strings.Join(Languages, "|"))
	}
	if out.Style == "" {
		out.Style = DefaultStyle
	}
	if !contains(Styles, out.Style) {
		return CreateJobRequest{}, fmt.Errorf("%w: style %q (expected %s)", ErrInvalidJobRequest, out.Style, strings.Join(Styles, "|"))
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
