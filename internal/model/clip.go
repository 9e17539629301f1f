package model

import (
	"encoding/json"
	"fmt"
)

// Clip is one generated cut. Duration is always derived from the range.
type Clip struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Caption      string `json:"caption"`
	StartTime    int    `json:"start_time"`
	EndTime      int    `json:"end_time"`
	Duration     int    `json:"duration"`
	ViralScore   int    `json:"viral_score"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	VideoURL     string `json:"video_url,omitempty"`
}

// ClipPatch is the body of a clip update.
type ClipPatch struct {
	Title     string `json:"title"`
	Caption   string `json:"caption"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
}

func (c *Clip) UnmarshalJSON(data []byte) error {
	type rawClip Clip
	var raw rawClip
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Clip(raw)
	c.Duration = c.EndTime - c.StartTime
	return nil
}

func (c Clip) Validate() error {
	return ValidateRange(c.StartTime, c.EndTime)
}

func ValidateRange(start, end int) error {
	if start < 0 {
		return fmt.Errorf("%w: start_time %d is negative", ErrInvalidClipRange, start)
	}
	if end < start+1 {
		return fmt.Errorf("%w: end_time %d must be at least start_time+1 (%d)", ErrInvalidClipRange, end, start+1)
	}
	return nil
}

// Apply returns the clip with the patch fields copied in and duration rederived.
func (c Clip) Apply(p ClipPatch) Clip {
	out := c
	out.Title = p.Title
	out.Caption = p.Caption
	out.StartTime = p.StartTime
	out.EndTime = p.EndTime
	out.Duration = p.EndTime - p.StartTime
	return out
}

// ReplaceClip swaps the clip with the same id for updated. The input slice is
// not modified.
func ReplaceClip(clips []Clip, updated Clip) ([]Clip, bool) {
	out := make([]Clip, len(clips))
	copy(out, clips)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
			return out, true
		}
	}
	return out, false
}

func FindClip(clips []Clip, id string) (Clip, bool) {
	for _, c := range clips {
		if c.ID == id {
			return c, true
		}
	}
	return Clip{}, false
}
