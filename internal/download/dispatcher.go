package download

import (
	"path"
	"strings"

	"yt-clip-studio/internal/api"
	"yt-clip-studio/internal/media"
	"yt-clip-studio/internal/model"
)

const (
	ReasonNoVideo    = "clip has no rendered video yet"
	ReasonNoAsset    = "asset not generated for this job"
	defaultClipExt   = ".mp4"
	maxFilenameRunes = 60
)

// Target is something the user can download. Unavailable targets carry a
// Reason instead of a URL and are not errors.
type Target struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type Dispatcher struct {
	resolver media.Resolver
	apiBase  string
}

func NewDispatcher(resolver media.Resolver, apiBase string) *Dispatcher {
	return &Dispatcher{resolver: resolver, apiBase: strings.TrimRight(strings.TrimSpace(apiBase), "/")}
}

func (d *Dispatcher) ClipTarget(clip model.Clip) Target {
	t := Target{Name: ClipFilename(clip)}
	if !d.resolver.Available(clip.VideoURL) {
		t.Reason = ReasonNoVideo
		return t
	}
	t.URL = d.resolver.Resolve(clip.VideoURL)
	t.Available = true
	return t
}

// JobTarget is the bulk ZIP for a job. It is always available: the backend
// packages whatever exists at request time.
func (d *Dispatcher) JobTarget(jobID string) Target {
	return Target{
		Name:      sanitize(jobID, "job") + ".zip",
		URL:       api.JobDownloadURL(d.apiBase, jobID),
		Available: true,
	}
}

func (d *Dispatcher) AssetTargets(job model.Job) []Target {
	return []Target{
		d.asset("waveform.png", job.WaveformURL),
		d.asset("sprite.jpg", job.SpriteURL),
	}
}

func (d *Dispatcher) asset(name, ref string) Target {
	if !d.resolver.Available(ref) {
		return Target{Name: name, Reason: ReasonNoAsset}
	}
	return Target{Name: name, URL: d.resolver.Resolve(ref), Available: true}
}

// ClipFilename builds a filesystem-safe name from the clip title, keeping the
// extension of the rendered video when it has one.
func ClipFilename(clip model.Clip) string {
	ext := path.Ext(strings.SplitN(clip.VideoURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = defaultClipExt
	}
	base := sanitize(clip.Title, "")
	if base == "" {
		base = sanitize(clip.ID, "clip")
	}
	return base + ext
}

func sanitize(raw, fallback string) string {
	var b strings.Builder
	dash := false
	count := 0
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if count >= maxFilenameRunes {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
			count++
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
			count++
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
