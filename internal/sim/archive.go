package sim

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"

	"yt-clip-studio/internal/model"
)

// writeJobArchive streams the job bundle: clips.json, the timeline assets and
// every rendered clip file that exists on disk.
func (s *Service) writeJobArchive(w io.Writer, job model.Job) error {
	zw := zip.NewWriter(w)

	manifest, err := json.MarshalIndent(job.Clips, "", "  ")
	if err != nil {
		return fmt.Errorf("encode clips manifest: %w", err)
	}
	if err := writeZipEntry(zw, "clips.json", manifest); err != nil {
		return err
	}

	refs := []struct{ name, ref string }{
		{"timeline/waveform.png", job.WaveformURL},
		{"timeline/sprite.jpg", job.SpriteURL},
	}
	for _, c := range job.Clips {
		if c.VideoURL != "" {
			refs = append(refs, struct{ name, ref string }{"clips/" + c.ID + path.Ext(c.VideoURL), c.VideoURL})
		}
		if c.ThumbnailURL != "" {
			refs = append(refs, struct{ name, ref string }{"thumbnails/" + c.ID + path.Ext(c.ThumbnailURL), c.ThumbnailURL})
		}
	}

	for _, e := range refs {
		if e.ref == "" || s.renderer == nil {
			continue
		}
		p, ok := s.renderer.Path(e.ref)
		if !ok {
			continue
		}
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			s.logger.Warn("archive entry missing", "job_id", job.ID, "name", e.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", e.name, err)
		}
		if err := writeZipEntry(zw, e.name, data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}
