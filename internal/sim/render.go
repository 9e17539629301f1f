package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	MediaPrefix = "/media/"

	waveformWidth  = 960
	waveformHeight = 120
	spriteFrames   = 10
	spriteCols     = 5
	frameWidth     = 160
	frameHeight    = 90
	thumbWidth     = 320
	thumbHeight    = 180

	placeholderBytesPerSecond = 2048
)

var (
	waveBackground = color.RGBA{R: 24, G: 24, B: 32, A: 255}
	waveForeground = color.RGBA{R: 255, G: 95, B: 175, A: 255}
)

// Renderer writes the synthetic media a finished job exposes. Output is
// derived from ids only, so re-rendering yields identical bytes.
type Renderer struct {
	dir         string
	renderClips bool
}

func NewRenderer(dir string, renderClips bool) *Renderer {
	return &Renderer{dir: dir, renderClips: renderClips}
}

func (r *Renderer) Dir() string {
	return r.dir
}

// Path maps a /media/ reference onto the media directory. It returns false
// for references outside it.
func (r *Renderer) Path(ref string) (string, bool) {
	if !strings.HasPrefix(ref, MediaPrefix) {
		return "", false
	}
	rel := path.Clean("/" + strings.TrimPrefix(ref, MediaPrefix))
	return filepath.Join(r.dir, filepath.FromSlash(strings.TrimPrefix(rel, "/"))), true
}

// JobAssets renders the waveform and sprite strip for a job.
func (r *Renderer) JobAssets(jobID string) (waveformRef, spriteRef string, err error) {
	waveformRef = MediaPrefix + "jobs/" + jobID + "/waveform.png"
	spriteRef = MediaPrefix + "jobs/" + jobID + "/sprite.jpg"

	var buf bytes.Buffer
	if err := png.Encode(&buf, waveformImage(seedFor(jobID))); err != nil {
		return "", "", fmt.Errorf("encode waveform: %w", err)
	}
	if err := r.write(waveformRef, buf.Bytes()); err != nil {
		return "", "", err
	}

	buf.Reset()
	if err := jpeg.Encode(&buf, spriteImage(seedFor(jobID+"/sprite")), &jpeg.Options{Quality: 80}); err != nil {
		return "", "", fmt.Errorf("encode sprite: %w", err)
	}
	if err := r.write(spriteRef, buf.Bytes()); err != nil {
		return "", "", err
	}
	return waveformRef, spriteRef, nil
}

// ClipAssets renders a thumbnail and, when enabled, a placeholder video file.
// videoRef is empty when clip rendering is off.
func (r *Renderer) ClipAssets(jobID, clipID string, seconds int) (thumbRef, videoRef string, err error) {
	base := MediaPrefix + "jobs/" + jobID + "/clips/" + clipID
	thumbRef = base + ".jpg"

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnailImage(seedFor(clipID)), &jpeg.Options{Quality: 80}); err != nil {
		return "", "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := r.write(thumbRef, buf.Bytes()); err != nil {
		return "", "", err
	}
	if !r.renderClips {
		return thumbRef, "", nil
	}

	videoRef = base + ".mp4"
	if err := r.write(videoRef, placeholderVideo(seconds)); err != nil {
		return "", "", err
	}
	return thumbRef, videoRef, nil
}

func (r *Renderer) write(ref string, data []byte) error {
	p, ok := r.Path(ref)
	if !ok {
		return fmt.Errorf("media ref %q outside media dir", ref)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func seedFor(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func waveformImage(seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	img := image.NewRGBA(image.Rect(0, 0, waveformWidth, waveformHeight))
	fill(img, img.Bounds(), waveBackground)

	mid := waveformHeight / 2
	level := 0.4
	for x := 0; x < waveformWidth; x += 3 {
		level = clampFloat(level+rng.Float64()*0.3-0.15, 0.05, 0.95)
		half := int(level * float64(mid))
		fill(img, image.Rect(x, mid-half, x+2, mid+half), waveForeground)
	}
	return img
}

func spriteImage(seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	rows := (spriteFrames + spriteCols - 1) / spriteCols
	img := image.NewRGBA(image.Rect(0, 0, spriteCols*frameWidth, rows*frameHeight))
	for i := 0; i < spriteFrames; i++ {
		x := (i % spriteCols) * frameWidth
		y := (i / spriteCols) * frameHeight
		c := color.RGBA{R: uint8(rng.IntN(200) + 30), G: uint8(rng.IntN(200) + 30), B: uint8(rng.IntN(200) + 30), A: 255}
		fill(img, image.Rect(x, y, x+frameWidth, y+frameHeight), c)
		fill(img, image.Rect(x, y+frameHeight-6, x+frameWidth*(i+1)/spriteFrames, y+frameHeight), waveForeground)
	}
	return img
}

func thumbnailImage(seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	from := color.RGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, thumbWidth, thumbHeight))
	for y := 0; y < thumbHeight; y++ {
		t := float64(y) / float64(thumbHeight-1)
		c := color.RGBA{
			R: lerp(from.R, waveBackground.R, t),
			G: lerp(from.G, waveBackground.G, t),
			B: lerp(from.B, waveBackground.B, t),
			A: 255,
		}
		fill(img, image.Rect(0, y, thumbWidth, y+1), c)
	}
	return img
}

// placeholderVideo is an ISO BMFF ftyp box followed by a free box whose size
// tracks the clip length. Players reject it; downloads and archives do not care.
func placeholderVideo(seconds int) []byte {
	if seconds < 1 {
		seconds = 1
	}
	var buf bytes.Buffer
	ftyp := []byte("isom\x00\x00\x02\x00isomiso2mp41")
	_ = binary.Write(&buf, binary.BigEndian, uint32(8+len(ftyp)))
	buf.WriteString("ftyp")
	buf.Write(ftyp)

	payload := seconds * placeholderBytesPerSecond
	_ = binary.Write(&buf, binary.BigEndian, uint32(8+payload))
	buf.WriteString("free")
	buf.Write(make([]byte, payload))
	return buf.Bytes()
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
