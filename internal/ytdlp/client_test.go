package ytdlp

import (
	"context"
	"errors"
	"testing"
)

func TestVideoID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ?rel=0", "dQw4w9WgXcQ"},
		{"http://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tc := range cases {
		got, ok := VideoID(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("VideoID(%q) = %q, %v; want %q", tc.in, got, ok, tc.want)
		}
	}

	for _, in := range []string{
		"",
		"not a url",
		"https://vimeo.com/12345678",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/channel/UC123456",
		"ftp://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/bad id!",
	} {
		if id, ok := VideoID(in); ok {
			t.Fatalf("VideoID(%q) unexpectedly matched %q", in, id)
		}
	}
}

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata([]byte(`{"id":"abc123xyz","title":"  Long talk ","uploader":"Someone","duration":601.2,"formats":[]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.ID != "abc123xyz" || m.Title != "Long talk" {
		t.Fatalf("unexpected metadata: %+v", m)
	}
	if m.DurationSeconds() != 602 {
		t.Fatalf("duration seconds = %d, want 602", m.DurationSeconds())
	}
	if _, err := ParseMetadata([]byte("{")); err == nil {
		t.Fatalf("expected parse error")
	}
	if (Metadata{}).DurationSeconds() != 0 {
		t.Fatalf("unknown duration should be zero")
	}
}

func TestProbe_MissingBinary(t *testing.T) {
	p := &Prober{Binary: "yt-dlp-definitely-not-installed"}
	if p.Available() {
		t.Fatalf("expected binary to be unavailable")
	}
	_, err := p.Probe(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
	if _, err := p.Probe(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
