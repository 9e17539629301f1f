package download

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const progressTick = 700 * time.Millisecond

// liveProgress redraws a single terminal line while a transfer runs.
type liveProgress struct {
	enabled bool
	out     io.Writer
	label   string
	total   int64
	started time.Time

	done atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	finished chan struct{}
}

func newLiveProgress(out io.Writer, label string, total int64) *liveProgress {
	return &liveProgress{
		enabled:  out != nil,
		out:      out,
		label:    label,
		total:    total,
		started:  time.Now(),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (p *liveProgress) Start() {
	if !p.enabled {
		return
	}
	go func() {
		defer close(p.finished)
		t := time.NewTicker(progressTick)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				fmt.Fprintf(p.out, "\r\033[2K%s", p.render(time.Now()))
			}
		}
	}()
}

func (p *liveProgress) Stop(final string) {
	if !p.enabled {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.finished
		fmt.Fprintf(p.out, "\r\033[2K%s\n", final)
	})
}

func (p *liveProgress) Add(n int) {
	p.done.Add(int64(n))
}

func (p *liveProgress) render(now time.Time) string {
	done := p.done.Load()
	parts := []string{p.label}
	if p.total > 0 {
		pct := float64(done) * 100 / float64(p.total)
		parts = append(parts, fmt.Sprintf("%s / %s", formatBytesIEC(done), formatBytesIEC(p.total)), fmtFloat1(pct)+"%")
	} else {
		parts = append(parts, formatBytesIEC(done))
	}
	if elapsed := now.Sub(p.started).Seconds(); elapsed > 0 && done > 0 {
		parts = append(parts, formatBytesIEC(int64(float64(done)/elapsed))+"/s")
	}
	return strings.Join(parts, "  ")
}

// progressReader feeds byte counts into a liveProgress.
type progressReader struct {
	r io.Reader
	p *liveProgress
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.p.Add(n)
	}
	return n, err
}

func formatBytesIEC(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := "KMGTPE"[exp]
	return fmtFloat1(value) + " " + string(suffix) + "iB"
}

func fmtFloat1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
