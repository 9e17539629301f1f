package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/runstore"
)

var ErrUnavailable = errors.New("download target unavailable")

// Opener performs an authenticated GET; *api.Client implements it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (*http.Response, error)
}

type Result struct {
	Target Target `json:"target"`
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
}

type Failure struct {
	Target Target `json:"target"`
	Error  string `json:"error"`
}

// BatchResult keeps skipped clips apart from failed transfers.
type BatchResult struct {
	Downloaded []Result  `json:"downloaded"`
	Skipped    []Target  `json:"skipped"`
	Failed     []Failure `json:"failed"`
}

type FetcherOptions struct {
	Logger *slog.Logger
	// Progress receives the live line while a single Fetch runs. Nil disables it.
	Progress io.Writer
}

type Fetcher struct {
	opener   Opener
	logger   *slog.Logger
	progress io.Writer
}

func NewFetcher(opener Opener, opts FetcherOptions) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{opener: opener, logger: logger, progress: opts.Progress}
}

// Fetch streams target into dest atomically.
func (f *Fetcher) Fetch(ctx context.Context, target Target, dest string) (Result, error) {
	return f.fetch(ctx, target, dest, f.progress)
}

func (f *Fetcher) fetch(ctx context.Context, target Target, dest string, progressOut io.Writer) (Result, error) {
	if !target.Available {
		return Result{}, fmt.Errorf("%s: %w: %s", target.Name, ErrUnavailable, target.Reason)
	}
	resp, err := f.opener.Open(ctx, target.URL)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	live := newLiveProgress(progressOut, target.Name, resp.ContentLength)
	live.Start()
	n, err := runstore.WriteStream(dest, &progressReader{r: resp.Body, p: live})
	if err != nil {
		live.Stop(fmt.Sprintf("%s  failed", target.Name))
		return Result{}, err
	}
	live.Stop(fmt.Sprintf("%s  %s  done", target.Name, formatBytesIEC(n)))

	f.logger.Debug("download complete", "name", target.Name, "path", dest, "bytes", n)
	return Result{Target: target, Path: dest, Bytes: n}, nil
}

// FetchClips downloads every available clip into dir with at most workers
// transfers in flight. One failed clip does not stop the others; only
// context cancellation aborts the batch.
func (f *Fetcher) FetchClips(ctx context.Context, d *Dispatcher, clips []model.Clip, dir string, workers int) (BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	if err := runstore.Mkdir(dir); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Downloaded: []Result{}, Skipped: []Target{}, Failed: []Failure{}}
	targets := uniqueNames(clips, d)

	done := make([]*Result, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range targets {
		if !t.Available {
			res.Skipped = append(res.Skipped, t)
			continue
		}
		g.Go(func() error {
			r, err := f.fetch(gctx, t, filepath.Join(dir, t.Name), nil)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.logger.Warn("clip download failed", "name", t.Name, "error", err)
				mu.Lock()
				res.Failed = append(res.Failed, Failure{Target: t, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			done[i] = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	for _, r := range done {
		if r != nil {
			res.Downloaded = append(res.Downloaded, *r)
		}
	}
	return res, nil
}

// uniqueNames resolves targets and suffixes duplicate filenames so clips with
// the same title do not overwrite each other. A suffixed name is never one
// that another clip already uses.
func uniqueNames(clips []model.Clip, d *Dispatcher) []Target {
	taken := map[string]bool{}
	out := make([]Target, 0, len(clips))
	for _, c := range clips {
		t := d.ClipTarget(c)
		if taken[t.Name] {
			ext := filepath.Ext(t.Name)
			stem := t.Name[:len(t.Name)-len(ext)]
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
				if !taken[candidate] {
					t.Name = candidate
					break
				}
			}
		}
		taken[t.Name] = true
		out = append(out, t)
	}
	return out
}
