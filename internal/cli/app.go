package cli

import (
	"io"
	"log/slog"
	"os"

	"yt-clip-studio/internal/api"
	"yt-clip-studio/internal/config"
	"yt-clip-studio/internal/download"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/media"
	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/runstore"
)

// clientApp bundles what every backend-facing command needs.
type clientApp struct {
	cfg        *config.EnvConfig
	logger     *slog.Logger
	closer     io.Closer
	client     *api.Client
	resolver   media.Resolver
	dispatcher *download.Dispatcher
}

// openApp loads configuration and opens the client log. Logs go to a file in
// the data dir; stdout belongs to command output and the studio screen.
func openApp(component string) (*clientApp, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if err := runstore.Mkdir(cfg.DataDir()); err != nil {
		return nil, err
	}
	logger, closer, err := logging.OpenFileLogger(cfg.LogLevel(), cfg.LogPath())
	if err != nil {
		return nil, err
	}
	logger = logging.WithComponent(logger, component)

	resolver := media.NewResolver(cfg.MediaBase())
	return &clientApp{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		client: api.NewClient(api.Options{
			BaseURL: cfg.APIBase(),
			Token:   cfg.Token(),
			Timeout: cfg.HTTPTimeout(),
			Logger:  logger,
		}),
		resolver:   resolver,
		dispatcher: download.NewDispatcher(resolver, cfg.APIBase()),
	}, nil
}

func (a *clientApp) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// cacheJobs merges snapshots into jobs.json. A failed write only loses the
// offline view, so it is logged and not returned.
func (a *clientApp) cacheJobs(jobs ...model.Job) {
	if len(jobs) == 0 {
		return
	}
	if err := runstore.MergeJobs(a.cfg.DataDir(), a.cfg.APIBase(), jobs...); err != nil {
		a.logger.Warn("update jobs cache failed", "error", err)
	}
}

func (a *clientApp) newFetcher(progress io.Writer) *download.Fetcher {
	return download.NewFetcher(a.client, download.FetcherOptions{
		Logger:   logging.WithComponent(a.logger, "download"),
		Progress: progress,
	})
}

func progressOutput(jsonOut bool) io.Writer {
	if jsonOut {
		return nil
	}
	return os.Stdout
}
