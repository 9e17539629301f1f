package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"yt-clip-studio/internal/config"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/poller"
	"yt-clip-studio/internal/runstore"
	"yt-clip-studio/internal/ytdlp"
)

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	rawURL := fs.String("url", "", "YouTube video URL")
	clipLength := fs.Int("clip-length", model.DefaultClipLength, fmt.Sprintf("clip length in seconds (%d-%d)", model.MinClipLength, model.MaxClipLength))
	language := fs.String("language", model.DefaultLanguage, "caption language: "+strings.Join(model.Languages, "|"))
	style := fs.String("style", model.DefaultStyle, "edit style: "+strings.Join(model.Styles, "|"))
	watch := fs.Bool("watch", false, "poll the job until it completes or fails")
	interval := fs.String("interval", "", "poll interval for --watch (e.g. 1.4s or 1400)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	link := strings.TrimSpace(*rawURL)
	if link == "" {
		var err error
		link, err = promptRequired("YouTube URL")
		if err != nil {
			return err
		}
	}
	req, err := model.CreateJobRequest{
		YouTubeURL: link,
		ClipLength: *clipLength,
		Language:   *language,
		Style:      *style,
	}.Normalize()
	if err != nil {
		return err
	}
	if _, ok := ytdlp.VideoID(req.YouTubeURL); !ok && !*jsonOut {
		fmt.Fprintf(os.Stderr, "warning: %s does not look like a YouTube video link\n", req.YouTubeURL)
	}
	pollEvery, err := parseIntervalFlag(*interval)
	if err != nil {
		return err
	}

	app, err := openApp("submit")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, err := app.client.CreateJob(ctx, req)
	if err != nil {
		return err
	}
	app.cacheJobs(job)
	logging.WithJobID(app.logger, job.ID).Info("job submitted", "url", job.YouTubeURL, "clip_length", job.ClipLength)

	if *watch {
		tracker := app.newTracker(pollEvery, *jsonOut)
		tracker.Track(ctx, job)
		return app.drainTracker(ctx, tracker, *jsonOut)
	}
	if *jsonOut {
		return printJSON(job)
	}
	printJobDetail(job)
	fmt.Printf("\nwatch with: yt-clip-studio watch --job %s\n", job.ID)
	return nil
}

func runJobs(args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	cached := fs.Bool("cached", false, "read the last saved job list instead of the backend")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cached {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		cache, err := runstore.LoadJobs(cfg.DataDir())
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(cache)
		}
		if cache.UpdatedAt != "" {
			fmt.Printf("cached %s from %s\n", cache.UpdatedAt, defaultIfEmpty(cache.APIBase, "(unknown)"))
		}
		printJobTable(cache.Jobs)
		return nil
	}

	app, err := openApp("jobs")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	jobs, err := app.client.ListJobs(ctx)
	if err != nil {
		return err
	}
	if err := runstore.SaveJobs(app.cfg.DataDir(), app.cfg.APIBase(), jobs); err != nil {
		app.logger.Warn("save jobs cache failed", "error", err)
	}
	if *jsonOut {
		return printJSON(jobs)
	}
	printJobTable(jobs)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := requireJobID(*jobFlag)
	if err != nil {
		return err
	}

	app, err := openApp("status")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, err := app.client.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	app.cacheJobs(job)
	if *jsonOut {
		return printJSON(map[string]any{
			"job":    job,
			"assets": app.dispatcher.AssetTargets(job),
		})
	}
	printJobDetail(job)
	for _, t := range app.dispatcher.AssetTargets(job) {
		if t.Available {
			fmt.Printf("%s: %s\n", t.Name, t.URL)
		} else {
			fmt.Printf("%s: (%s)\n", t.Name, t.Reason)
		}
	}
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id")
	interval := fs.String("interval", "", "poll interval (e.g. 1.4s or 1400); defaults to settings")
	jsonOut := fs.Bool("json", false, "print each snapshot as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := requireJobID(*jobFlag)
	if err != nil {
		return err
	}
	pollEvery, err := parseIntervalFlag(*interval)
	if err != nil {
		return err
	}

	app, err := openApp("watch")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, err := app.client.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	tracker := app.newTracker(pollEvery, *jsonOut)
	tracker.Track(ctx, job)
	return app.drainTracker(ctx, tracker, *jsonOut)
}

func runRetry(args []string) error {
	fs := flag.NewFlagSet("retry", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id")
	watch := fs.Bool("watch", false, "poll the job after resubmitting")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := requireJobID(*jobFlag)
	if err != nil {
		return err
	}

	app, err := openApp("retry")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, err := app.client.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.StatusError {
		return fmt.Errorf("job %s is %s; only failed jobs can be retried", job.ID, job.Status)
	}

	tracker := app.newTracker(0, *jsonOut)
	tracker.Track(ctx, job)
	updated, err := tracker.Retry(ctx, app.client)
	if err != nil {
		return err
	}
	app.cacheJobs(updated)
	logging.WithJobID(app.logger, updated.ID).Info("job resubmitted", "status", updated.Status)

	if *watch {
		return app.drainTracker(ctx, tracker, *jsonOut)
	}
	tracker.Stop()
	if *jsonOut {
		return printJSON(updated)
	}
	fmt.Printf("resubmitted %s: %s %d%%\n", updated.ID, updated.Status, updated.Progress)
	return nil
}

func (a *clientApp) newTracker(interval time.Duration, jsonOut bool) *poller.Tracker {
	if interval <= 0 {
		interval = a.cfg.PollInterval()
	}
	var out io.Writer = os.Stderr
	if jsonOut {
		out = io.Discard
	}
	return poller.NewTracker(a.client, &watchNotifier{out: out}, nil, poller.Options{
		Interval: interval,
		Logger:   a.logger,
	})
}

// drainTracker prints snapshots of the tracked job until it is terminal or
// ctx ends. Only one watcher per job may run against a data dir.
func (a *clientApp) drainTracker(ctx context.Context, tracker *poller.Tracker, jsonOut bool) error {
	job, ok := tracker.Active()
	if !ok {
		return poller.ErrNoActiveJob
	}
	lock, err := runstore.AcquireLock(a.cfg.DataDir(), "watch-"+job.ID, "watch", runstore.DefaultLockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("release watch lock failed", "error", err)
		}
	}()

	logger := logging.WithJobID(a.logger, job.ID)
	logger.Info("watch started", "status", job.Status, "progress", job.Progress)
	if err := printSnapshot(job, jsonOut); err != nil {
		return err
	}

	err = tracker.Drain(ctx, func(ev poller.Event) {
		if ev.Kind != poller.EventSnapshot {
			return
		}
		a.cacheJobs(ev.Job)
		if perr := printSnapshot(ev.Job, jsonOut); perr != nil {
			logger.Warn("print snapshot failed", "error", perr)
		}
	})
	final, _ := tracker.Active()
	a.cacheJobs(final)
	if errors.Is(err, context.Canceled) {
		logger.Info("watch interrupted", "status", final.Status)
		return fmt.Errorf("watch interrupted: job %s is %s", final.ID, final.Status)
	}
	if err != nil {
		return err
	}

	logger.Info("watch finished", "status", final.Status, "clip_count", final.ClipCount)
	if final.Status == model.StatusError {
		return fmt.Errorf("job %s failed: %s", final.ID, poller.FailureMessage(final))
	}
	return nil
}

// watchNotifier reports terminal transitions and transient poll failures on
// stderr, keeping stdout for snapshots.
type watchNotifier struct {
	out io.Writer
}

func (n *watchNotifier) JobCompleted(job model.Job) {
	fmt.Fprintf(n.out, "job %s completed with %d clips\n", job.ID, job.ClipCount)
}

func (n *watchNotifier) JobFailed(job model.Job, message string) {
	fmt.Fprintf(n.out, "job %s failed: %s\n", job.ID, message)
}

func (n *watchNotifier) TransientError(err error) {
	fmt.Fprintf(n.out, "poll failed, retrying: %v\n", err)
}

func printSnapshot(job model.Job, jsonOut bool) error {
	if jsonOut {
		return printJSON(job)
	}
	fmt.Printf("%s  %-10s %3d%%  %s\n", time.Now().Format("15:04:05"), job.Status, job.Progress, progressBar(job.Progress, 24))
	return nil
}

func printJobTable(jobs []model.Job) {
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return
	}
	fmt.Printf("%-36s  %-10s  %4s  %5s  %s\n", "ID", "STATUS", "PCT", "CLIPS", "TITLE")
	for _, j := range jobs {
		fmt.Printf("%-36s  %-10s  %3d%%  %5d  %s\n", j.ID, j.Status, j.Progress, j.ClipCount, truncateRunes(defaultIfEmpty(j.Title, j.YouTubeURL), 48))
	}
}

func printJobDetail(job model.Job) {
	fmt.Println(kv("id", job.ID))
	fmt.Println(kv("title", defaultIfEmpty(job.Title, "(untitled)")))
	fmt.Println(kv("url", job.YouTubeURL))
	fmt.Println(kv("status", job.Status))
	fmt.Println(kv("progress", fmt.Sprintf("%d%%", job.Progress)))
	fmt.Println(kv("clip_length", fmt.Sprintf("%ds", job.ClipLength)))
	fmt.Println(kv("language", job.Language))
	fmt.Println(kv("style", job.Style))
	fmt.Println(kv("clips", fmt.Sprintf("%d", job.ClipCount)))
	if job.SourceDuration > 0 {
		fmt.Println(kv("source_duration", formatSeconds(job.SourceDuration)))
	}
	if job.CreatedAt != "" {
		fmt.Println(kv("created_at", job.CreatedAt))
	}
	if job.Status == model.StatusError {
		fmt.Println(kv("error", poller.FailureMessage(job)))
	}
}

func parseIntervalFlag(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := config.ParseInterval(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --interval: %w", err)
	}
	return d, nil
}
