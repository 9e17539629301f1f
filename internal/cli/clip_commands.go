package cli

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"yt-clip-studio/internal/download"
	"yt-clip-studio/internal/editor"
	"yt-clip-studio/internal/model"
)

type clipRow struct {
	Clip     model.Clip      `json:"clip"`
	Download download.Target `json:"download"`
}

func runClips(args []string) error {
	fs := flag.NewFlagSet("clips", flag.ContinueOnError)
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

	app, err := openApp("clips")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, clips, err := app.loadClips(ctx, jobID)
	if err != nil {
		return err
	}
	rows := make([]clipRow, 0, len(clips))
	for _, c := range clips {
		rows = append(rows, clipRow{Clip: c, Download: app.dispatcher.ClipTarget(c)})
	}
	if *jsonOut {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Printf("job %s has no clips yet (%s, %d%%)\n", job.ID, job.Status, job.Progress)
		return nil
	}
	fmt.Printf("%-36s  %-13s  %5s  %5s  %-5s  %s\n", "ID", "RANGE", "DUR", "SCORE", "VIDEO", "TITLE")
	for _, r := range rows {
		c := r.Clip
		span := formatSeconds(c.StartTime) + "-" + formatSeconds(c.EndTime)
		fmt.Printf("%-36s  %-13s  %4ds  %5d  %-5s  %s\n", c.ID, span, c.Duration, c.ViralScore, yesNo(r.Download.Available), truncateRunes(c.Title, 40))
	}
	return nil
}

// loadClips fetches a job and its clips with the results-view rule.
func (a *clientApp) loadClips(ctx context.Context, jobID string) (model.Job, []model.Clip, error) {
	job, err := a.client.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, nil, err
	}
	clips, err := a.client.ResolveClips(ctx, job)
	if err != nil {
		return model.Job{}, nil, err
	}
	if !job.ClipsConsistent() {
		a.logger.Warn("clip_count disagrees with embedded clips", "job_id", job.ID, "clip_count", job.ClipCount, "embedded", len(job.Clips))
	}
	return job, clips, nil
}

func runEdit(args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id")
	clipFlag := fs.String("clip", "", "clip id")
	title := fs.String("title", "", "new title")
	caption := fs.String("caption", "", "new caption")
	start := fs.Int("start", 0, "new start second")
	end := fs.Int("end", 0, "new end second")
	nudgeStart := fs.Int("nudge-start", 0, "move the start by N seconds (negative moves earlier)")
	nudgeEnd := fs.Int("nudge-end", 0, "move the end by N seconds (negative moves earlier)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := requireJobID(*jobFlag)
	if err != nil {
		return err
	}
	clipID := strings.TrimSpace(*clipFlag)
	if clipID == "" {
		return fmt.Errorf("--clip is required")
	}
	set := flagsSet(fs)

	app, err := openApp("edit")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	job, clips, err := app.loadClips(ctx, jobID)
	if err != nil {
		return err
	}
	clip, ok := model.FindClip(clips, clipID)
	if !ok {
		return fmt.Errorf("clip %s not found in job %s", clipID, jobID)
	}

	session := editor.NewSession(app.client)
	session.BindJob(job, clip)
	if set["title"] {
		session.SetTitle(*title)
	}
	if set["caption"] {
		session.SetCaption(*caption)
	}
	wantStart, wantEnd := session.Range()
	if set["start"] {
		wantStart = *start
	}
	if set["end"] {
		wantEnd = *end
	}
	session.SetRange(wantStart, wantEnd)
	if *nudgeStart != 0 {
		session.Nudge(*nudgeStart, editor.EdgeStart)
	}
	if *nudgeEnd != 0 {
		session.Nudge(*nudgeEnd, editor.EdgeEnd)
	}

	if !session.Dirty() {
		if *jsonOut {
			return printJSON(clip)
		}
		fmt.Printf("clip %s unchanged\n", clip.ID)
		return nil
	}
	gotStart, gotEnd := session.Range()
	if (set["start"] || set["end"]) && (gotStart != wantStart || gotEnd != wantEnd) && !*jsonOut {
		fmt.Printf("range clamped to %d-%d (max %d)\n", gotStart, gotEnd, session.MaxRange())
	}

	updated, err := session.Save(ctx)
	if err != nil {
		return err
	}
	merged, _ := model.ReplaceClip(clips, updated)
	job.Clips = merged
	app.cacheJobs(job)

	if *jsonOut {
		return printJSON(updated)
	}
	fmt.Printf("saved clip %s\n", updated.ID)
	fmt.Println(kv("title", updated.Title))
	fmt.Println(kv("caption", updated.Caption))
	fmt.Println(kv("range", fmt.Sprintf("%s-%s (%ds)", formatSeconds(updated.StartTime), formatSeconds(updated.EndTime), updated.Duration)))
	return nil
}

type downloadReport struct {
	Archive  *download.Result        `json:"archive,omitempty"`
	Entries  []download.ArchiveEntry `json:"entries,omitempty"`
	Clip     *download.Result        `json:"clip,omitempty"`
	Batch    *download.BatchResult   `json:"batch,omitempty"`
	Assets   []download.Result       `json:"assets,omitempty"`
	Skipped  []download.Target       `json:"skipped,omitempty"`
	OutputTo string                  `json:"output_dir"`
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id")
	clipFlag := fs.String("clip", "", "download a single clip file")
	allClips := fs.Bool("clips", false, "download every rendered clip file")
	assets := fs.Bool("assets", false, "download the waveform and sprite images")
	outDir := fs.String("out", ".", "output directory")
	workers := fs.Int("workers", 0, "concurrent clip downloads for --clips (0 uses settings)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := requireJobID(*jobFlag)
	if err != nil {
		return err
	}
	clipID := strings.TrimSpace(*clipFlag)
	modes := 0
	for _, on := range []bool{clipID != "", *allClips, *assets} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("use only one of --clip, --clips or --assets")
	}
	if *workers < 0 {
		return fmt.Errorf("--workers must be >= 0")
	}

	app, err := openApp("download")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	dir := filepath.Clean(strings.TrimSpace(*outDir))
	fetcher := app.newFetcher(progressOutput(*jsonOut))
	report := downloadReport{OutputTo: dir}

	switch {
	case clipID != "":
		_, clips, err := app.loadClips(ctx, jobID)
		if err != nil {
			return err
		}
		clip, ok := model.FindClip(clips, clipID)
		if !ok {
			return fmt.Errorf("clip %s not found in job %s", clipID, jobID)
		}
		target := app.dispatcher.ClipTarget(clip)
		res, err := fetcher.Fetch(ctx, target, filepath.Join(dir, target.Name))
		if err != nil {
			return err
		}
		report.Clip = &res

	case *allClips:
		_, clips, err := app.loadClips(ctx, jobID)
		if err != nil {
			return err
		}
		n := *workers
		if n == 0 {
			n = app.cfg.DownloadWorkers()
		}
		batch, err := app.newFetcher(nil).FetchClips(ctx, app.dispatcher, clips, dir, n)
		if err != nil {
			return err
		}
		report.Batch = &batch
		if !*jsonOut {
			printBatch(batch)
		}
		if len(batch.Failed) > 0 {
			if *jsonOut {
				_ = printJSON(report)
			}
			return fmt.Errorf("%d of %d clip downloads failed", len(batch.Failed), len(clips))
		}

	case *assets:
		job, err := app.client.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, t := range app.dispatcher.AssetTargets(job) {
			if !t.Available {
				report.Skipped = append(report.Skipped, t)
				continue
			}
			res, err := fetcher.Fetch(ctx, t, filepath.Join(dir, t.Name))
			if err != nil {
				return err
			}
			report.Assets = append(report.Assets, res)
		}

	default:
		target := app.dispatcher.JobTarget(jobID)
		res, err := fetcher.Fetch(ctx, target, filepath.Join(dir, target.Name))
		if err != nil {
			return err
		}
		report.Archive = &res
		entries, err := download.ArchiveEntries(res.Path)
		if err != nil {
			return err
		}
		report.Entries = entries
		if !*jsonOut {
			fmt.Printf("%s contains %d files:\n", res.Path, len(entries))
			for _, e := range entries {
				fmt.Printf("  %-40s %d\n", e.Name, e.Size)
			}
		}
	}

	if *jsonOut {
		return printJSON(report)
	}
	for _, t := range report.Skipped {
		fmt.Printf("skipped %s: %s\n", t.Name, t.Reason)
	}
	return nil
}

func printBatch(batch download.BatchResult) {
	for _, r := range batch.Downloaded {
		fmt.Printf("downloaded %s (%d bytes)\n", r.Path, r.Bytes)
	}
	for _, t := range batch.Skipped {
		fmt.Printf("skipped %s: %s\n", t.Name, t.Reason)
	}
	for _, f := range batch.Failed {
		fmt.Printf("failed %s: %s\n", f.Target.Name, f.Error)
	}
	fmt.Printf("clips: %d downloaded, %d skipped, %d failed\n", len(batch.Downloaded), len(batch.Skipped), len(batch.Failed))
}
