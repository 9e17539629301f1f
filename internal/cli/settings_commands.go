package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"yt-clip-studio/internal/config"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/runstore"
	"yt-clip-studio/internal/ytdlp"
)

type settingsView struct {
	SettingsPath    string `json:"settings_path"`
	DataDir         string `json:"data_dir"`
	APIBase         string `json:"api_base"`
	MediaBase       string `json:"media_base"`
	Token           string `json:"token"`
	LogLevel        string `json:"log_level"`
	LogPath         string `json:"log_path"`
	PollInterval    string `json:"poll_interval"`
	HTTPTimeout     string `json:"http_timeout"`
	DownloadWorkers int    `json:"download_workers"`
}

func runSettings(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	apiBase := fs.String("api-base", "", "backend base URL (http or https)")
	mediaBase := fs.String("media-base", "", "base URL for media references (empty follows api-base)")
	token := fs.String("token", "", "bearer token sent to the backend")
	logLevel := fs.String("log-level", "", "debug|info|warn|error")
	pollInterval := fs.String("poll-interval", "", "job poll interval (e.g. 1.4s or 1400)")
	httpTimeout := fs.String("http-timeout", "", "HTTP timeout (e.g. 30s)")
	workers := fs.Int("workers", -1, fmt.Sprintf("concurrent clip downloads (1-%d, -1 keeps current)", config.MaxDownloadWorkers))
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}
	set := flagsSet(fs)
	if len(set) > 0 && !(len(set) == 1 && set["json"]) {
		s := cfg.FileSettings()
		if set["api-base"] {
			s.APIBase = *apiBase
		}
		if set["media-base"] {
			s.MediaBase = *mediaBase
		}
		if set["token"] {
			s.Token = *token
		}
		if set["log-level"] {
			level := strings.ToLower(strings.TrimSpace(*logLevel))
			switch level {
			case "", "debug", "info", "warn", "error":
			default:
				return errors.New("--log-level must be debug, info, warn or error")
			}
			s.LogLevel = level
		}
		if set["poll-interval"] {
			d, err := config.ParseInterval(*pollInterval)
			if err != nil {
				return fmt.Errorf("invalid --poll-interval: %w", err)
			}
			if d < 100*time.Millisecond {
				return errors.New("--poll-interval must be at least 100ms")
			}
			s.PollIntervalMS = int(d / time.Millisecond)
		}
		if set["http-timeout"] {
			d, err := config.ParseInterval(*httpTimeout)
			if err != nil {
				return fmt.Errorf("invalid --http-timeout: %w", err)
			}
			s.HTTPTimeoutS = max(int(d/time.Second), 1)
		}
		if *workers != -1 {
			if *workers < 1 || *workers > config.MaxDownloadWorkers {
				return fmt.Errorf("--workers must be between 1 and %d", config.MaxDownloadWorkers)
			}
			s.DownloadWorkers = *workers
		}
		if _, err := config.SaveSettings(cfg.DataDir(), s); err != nil {
			return err
		}
		cfg, err = config.New()
		if err != nil {
			return err
		}
		if !*jsonOut {
			fmt.Printf("updated settings in %s\n", cfg.SettingsPath())
		}
	}

	view := settingsView{
		SettingsPath:    cfg.SettingsPath(),
		DataDir:         cfg.DataDir(),
		APIBase:         cfg.APIBase(),
		MediaBase:       cfg.MediaBase(),
		Token:           maskToken(cfg.Token()),
		LogLevel:        cfg.LogLevel(),
		LogPath:         cfg.LogPath(),
		PollInterval:    cfg.PollInterval().String(),
		HTTPTimeout:     cfg.HTTPTimeout().String(),
		DownloadWorkers: cfg.DownloadWorkers(),
	}
	if *jsonOut {
		return printJSON(view)
	}
	fmt.Println(kv("settings", view.SettingsPath))
	fmt.Println(kv("data_dir", view.DataDir))
	fmt.Println(kv("api_base", view.APIBase))
	fmt.Println(kv("media_base", view.MediaBase))
	fmt.Println(kv("token", view.Token))
	fmt.Println(kv("log_level", view.LogLevel))
	fmt.Println(kv("log_path", view.LogPath))
	fmt.Println(kv("poll_interval", view.PollInterval))
	fmt.Println(kv("http_timeout", view.HTTPTimeout))
	fmt.Println(kv("download_workers", strconv.Itoa(view.DownloadWorkers)))
	return nil
}

func maskToken(token string) string {
	if token == "" {
		return "(none)"
	}
	return logging.SanitizeToken(token)
}

type doctorCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := openApp("doctor")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, stop := commandContext()
	defer stop()

	res := doctorResult{Checks: []doctorCheck{
		{Name: "config", OK: true, Message: app.cfg.SettingsPath()},
		checkDataDir(app.cfg.DataDir()),
		app.checkAPI(ctx),
	}}
	deps := ytdlp.DependencyStatus()
	res.Checks = append(res.Checks,
		dependencyCheck("yt-dlp", deps.YTDLPFound, deps.YTDLPPath),
		dependencyCheck("ffmpeg", deps.FFmpegFound, deps.FFmpegPath),
	)
	res.OK = true
	for _, c := range res.Checks {
		if !c.OK && !c.Optional {
			res.OK = false
		}
	}
	app.logger.Info("doctor finished", "ok", res.OK)

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			switch {
			case !c.OK && c.Optional:
				status = "warn"
			case !c.OK:
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func checkDataDir(dir string) doctorCheck {
	probe := filepath.Join(dir, ".doctor-probe.json")
	if err := runstore.WriteJSON(probe, map[string]string{"checked_at": time.Now().UTC().Format(time.RFC3339)}); err != nil {
		return doctorCheck{Name: "data_dir", Message: err.Error()}
	}
	_ = os.Remove(probe)
	return doctorCheck{Name: "data_dir", OK: true, Message: dir + " is writable"}
}

func (a *clientApp) checkAPI(ctx context.Context) doctorCheck {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	jobs, err := a.client.ListJobs(ctx)
	if err != nil {
		return doctorCheck{Name: "api", Message: err.Error()}
	}
	return doctorCheck{Name: "api", OK: true, Message: fmt.Sprintf("%s reachable, %d jobs", a.cfg.APIBase(), len(jobs))}
}

// yt-dlp and ffmpeg are only used by clip-sim probing, so they never fail doctor.
func dependencyCheck(name string, found bool, path string) doctorCheck {
	if !found {
		return doctorCheck{Name: name, Optional: true, Message: "not found in PATH; only needed for clip-sim probing"}
	}
	return doctorCheck{Name: name, OK: true, Optional: true, Message: path}
}
