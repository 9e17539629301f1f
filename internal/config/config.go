// Package config resolves client and simulator settings from defaults, the
// persisted settings file, and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"yt-clip-studio/internal/runstore"
)

const (
	DefaultAPIBase         = "http://127.0.0.1:8000"
	DefaultLogLevel        = "info"
	DefaultDataDirName     = ".yt-clip-studio"
	DefaultPollInterval    = 1400 * time.Millisecond
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultDownloadWorkers = 3
	MaxDownloadWorkers     = 16

	SettingsFilename = "settings.json"
	LogFilename      = "client.log"

	EnvAPIBase         = "CLIP_STUDIO_API_BASE"
	EnvMediaBase       = "CLIP_STUDIO_MEDIA_BASE"
	EnvToken           = "CLIP_STUDIO_TOKEN"
	EnvLogLevel        = "CLIP_STUDIO_LOG_LEVEL"
	EnvDataDir         = "CLIP_STUDIO_DATA_DIR"
	EnvPollInterval    = "CLIP_STUDIO_POLL_INTERVAL"
	EnvHTTPTimeout     = "CLIP_STUDIO_HTTP_TIMEOUT"
	EnvDownloadWorkers = "CLIP_STUDIO_DOWNLOAD_WORKERS"
)

// Settings is the persisted part of the client configuration.
type Settings struct {
	APIBase         string `json:"api_base,omitempty"`
	MediaBase       string `json:"media_base,omitempty"`
	Token           string `json:"token,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`
	PollIntervalMS  int    `json:"poll_interval_ms,omitempty"`
	HTTPTimeoutS    int    `json:"http_timeout_s,omitempty"`
	DownloadWorkers int    `json:"download_workers,omitempty"`
}

// EnvConfig is the effective client configuration.
type EnvConfig struct {
	dataDir         string
	apiBase         string
	mediaBase       string
	token           string
	logLevel        string
	pollInterval    time.Duration
	httpTimeout     time.Duration
	downloadWorkers int
	file            Settings
}

// New loads defaults, then settings.json from the data dir, then env overrides.
func New() (*EnvConfig, error) {
	dataDir := strings.TrimSpace(os.Getenv(EnvDataDir))
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	file, err := ReadSettings(dataDir)
	if err != nil {
		return nil, err
	}

	cfg := &EnvConfig{
		dataDir:         dataDir,
		apiBase:         DefaultAPIBase,
		logLevel:        DefaultLogLevel,
		pollInterval:    DefaultPollInterval,
		httpTimeout:     DefaultHTTPTimeout,
		downloadWorkers: DefaultDownloadWorkers,
		file:            file,
	}
	cfg.applySettings(file)

	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.apiBase = v
	}
	if v := os.Getenv(EnvMediaBase); v != "" {
		cfg.mediaBase = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.logLevel = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		cfg.pollInterval = d
	}
	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHTTPTimeout, err)
		}
		cfg.httpTimeout = d
	}
	if v := os.Getenv(EnvDownloadWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvDownloadWorkers, err)
		}
		cfg.downloadWorkers = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applySettings(s Settings) {
	if s.APIBase != "" {
		c.apiBase = s.APIBase
	}
	if s.MediaBase != "" {
		c.mediaBase = s.MediaBase
	}
	if s.Token != "" {
		c.token = s.Token
	}
	if s.LogLevel != "" {
		c.logLevel = s.LogLevel
	}
	if s.PollIntervalMS > 0 {
		c.pollInterval = time.Duration(s.PollIntervalMS) * time.Millisecond
	}
	if s.HTTPTimeoutS > 0 {
		c.httpTimeout = time.Duration(s.HTTPTimeoutS) * time.Second
	}
	if s.DownloadWorkers > 0 {
		c.downloadWorkers = s.DownloadWorkers
	}
}

func (c *EnvConfig) validate() error {
	c.apiBase = strings.TrimRight(strings.TrimSpace(c.apiBase), "/")
	if err := ValidateBaseURL(c.apiBase); err != nil {
		return fmt.Errorf("invalid api base: %w", err)
	}
	c.mediaBase = strings.TrimRight(strings.TrimSpace(c.mediaBase), "/")
	if c.mediaBase != "" {
		if err := ValidateBaseURL(c.mediaBase); err != nil {
			return fmt.Errorf("invalid media base: %w", err)
		}
	}
	if c.pollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval %s is below 100ms", c.pollInterval)
	}
	if c.httpTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	if c.downloadWorkers < 1 || c.downloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("download workers must be between 1 and %d", MaxDownloadWorkers)
	}
	return nil
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

func (c *EnvConfig) APIBase() string {
	return c.apiBase
}

// MediaBase falls back to the API base when unset.
func (c *EnvConfig) MediaBase() string {
	if c.mediaBase != "" {
		return c.mediaBase
	}
	return c.apiBase
}

func (c *EnvConfig) Token() string {
	return c.token
}

func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) HTTPTimeout() time.Duration {
	return c.httpTimeout
}

func (c *EnvConfig) DownloadWorkers() int {
	return c.downloadWorkers
}

func (c *EnvConfig) SettingsPath() string {
	return SettingsPath(c.dataDir)
}

func (c *EnvConfig) LogPath() string {
	return filepath.Join(c.dataDir, LogFilename)
}

// FileSettings returns what settings.json holds, without env overrides.
func (c *EnvConfig) FileSettings() Settings {
	return c.file
}

func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, SettingsFilename)
}

// ReadSettings returns zero settings when the file does not exist.
func ReadSettings(dataDir string) (Settings, error) {
	var s Settings
	err := runstore.ReadJSON(SettingsPath(dataDir), &s)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	return NormalizeSettings(s), nil
}

func SaveSettings(dataDir string, s Settings) (Settings, error) {
	norm := NormalizeSettings(s)
	if norm.APIBase != "" {
		if err := ValidateBaseURL(norm.APIBase); err != nil {
			return Settings{}, fmt.Errorf("invalid api base: %w", err)
		}
	}
	if norm.MediaBase != "" {
		if err := ValidateBaseURL(norm.MediaBase); err != nil {
			return Settings{}, fmt.Errorf("invalid media base: %w", err)
		}
	}
	if err := runstore.WriteJSON(SettingsPath(dataDir), norm); err != nil {
		return Settings{}, err
	}
	return norm, nil
}

func NormalizeSettings(raw Settings) Settings {
	norm := raw
	norm.APIBase = strings.TrimRight(strings.TrimSpace(norm.APIBase), "/")
	norm.MediaBase = strings.TrimRight(strings.TrimSpace(norm.MediaBase), "/")
	norm.Token = strings.TrimSpace(norm.Token)
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))
	if norm.PollIntervalMS < 0 {
		norm.PollIntervalMS = 0
	}
	if norm.HTTPTimeoutS < 0 {
		norm.HTTPTimeoutS = 0
	}
	if norm.DownloadWorkers < 0 || norm.DownloadWorkers > MaxDownloadWorkers {
		norm.DownloadWorkers = 0
	}
	return norm
}

func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// ParseInterval accepts Go durations ("1.4s") or plain milliseconds ("1400").
func ParseInterval(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("%q must be positive", raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive", raw)
	}
	return d, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}
