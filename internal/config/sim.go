package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultSimAddr    = ":8000"
	DefaultSimDataDir = ".clip-sim"
	DefaultSimTick    = 2 * time.Second

	EnvSimAddr        = "SIM_ADDR"
	EnvSimDataDir     = "SIM_DATA_DIR"
	EnvSimDBPath      = "SIM_DB_PATH"
	EnvSimMediaDir    = "SIM_MEDIA_DIR"
	EnvSimTick        = "SIM_TICK"
	EnvSimRenderClips = "SIM_RENDER_CLIPS"
	EnvSimProbe       = "SIM_PROBE"
	EnvSimLogLevel    = "SIM_LOG_LEVEL"
)

// SimConfig configures the clip-sim development backend.
type SimConfig struct {
	Addr        string
	DBPath      string
	MediaDir    string
	Tick        time.Duration
	RenderClips bool
	Probe       bool
	LogLevel    string
}

func LoadSim() (SimConfig, error) {
	dataDir := envOrDefault(EnvSimDataDir, DefaultSimDataDir)
	cfg := SimConfig{
		Addr:        envOrDefault(EnvSimAddr, DefaultSimAddr),
		DBPath:      envOrDefault(EnvSimDBPath, filepath.Join(dataDir, "clip-sim.db")),
		MediaDir:    envOrDefault(EnvSimMediaDir, filepath.Join(dataDir, "media")),
		Tick:        DefaultSimTick,
		RenderClips: true,
		LogLevel:    envOrDefault(EnvSimLogLevel, DefaultLogLevel),
	}

	if v := os.Getenv(EnvSimTick); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return SimConfig{}, fmt.Errorf("invalid %s: %w", EnvSimTick, err)
		}
		cfg.Tick = d
	}
	var err error
	if cfg.RenderClips, err = envBool(EnvSimRenderClips, true); err != nil {
		return SimConfig{}, err
	}
	if cfg.Probe, err = envBool(EnvSimProbe, false); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
