package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yt-clip-studio/internal/config"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/sim"
	"yt-clip-studio/internal/ytdlp"
)

func main() {
	cfg, err := config.LoadSim()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stdout)

	db, err := sim.OpenDB(cfg.DBPath, logging.WithComponent(logger, "db"))
	if err != nil {
		logger.Error("open database failed", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	repo := sim.NewRepository(db.Conn())
	opts := sim.ServiceOptions{
		Renderer: sim.NewRenderer(cfg.MediaDir, cfg.RenderClips),
		Logger:   logging.WithComponent(logger, "service"),
	}
	if cfg.Probe {
		prober := ytdlp.NewProber()
		if prober.Available() {
			opts.Prober = prober
		} else {
			logger.Warn("SIM_PROBE set but yt-dlp not found; metadata probing disabled")
		}
	}
	service := sim.NewService(repo, opts)
	runner := sim.NewRunner(service, repo, cfg.Tick, logging.WithComponent(logger, "runner"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	router := sim.NewRouter(sim.ServerConfig{
		Service:   service,
		Runner:    runner,
		MediaDir:  cfg.MediaDir,
		Logger:    logging.WithComponent(logger, "http"),
		StartTime: time.Now(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.Addr, "db", cfg.DBPath, "media", cfg.MediaDir, "tick", cfg.Tick.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	logger.Info("server stopped")
}
