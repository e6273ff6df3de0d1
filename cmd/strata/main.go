// Package main is the entry point for the strata terrain viewer.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu/gl46"
	"github.com/Faultbox/strata/internal/engine/input"
	"github.com/Faultbox/strata/internal/engine/window"
	"github.com/Faultbox/strata/internal/logger"
	"github.com/Faultbox/strata/internal/viewer"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.Log
	log.Info("=== strata ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg, log); err != nil {
		log.Error("viewer error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("viewer closed normally")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Window first: it owns the GL context.
	win, err := window.New(window.Config{
		Title:      "strata",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
		Debug:      cfg.Graphics.DebugContext,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	defer win.Close()

	dev, err := gl46.New(gl46.Options{Debug: cfg.Graphics.DebugContext}, log)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	v, err := viewer.New(dev, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create viewer: %w", err)
	}
	defer v.Close()

	return v.Run(win, input.New())
}
