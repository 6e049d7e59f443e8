// Package main provides the entry point for nvbridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-errors/errors"

	"github.com/abdullathedruid/nvbridge/internal/app"
	"github.com/abdullathedruid/nvbridge/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Ensure data directory exists
	if err := cfg.EnsureDataDir(); err != nil {
		return errors.WrapPrefix(err, "creating data directory", 0)
	}

	// The terminal belongs to the UI, so logs go to a file
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.WrapPrefix(err, "opening log file", 0)
	}
	defer logFile.Close()

	level := new(slog.LevelVar)
	level.Set(cfg.Level())
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	var file string
	if len(os.Args) > 1 {
		file = os.Args[1]
	}

	application, err := app.New(context.Background(), app.Options{
		Config:     cfg,
		ConfigPath: cfg.ConfigFile(),
		File:       file,
		Logger:     logger,
		Level:      level,
	})
	if err != nil {
		return errors.WrapPrefix(err, "starting nvbridge", 0)
	}

	logger.Info("started", "file", file, "engine", cfg.Engine.Command)
	return application.Run()
}
