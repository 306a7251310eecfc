package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/config"
)

// SetupLogger builds the text logger for cfg. With a log directory the output
// is also written to a timestamped file, closed by the returned cleanup.
func SetupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("opsmail-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}

// Load parses the flags of cmd and installs the logger. The returned
// cleanup closes the log file.
func Load(cmd *cobra.Command) (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, cleanup, err := SetupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, func() { _ = cleanup() }, nil
}
