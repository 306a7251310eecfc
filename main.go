package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/cmd"
	"github.com/mayodev/opsmail/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsmail",
		Short: "Extract vendor notification mail into the store spreadsheets and announce it",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := cmd.Load(c)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("starting opsmail", "kinds", cfg.Kinds, "mbox", cfg.MboxPath, "imapHost", cfg.IMAPHost, "dryRun", cfg.DryRun)
			return run(c.Context(), cfg, logger)
		},
		SilenceUsage: true,
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewWindowCommand(), cmd.NewWasteReportCommand(), cmd.NewScanCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	r, closeAll, err := cmd.BuildRunner(ctx, cfg, logger, true)
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}
	defer closeAll()

	var failed error
	for _, kind := range cfg.Kinds {
		if _, err := r.Run(ctx, kind); err != nil {
			logger.Error("run failed", "kind", kind, "err", err)
			failed = errors.Join(failed, fmt.Errorf("%s: %w", kind, err))
		}
	}

	if cfg.Pushgateway != "" {
		if err := r.Collector().Push(ctx, cfg.Pushgateway, "opsmail", "poll"); err != nil {
			logger.Warn("metrics push failed", "err", err)
		}
	}
	return failed
}
