package cmd

import (
	"github.com/spf13/cobra"
)

// NewWasteReportCommand publishes the latest waste weights against goals.
func NewWasteReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "waste-report",
		Short: "Publish the daily waste report from the waste spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := Load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r, closeAll, err := BuildRunner(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer closeAll()

			logger.Info("starting waste report", "sheet", cfg.WasteSheetID, "dryRun", cfg.DryRun)
			if err := r.RunWasteReport(cmd.Context()); err != nil {
				return err
			}
			if cfg.Pushgateway != "" {
				if err := r.Collector().Push(cmd.Context(), cfg.Pushgateway, "opsmail", "waste-report"); err != nil {
					logger.Warn("metrics push failed", "err", err)
				}
			}
			return nil
		},
	}
}
