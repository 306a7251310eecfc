package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/model"
)

// NewWindowCommand prints the rolling window of one kind as a table.
func NewWindowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window [kind]",
		Short: "Show the most recent persisted rows of a notification kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := Load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			kind := model.Kind(strings.ToLower(args[0]))
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q", args[0])
			}
			rows, err := cmd.Flags().GetInt("rows")
			if err != nil {
				return err
			}
			if rows <= 0 {
				rows = cfg.Templates.WindowSize
			}

			ctx := cmd.Context()
			store, err := OpenStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			agg, err := NewAggregator(cfg, store, logger)
			if err != nil {
				return err
			}
			window, err := agg.LoadWindow(ctx, kind, rows)
			if err != nil {
				return err
			}

			data := pterm.TableData{agg.Header(kind)}
			for _, rec := range window.Records {
				row, err := agg.Encode(rec)
				if err != nil {
					return err
				}
				data = append(data, row)
			}

			pterm.DefaultSection.Printf("%s (last %d of %d requested)", cfg.Templates.Kinds[kind].Worksheet, len(window.Records), rows)
			if len(window.Records) == 0 {
				pterm.Info.Println("No rows recorded yet.")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().Int("rows", 0, "Number of rows to show (default: template window size)")
	return cmd
}
