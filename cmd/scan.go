package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/mbox"
	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/parse"
	"github.com/mayodev/opsmail/poller"
	"github.com/mayodev/opsmail/progress"
	"github.com/mayodev/opsmail/stats"
)

// failure is one message that did not yield a record.
type failure struct {
	Kind      model.Kind
	MessageID string
	Stage     stats.Stage
	Err       error
}

// failureLog keeps the failure events of one kind and counts the rest.
type failureLog struct {
	kind      model.Kind
	collector *stats.Collector
	failures  []failure
}

func (f *failureLog) EmitEvent(evt stats.Event) {
	f.collector.EmitEvent(evt)
	switch evt.Type {
	case stats.EventTypeDecodeFailed, stats.EventTypeParseFailed, stats.EventTypeError:
		f.failures = append(f.failures, failure{Kind: f.kind, MessageID: evt.MessageID, Stage: evt.Stage, Err: evt.Err})
	}
}

// NewScanCommand replays an mbox archive through the parsers without
// persisting anything. It shows how well the templates still match.
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [mbox file]",
		Short: "Check an mbox archive against the notification templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := Load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			days, err := cmd.Flags().GetInt("days")
			if err != nil {
				return err
			}
			reportDir, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}

			archive, err := mbox.Open(args[0], logger)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := cmd.Context()
			table := pterm.TableData{{"Kind", "Matched", "Extracted", "Decode failures", "Parse failures", "Errors"}}
			var failures []failure

			for _, kind := range cfg.Kinds {
				kt := cfg.Templates.Kinds[kind]
				criteria := model.Criteria{From: kt.From, Subject: kt.Subject}
				if days > 0 {
					criteria.Since = model.Day(time.Now()).AddDate(0, 0, -days)
				}
				parser, err := parse.For(kind, parse.Options{Categories: cfg.Templates.Categories, Cities: cfg.Templates.Cities})
				if err != nil {
					return err
				}
				ids, err := archive.Search(ctx, criteria)
				if err != nil {
					return err
				}

				log := &failureLog{kind: kind, collector: stats.NewCollector()}
				bar := progress.New("Scanning "+string(kind), len(ids), cfg.LogLevel == "info", log)
				for _, err := range poller.New(archive, parser, nil, bar, logger).Poll(ctx, criteria) {
					if err != nil {
						logger.Error("scan failed", "kind", kind, "err", err)
					}
				}
				bar.Stop()

				s := log.collector.Snapshot()
				table = append(table, []string{
					string(kind),
					strconv.Itoa(len(ids)),
					strconv.Itoa(s.Extracted),
					strconv.Itoa(s.DecodeFailures),
					strconv.Itoa(s.ParseFailures),
					strconv.Itoa(s.Errors),
				})
				failures = append(failures, log.failures...)
			}

			if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
				return err
			}

			if reportDir != "" {
				path, err := saveFailureReport(failures, reportDir)
				if err != nil {
					return fmt.Errorf("error saving CSV report: %w", err)
				}
				pterm.Info.Printf("Failures saved to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "Only scan messages from the last N days (default: whole archive)")
	cmd.Flags().StringP("output", "o", "", "Directory for a CSV report of failed messages")
	return cmd
}

func saveFailureReport(failures []failure, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report_failures.csv")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Kind", "Message", "Stage", "Error"}); err != nil {
		return "", err
	}
	for _, f := range failures {
		reason := ""
		if f.Err != nil {
			reason = f.Err.Error()
		}
		if err := writer.Write([]string{string(f.Kind), f.MessageID, string(f.Stage), reason}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return path, nil
}
