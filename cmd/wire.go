// Package cmd holds the operator subcommands and the constructors that turn
// a Config into live collaborators.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mayodev/opsmail/aggregate"
	"github.com/mayodev/opsmail/config"
	"github.com/mayodev/opsmail/imap"
	"github.com/mayodev/opsmail/mbox"
	"github.com/mayodev/opsmail/poller"
	"github.com/mayodev/opsmail/publish"
	"github.com/mayodev/opsmail/report"
	"github.com/mayodev/opsmail/runner"
	"github.com/mayodev/opsmail/sheets"
	"github.com/mayodev/opsmail/state"
	"github.com/mayodev/opsmail/transport"
	"github.com/mayodev/opsmail/upload"
)

// Policy is the transport policy selected by --timeout and --retries.
func Policy(cfg config.Config) transport.Policy {
	p := transport.DefaultPolicy
	p.Timeout = cfg.Timeout
	p.Attempts = cfg.Retries + 1
	return p
}

// OpenMailbox returns the mbox archive or the IMAP folder named by cfg.
func OpenMailbox(ctx context.Context, cfg config.Config, logger *slog.Logger) (poller.Mailbox, io.Closer, error) {
	if err := cfg.RequireMailbox(); err != nil {
		return nil, nil, err
	}
	if cfg.MboxPath != "" {
		m, err := mbox.Open(cfg.MboxPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	}

	m, err := imap.Dial(ctx, imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Folder:             cfg.Folder,
		Policy:             Policy(cfg),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("imap.Dial: %w", err)
	}
	return m, m, nil
}

// OpenStore returns the CSV directory or Google Sheets store named by cfg.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (sheets.Store, error) {
	if err := cfg.RequireStore(); err != nil {
		return nil, err
	}
	if cfg.CSVDir != "" {
		return sheets.NewCSVDir(cfg.CSVDir)
	}
	return sheets.NewGoogle(ctx, cfg.GoogleCredentials, Policy(cfg), logger)
}

func NewAggregator(cfg config.Config, store sheets.Store, logger *slog.Logger) (*aggregate.Aggregator, error) {
	t := cfg.Templates
	return aggregate.New(store, aggregate.Options{
		SheetID:         cfg.SheetID,
		Worksheets:      t.Worksheets(),
		Categories:      t.Categories,
		WasteSheetID:    cfg.WasteSheetID,
		WasteData:       t.Waste.Data,
		WasteGoals:      t.Waste.Goals,
		WasteCategories: t.Waste.Categories,
	}, logger)
}

// OpenHost returns the chart host named by cfg, or nil when charts are not
// uploaded.
func OpenHost(cfg config.Config, logger *slog.Logger) (upload.Host, error) {
	switch {
	case cfg.UploadDir != "":
		return upload.NewDir(cfg.UploadDir, cfg.PublicBase)
	case cfg.FTPAddr != "":
		return upload.NewFTP(upload.FTPOptions{
			Addr:       cfg.FTPAddr,
			Username:   cfg.FTPUser,
			Password:   cfg.FTPPass,
			Dir:        cfg.FTPDir,
			PublicBase: cfg.PublicBase,
			Policy:     Policy(cfg),
		}, logger)
	}
	return nil, nil
}

// NewPublisher returns nil in dry runs.
func NewPublisher(cfg config.Config, logger *slog.Logger) (*publish.Publisher, error) {
	if err := cfg.RequireWebhook(); err != nil {
		return nil, err
	}
	if cfg.DryRun {
		return nil, nil
	}
	return publish.New(publish.Options{
		URL:         cfg.WebhookURL,
		OperatorURL: cfg.OperatorWebhookURL,
		Policy:      Policy(cfg),
	}, nil, logger)
}

// BuildRunner takes the run lock and wires every collaborator named by cfg.
// withMailbox is false for runs that never read mail. closeAll releases the
// mailbox, the ledger and then the lock.
func BuildRunner(ctx context.Context, cfg config.Config, logger *slog.Logger, withMailbox bool) (*runner.Runner, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close failed", "err", err)
			}
		}
	}
	fail := func(err error) (*runner.Runner, func(), error) {
		closeAll()
		return nil, nil, err
	}

	lock, err := runner.AcquireLock(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, lock)

	deps := runner.Deps{Renderer: report.NewRenderer(cfg.Templates.Categories, logger)}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if deps.Aggregator, err = NewAggregator(cfg, store, logger); err != nil {
		return fail(err)
	}
	if deps.Host, err = OpenHost(cfg, logger); err != nil {
		return fail(err)
	}
	pub, err := NewPublisher(cfg, logger)
	if err != nil {
		return fail(err)
	}
	if pub != nil {
		deps.Publisher = pub
	}

	if withMailbox {
		tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
		if err != nil {
			return fail(fmt.Errorf("state tracker: %w", err))
		}
		closers = append(closers, tracker)
		deps.Tracker = tracker

		mailbox, closer, err := OpenMailbox(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closer)
		deps.Mailbox = mailbox
	}

	r, err := runner.New(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	return r, closeAll, nil
}
