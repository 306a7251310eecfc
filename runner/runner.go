// Package runner executes one sequential poll, persist, render and publish
// pass per notification kind.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mayodev/opsmail/aggregate"
	"github.com/mayodev/opsmail/config"
	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/parse"
	"github.com/mayodev/opsmail/poller"
	"github.com/mayodev/opsmail/publish"
	"github.com/mayodev/opsmail/report"
	"github.com/mayodev/opsmail/state"
	"github.com/mayodev/opsmail/stats"
	"github.com/mayodev/opsmail/upload"
)

// Publisher delivers a rendered report and reports failures to operators.
type Publisher interface {
	Publish(ctx context.Context, msg publish.Message) publish.DeliveryResult
	ReportFailure(ctx context.Context, title string, cause error) error
}

// Deps are the collaborators of a run. Host may be nil, which publishes
// charts as text only. The waste report needs no Mailbox.
type Deps struct {
	Mailbox    poller.Mailbox
	Tracker    state.Tracker
	Aggregator *aggregate.Aggregator
	Renderer   *report.Renderer
	Host       upload.Host
	Publisher  Publisher
}

type Runner struct {
	cfg       config.Config
	deps      Deps
	collector *stats.Collector
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) (*Runner, error) {
	if deps.Aggregator == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("runner needs an aggregator and a renderer")
	}
	if deps.Publisher == nil && !cfg.DryRun {
		return nil, fmt.Errorf("runner needs a publisher outside dry runs")
	}
	if deps.Tracker == nil {
		deps.Tracker = state.NewMemoryTracker()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		collector: stats.NewCollector(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (r *Runner) Collector() *stats.Collector {
	return r.collector
}

// Run polls kind once and returns the counters of this runner so far. The
// caller holds the run lock. Per-message and delivery failures are logged and
// counted; only setup failures are returned.
func (r *Runner) Run(ctx context.Context, kind model.Kind) (stats.Summary, error) {
	if r.deps.Mailbox == nil {
		return stats.Summary{}, fmt.Errorf("runner has no mailbox")
	}
	started := r.now()
	logger := r.logger.With("run", uuid.NewString(), "kind", kind)

	criteria, err := r.criteria(kind, started)
	if err != nil {
		return stats.Summary{}, err
	}
	parser, err := parse.For(kind, parse.Options{
		Categories: r.cfg.Templates.Categories,
		Cities:     r.cfg.Templates.Cities,
	})
	if err != nil {
		return stats.Summary{}, err
	}

	logger.Info("poll started", "from", criteria.From, "subject", criteria.Subject, "since", criteria.Since.Format("02-Jan-2006"), "dryRun", r.cfg.DryRun)
	p := poller.New(r.deps.Mailbox, parser, r.deps.Tracker, r.collector, logger)

	var fresh []model.Record
	for ext, err := range p.Poll(ctx, criteria) {
		if err != nil {
			logger.Error("mailbox transport failure", "err", err)
			r.reportFailure(ctx, logger, "mailbox poll ("+string(kind)+")", err)
			continue
		}
		if r.persist(ctx, logger, ext) {
			fresh = append(fresh, ext.Record)
		}
	}

	if len(fresh) == 0 {
		logger.Info("no new records")
		summary := r.collector.Snapshot()
		stats.LogSummary(logger, summary, "duration", time.Since(started))
		return summary, nil
	}

	window, err := r.window(ctx, kind, fresh)
	if err != nil {
		logger.Error("loading window failed, rendering new records only", "err", err)
		window = aggregate.Window{Kind: kind, Records: fresh}
	}

	art, err := r.deps.Renderer.Render(window)
	if err != nil {
		r.collector.EmitEvent(stats.Event{Stage: stats.StageRender, Type: stats.EventTypeError, Err: err})
		if len(art.Sections) == 0 {
			logger.Error("rendering failed", "err", err)
			summary := r.collector.Snapshot()
			stats.LogSummary(logger, summary, "duration", time.Since(started))
			return summary, nil
		}
		logger.Warn("rendering degraded", "err", err)
	}

	r.deliver(ctx, logger, art)

	summary := r.collector.Snapshot()
	stats.LogSummary(logger, summary, "duration", time.Since(started))
	return summary, nil
}

// RunWasteReport publishes the latest waste weights against their goals.
func (r *Runner) RunWasteReport(ctx context.Context) error {
	logger := r.logger.With("run", uuid.NewString(), "kind", "waste")
	op, err := r.deps.Aggregator.LoadOperational(ctx)
	if err != nil {
		return fmt.Errorf("load waste report: %w", err)
	}
	if op.Taken == "" {
		logger.Info("no waste rows recorded")
		return nil
	}
	r.deliver(ctx, logger, report.OperationalSummary(op))
	return nil
}

// persist appends one extraction and marks its message as ingested. Failures
// skip the record and the run goes on.
func (r *Runner) persist(ctx context.Context, logger *slog.Logger, ext poller.Extraction) bool {
	if r.cfg.DryRun {
		logger.Info("dry run: would append record", "messageID", ext.MessageID, "record", fmt.Sprintf("%+v", ext.Record))
		r.collector.EmitEvent(stats.Event{Stage: stats.StagePersist, Type: stats.EventTypeDryRunAppend, MessageID: ext.MessageID})
		return true
	}

	if err := r.deps.Aggregator.Append(ctx, ext.Record); err != nil {
		logger.Error("append failed, record skipped", "messageID", ext.MessageID, "err", err)
		r.collector.EmitEvent(stats.Event{Stage: stats.StagePersist, Type: stats.EventTypeError, MessageID: ext.MessageID, Err: err})
		return false
	}
	r.collector.EmitEvent(stats.Event{Stage: stats.StagePersist, Type: stats.EventTypeAppended, MessageID: ext.MessageID})

	if err := r.deps.Tracker.MarkProcessed(ext.Hash, ext.MessageID, ext.Record.Kind()); err != nil {
		logger.Warn("failed to record ingested message", "messageID", ext.MessageID, "err", err)
	}
	return true
}

// window returns the rows the renderer consumes: the rolling window for
// scores, the new records for everything else.
func (r *Runner) window(ctx context.Context, kind model.Kind, fresh []model.Record) (aggregate.Window, error) {
	if kind != model.KindCEM {
		return aggregate.Window{Kind: kind, Records: fresh}, nil
	}

	size := r.cfg.Templates.WindowSize
	window, err := r.deps.Aggregator.LoadWindow(ctx, kind, size)
	if err != nil {
		return window, err
	}
	if r.cfg.DryRun {
		window.Records = append(window.Records, fresh...)
		if len(window.Records) > size {
			window.Records = window.Records[len(window.Records)-size:]
		}
	}
	return window, nil
}

func (r *Runner) deliver(ctx context.Context, logger *slog.Logger, art report.Artifact) {
	msg := publish.Message{Title: art.Title, Sections: art.Sections}

	if art.Chart != nil && r.deps.Host != nil && !r.cfg.DryRun {
		url, err := r.deps.Host.Put(ctx, art.ChartName, art.Chart)
		if err != nil {
			logger.Warn("chart upload failed, publishing text only", "err", err)
			r.collector.EmitEvent(stats.Event{Stage: stats.StageRender, Type: stats.EventTypeError, Err: err})
		} else {
			msg.ImageURL = url
			msg.ImageTitle = art.Title + " Chart"
		}
	}

	if r.cfg.DryRun {
		logger.Info("dry run: would publish", "title", msg.Title, "text", art.Summary())
		return
	}

	res := r.deps.Publisher.Publish(ctx, msg)
	if !res.Delivered {
		r.collector.EmitEvent(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypePublishFailed, Err: res.Err})
		return
	}
	r.collector.EmitEvent(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypePublished})
}

func (r *Runner) reportFailure(ctx context.Context, logger *slog.Logger, title string, cause error) {
	if r.cfg.DryRun || r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.ReportFailure(ctx, title, cause); err != nil {
		logger.Error("operator report failed", "err", err)
	}
}

func (r *Runner) criteria(kind model.Kind, now time.Time) (model.Criteria, error) {
	kt, ok := r.cfg.Templates.Kinds[kind]
	if !ok {
		return model.Criteria{}, fmt.Errorf("no template for kind %q", kind)
	}
	return model.Criteria{
		From:    kt.From,
		Subject: kt.Subject,
		Since:   model.Day(now).AddDate(0, 0, -kt.LookbackDays),
	}, nil
}
