// Package stats counts what happened to each message in a run and exports
// the counts as log attributes and Prometheus metrics.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Stage string

const (
	StageMailbox Stage = "mailbox"
	StageDecode  Stage = "decode"
	StageParse   Stage = "parse"
	StagePersist Stage = "persist"
	StageRender  Stage = "render"
	StagePublish Stage = "publish"
)

type EventType string

const (
	EventTypeScanned       EventType = "scanned"
	EventTypeDuplicate     EventType = "duplicate"
	EventTypeDecodeFailed  EventType = "decode_failed"
	EventTypeParseFailed   EventType = "parse_failed"
	EventTypeExtracted     EventType = "extracted"
	EventTypeAppended      EventType = "appended"
	EventTypeDryRunAppend  EventType = "dry_run_appended"
	EventTypePublished     EventType = "published"
	EventTypePublishFailed EventType = "publish_failed"
	EventTypeError         EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	Detail    string
}

type Summary struct {
	Scanned        int
	Duplicates     int
	DecodeFailures int
	ParseFailures  int
	Extracted      int
	Appended       int
	DryRunAppended int
	Published      int
	PublishFailed  int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"duplicates", s.Duplicates,
		"decodeFailures", s.DecodeFailures,
		"parseFailures", s.ParseFailures,
		"extracted", s.Extracted,
		"appended", s.Appended,
		"dryRunAppended", s.DryRunAppended,
		"published", s.Published,
		"publishFailed", s.PublishFailed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector tallies events. It is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	summary  Summary
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

func NewCollector() *Collector {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsmail",
		Name:      "events_total",
		Help:      "Pipeline events by stage and type.",
	}, []string{"stage", "type"})
	registry := prometheus.NewRegistry()
	registry.MustRegister(events)
	return &Collector{registry: registry, events: events}
}

// EmitEvent records evt.
func (c *Collector) EmitEvent(evt Event) {
	c.events.WithLabelValues(string(evt.Stage), string(evt.Type)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeDecodeFailed:
		c.summary.DecodeFailures++
	case EventTypeParseFailed:
		c.summary.ParseFailures++
	case EventTypeExtracted:
		c.summary.Extracted++
	case EventTypeAppended:
		c.summary.Appended++
	case EventTypeDryRunAppend:
		c.summary.DryRunAppended++
	case EventTypePublished:
		c.summary.Published++
	case EventTypePublishFailed:
		c.summary.PublishFailed++
	case EventTypeError:
		c.summary.Errors++
	}
	if evt.Err != nil {
		c.summary.LastError = evt.Err
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Registry exposes the metrics for a Pushgateway or a test gatherer.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Push sends the counters to a Prometheus Pushgateway under job, grouped by
// the command that produced them. One collector spans every kind of a run.
func (c *Collector) Push(ctx context.Context, url, job, command string) error {
	err := push.New(url, job).
		Gatherer(c.registry).
		Grouping("command", command).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// LogSummary writes the run summary at info level.
func LogSummary(logger *slog.Logger, s Summary, extra ...any) {
	if logger == nil {
		return
	}
	logger.Info("stats summary", append(s.LogAttrs(), extra...)...)
}
