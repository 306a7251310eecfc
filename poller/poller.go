// Package poller drives the resolver and a format parser over the messages
// a mailbox returns for one notification kind.
package poller

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/mayodev/opsmail/decode"
	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/parse"
	"github.com/mayodev/opsmail/state"
	"github.com/mayodev/opsmail/stats"
)

// Mailbox is the mail collaborator. Implementations apply their own
// timeouts and retries.
type Mailbox interface {
	Search(ctx context.Context, c model.Criteria) ([]string, error)
	Fetch(ctx context.Context, id string) (model.RawMessage, error)
}

// EventSink receives one event per message outcome.
type EventSink interface {
	EmitEvent(evt stats.Event)
}

// Extraction is a successfully parsed message.
type Extraction struct {
	MessageID string
	Hash      string
	Record    model.Record
}

type Poller struct {
	mailbox Mailbox
	parser  parse.Parser
	tracker state.Tracker
	events  EventSink
	logger  *slog.Logger
}

// New builds a poller. tracker and events may be nil.
func New(mailbox Mailbox, parser parse.Parser, tracker state.Tracker, events EventSink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		mailbox: mailbox,
		parser:  parser,
		tracker: tracker,
		events:  events,
		logger:  logger.With("kind", parser.Kind()),
	}
}

// Poll yields one Extraction per message that resolves and parses. Messages
// that fail to decode or parse are logged and skipped. Transport errors are
// yielded with a zero Extraction; a failed search ends the sequence, a
// failed fetch only skips that message.
func (p *Poller) Poll(ctx context.Context, c model.Criteria) iter.Seq2[Extraction, error] {
	return func(yield func(Extraction, error) bool) {
		ids, err := p.mailbox.Search(ctx, c)
		if err != nil {
			p.emit(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
			yield(Extraction{}, err)
			return
		}
		p.logger.Debug("mailbox search", "from", c.From, "subject", c.Subject, "since", c.Since.Format("02-Jan-2006"), "matches", len(ids))

		for _, id := range ids {
			if ctx.Err() != nil {
				yield(Extraction{}, ctx.Err())
				return
			}

			msg, err := p.mailbox.Fetch(ctx, id)
			if err != nil {
				p.logger.Error("fetch failed", "messageID", id, "err", err)
				p.emit(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, MessageID: id, Err: err})
				if !yield(Extraction{}, err) {
					return
				}
				continue
			}
			p.emit(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeScanned, MessageID: id})

			if p.tracker != nil && p.tracker.AlreadyProcessed(msg.Hash) {
				p.logger.Debug("message already ingested", "messageID", id)
				p.emit(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeDuplicate, MessageID: id})
				continue
			}

			rec, ok := p.extract(msg)
			if !ok {
				continue
			}
			if !yield(Extraction{MessageID: id, Hash: msg.Hash, Record: rec}, nil) {
				return
			}
		}
	}
}

func (p *Poller) extract(msg model.RawMessage) (model.Record, bool) {
	body, err := decode.Resolve(msg.Raw)
	if err != nil {
		p.logger.Warn("skipping message: decode failure", "messageID", msg.ID, "subject", msg.Subject, "err", err)
		p.emit(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeDecodeFailed, MessageID: msg.ID, Err: err})
		return nil, false
	}

	rec, err := p.parser.Parse(body, msg.ReceivedAt)
	if err != nil {
		attrs := []any{"messageID", msg.ID, "subject", msg.Subject, "err", err}
		var fieldErr *parse.FieldError
		if errors.As(err, &fieldErr) {
			attrs = append(attrs, "field", fieldErr.Field)
		}
		p.logger.Warn("skipping message: parse failure", attrs...)
		p.emit(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeParseFailed, MessageID: msg.ID, Err: err})
		return nil, false
	}

	p.emit(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeExtracted, MessageID: msg.ID})
	return rec, true
}

func (p *Poller) emit(evt stats.Event) {
	if p.events != nil {
		p.events.EmitEvent(evt)
	}
}
