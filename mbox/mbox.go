// Package mbox serves an mbox archive as a read-only mailbox. It backs
// offline replays of exported notification mail and the pipeline tests.
package mbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/mayodev/opsmail/filter"
	"github.com/mayodev/opsmail/model"
)

var ErrUnknownMessage = errors.New("mbox message not found")

// Mailbox holds every message of an archive in memory. Message identifiers
// are the 1-based positions in the archive.
type Mailbox struct {
	path     string
	logger   *slog.Logger
	messages []model.RawMessage
}

// Open reads the archive at path.
func Open(path string, logger *slog.Logger) (*Mailbox, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	m, err := Read(file, logger)
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// Read loads an archive from r.
func Read(r io.Reader, logger *slog.Logger) (*Mailbox, error) {
	m := &Mailbox{logger: logger}
	reader := mboxlib.NewReader(r)

	for idx := 1; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("message %d read: %w", idx, err)
		}

		m.messages = append(m.messages, describe(strconv.Itoa(idx), raw))
	}

	if logger != nil {
		logger.Debug("mbox loaded", "path", m.path, "messages", len(m.messages))
	}
	return m, nil
}

// describe fills the metadata of a raw message. Unparseable headers leave the
// metadata empty; the resolver reports the message later.
func describe(id string, raw []byte) model.RawMessage {
	sum := sha256.Sum256(raw)
	msg := model.RawMessage{
		ID:   id,
		Hash: base64.StdEncoding.EncodeToString(sum[:]),
		Size: int64(len(raw)),
		Raw:  raw,
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return msg
	}
	msg.From = parsed.Header.Get("From")
	msg.Subject = parsed.Header.Get("Subject")
	if date := parsed.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = t
		}
	}
	return msg
}

func (m *Mailbox) Search(ctx context.Context, c model.Criteria) ([]string, error) {
	f, err := filter.New(filter.ForSender(c.From, c.Subject))
	if err != nil {
		return nil, fmt.Errorf("build search filter: %w", err)
	}

	var ids []string
	for _, msg := range m.messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !since(msg.ReceivedAt, c.Since) {
			continue
		}
		header, _ := filter.SplitRawMessage(msg.Raw)
		if !f.Allows(header) {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

func (m *Mailbox) Fetch(ctx context.Context, id string) (model.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return model.RawMessage{}, err
	}
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 1 || idx > len(m.messages) {
		return model.RawMessage{}, fmt.Errorf("%w: %q", ErrUnknownMessage, id)
	}
	return m.messages[idx-1], nil
}

func (m *Mailbox) Close() error {
	m.messages = nil
	return nil
}

// since mirrors IMAP SINCE: the message date must fall on or after the
// calendar day of bound.
func since(received, bound time.Time) bool {
	if bound.IsZero() {
		return true
	}
	if received.IsZero() {
		return false
	}
	return !model.Day(received).Before(model.Day(bound))
}

// Write stores messages as an mbox archive.
func Write(w io.Writer, messages []model.RawMessage) error {
	writer := mboxlib.NewWriter(w)
	for i, msg := range messages {
		from := msg.From
		if from == "" {
			from = "MAILER-DAEMON"
		}
		mw, err := writer.CreateMessage(from, msg.ReceivedAt)
		if err != nil {
			return fmt.Errorf("message %d: %w", i+1, err)
		}
		if _, err := mw.Write(msg.Raw); err != nil {
			return fmt.Errorf("message %d write: %w", i+1, err)
		}
	}
	return writer.Close()
}
