// Package imap reads notification mail from an IMAP folder.
package imap

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/transport"
)

var (
	ErrMessageNotFound = errors.New("imap message not found")
	ErrInvalidID       = errors.New("imap message id is not a uid")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
	Policy             transport.Policy
}

// Mailbox is one authenticated session on a selected folder. Every call is
// bounded by the policy timeout; a failed call drops the connection and the
// retry dials again.
type Mailbox struct {
	opts   Options
	client *imapclient.Client
	logger *slog.Logger
}

// Dial connects, logs in and selects the folder read-only.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Mailbox, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = transport.DefaultPolicy
	}
	m := &Mailbox{opts: opts, logger: logger}
	err := transport.Retry(ctx, opts.Policy, "imap connect", logger, func(ctx context.Context) error {
		return m.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mailbox) connect(ctx context.Context) error {
	address := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
	options := &imapclient.Options{}

	if m.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         m.opts.Host,
			InsecureSkipVerify: m.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if m.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", address, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	if err := client.Login(m.opts.Username, m.opts.Password).Wait(); err != nil {
		_ = client.Close()
		err = fmt.Errorf("imap login failed: %w", err)
		if ctx.Err() != nil {
			return err
		}
		return transport.Permanent(err)
	}

	if _, err := client.Select(m.folder(), &imapv2.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("select %s: %w", m.folder(), err)
	}

	if m.logger != nil {
		m.logger.Debug("imap connection established", "address", address, "user", m.opts.Username, "folder", m.folder(), "tls", m.opts.UseTLS)
	}
	m.client = client
	return nil
}

// do runs fn on a live connection. The connection is closed when ctx ends so
// a hung command returns instead of blocking the run.
func (m *Mailbox) do(ctx context.Context, op string, fn func(*imapclient.Client) error) error {
	return transport.Retry(ctx, m.opts.Policy, op, m.logger, func(ctx context.Context) error {
		if m.client == nil {
			if err := m.connect(ctx); err != nil {
				return err
			}
		}
		client := m.client
		stop := context.AfterFunc(ctx, func() {
			_ = client.Close()
		})
		err := fn(client)
		if !stop() || (err != nil && !transport.IsPermanent(err)) {
			_ = client.Close()
			m.client = nil
		}
		return err
	})
}

func (m *Mailbox) Search(ctx context.Context, c model.Criteria) ([]string, error) {
	criteria := &imapv2.SearchCriteria{}
	if !c.Since.IsZero() {
		criteria.Since = model.Day(c.Since)
	}
	if c.From != "" {
		criteria.Header = append(criteria.Header, imapv2.SearchCriteriaHeaderField{Key: "From", Value: c.From})
	}
	if c.Subject != "" {
		criteria.Header = append(criteria.Header, imapv2.SearchCriteriaHeaderField{Key: "Subject", Value: c.Subject})
	}

	var uids []imapv2.UID
	err := m.do(ctx, "imap search", func(client *imapclient.Client) error {
		data, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return err
		}
		uids = data.AllUIDs()
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (m *Mailbox) Fetch(ctx context.Context, id string) (model.RawMessage, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return model.RawMessage{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	uid := imapv2.UID(n)

	section := &imapv2.FetchItemBodySection{Peek: true}
	options := &imapv2.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}

	var msg model.RawMessage
	err = m.do(ctx, "imap fetch", func(client *imapclient.Client) error {
		buffers, err := client.Fetch(imapv2.UIDSetNum(uid), options).Collect()
		if err != nil {
			return err
		}
		if len(buffers) == 0 {
			return transport.Permanent(fmt.Errorf("%w: uid %d", ErrMessageNotFound, uid))
		}
		msg = toRawMessage(id, buffers[0], buffers[0].FindBodySection(section))
		return nil
	})
	if err != nil {
		return model.RawMessage{}, err
	}
	return msg, nil
}

func toRawMessage(id string, buf *imapclient.FetchMessageBuffer, raw []byte) model.RawMessage {
	sum := sha256.Sum256(raw)
	msg := model.RawMessage{
		ID:         id,
		Hash:       base64.StdEncoding.EncodeToString(sum[:]),
		ReceivedAt: buf.InternalDate,
		Size:       int64(len(raw)),
		Raw:        raw,
	}
	if env := buf.Envelope; env != nil {
		msg.Subject = env.Subject
		if len(env.From) > 0 {
			msg.From = env.From[0].Addr()
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = env.Date
		}
	}
	return msg
}

func (m *Mailbox) folder() string {
	if m.opts.Folder == "" {
		return "INBOX"
	}
	return m.opts.Folder
}

// Close logs out and releases the connection.
func (m *Mailbox) Close() error {
	if m.client == nil {
		return nil
	}
	client := m.client
	m.client = nil

	done := make(chan error, 1)
	go func() { done <- client.Logout().Wait() }()
	select {
	case err := <-done:
		if err != nil && m.logger != nil {
			m.logger.Warn("imap logout failed", "err", err)
		}
	case <-time.After(5 * time.Second):
		if m.logger != nil {
			m.logger.Warn("imap logout timed out")
		}
	}
	return client.Close()
}
