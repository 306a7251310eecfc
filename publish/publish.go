// Package publish delivers rendered reports to a chat webhook. Delivery
// failures are reported, never fatal.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mayodev/opsmail/transport"
)

// Message is what gets published: a title used as notification text,
// markdown sections, and an optional hosted image.
type Message struct {
	Title      string
	Sections   []string
	ImageURL   string
	ImageTitle string
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Title    *text  `json:"title,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

type payload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks,omitempty"`
}

// DeliveryResult is the outcome of one publish call.
type DeliveryResult struct {
	Delivered bool
	Status    int
	Err       error
}

// Options configures the webhook targets. OperatorURL receives failure
// reports and may be empty.
type Options struct {
	URL         string
	OperatorURL string
	Policy      transport.Policy
}

type Publisher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New builds a publisher. client may be nil.
func New(opts Options, client *http.Client, logger *slog.Logger) (*Publisher, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{opts: opts, client: client, logger: logger}, nil
}

// Publish posts msg once, with the retry budget of the transport policy.
// A failed delivery is logged and reported to the operator channel.
func (p *Publisher) Publish(ctx context.Context, msg Message) DeliveryResult {
	status, err := p.post(ctx, "webhook post", p.opts.URL, build(msg))
	if err == nil {
		p.logger.Info("report published", "title", msg.Title, "status", status)
		return DeliveryResult{Delivered: true, Status: status}
	}

	p.logger.Error("publish failed", "title", msg.Title, "status", status, "err", err)
	if reportErr := p.ReportFailure(ctx, msg.Title, err); reportErr != nil {
		p.logger.Error("operator report failed", "err", reportErr)
	}
	return DeliveryResult{Status: status, Err: err}
}

// ReportFailure tells the operator channel that a delivery failed.
func (p *Publisher) ReportFailure(ctx context.Context, title string, cause error) error {
	if p.opts.OperatorURL == "" {
		return nil
	}
	body := payload{Text: fmt.Sprintf("There was an error posting %q to the announcement channel.\n%v", title, cause)}
	_, err := p.post(ctx, "operator post", p.opts.OperatorURL, body)
	return err
}

func (p *Publisher) post(ctx context.Context, op, url string, body payload) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	var status int
	err = transport.Retry(ctx, p.opts.Policy, op, p.logger, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return transport.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		status = resp.StatusCode
		if status >= 200 && status < 300 {
			return nil
		}
		terr := &transport.Error{Op: op, Status: status, Err: fmt.Errorf("response %q", strings.TrimSpace(string(reply)))}
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return transport.Permanent(terr)
		}
		return terr
	})
	return status, err
}

func build(msg Message) payload {
	out := payload{Text: msg.Title}
	for _, section := range msg.Sections {
		out.Blocks = append(out.Blocks, block{Type: "section", Text: &text{Type: "mrkdwn", Text: section}})
	}
	if msg.ImageURL != "" {
		title := msg.ImageTitle
		if title == "" {
			title = msg.Title
		}
		out.Blocks = append(out.Blocks, block{
			Type:     "image",
			Title:    &text{Type: "plain_text", Text: title},
			ImageURL: msg.ImageURL,
			AltText:  title,
		})
	}
	return out
}
