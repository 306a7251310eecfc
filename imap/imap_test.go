package imap

import (
	"context"
	"errors"
	"testing"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

func TestDialValidatesOptions(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, Options{Port: 993}, nil); err == nil {
		t.Error("Dial() expected error for empty host")
	}
	if _, err := Dial(ctx, Options{Host: "imap.example.com"}, nil); err == nil {
		t.Error("Dial() expected error for zero port")
	}
}

func TestFetchRejectsNonUID(t *testing.T) {
	m := &Mailbox{}
	for _, id := range []string{"", "abc", "0", "-4"} {
		if _, err := m.Fetch(context.Background(), id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Fetch(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestToRawMessage(t *testing.T) {
	internal := time.Date(2026, 10, 15, 13, 5, 0, 0, time.UTC)
	buf := &imapclient.FetchMessageBuffer{
		UID:          42,
		InternalDate: internal,
		Envelope: &imapv2.Envelope{
			Subject: "OOS Notice",
			From:    []imapv2.Address{{Name: "DC", Mailbox: "dc", Host: "example.com"}},
		},
	}
	raw := []byte("Subject: OOS Notice\r\n\r\n#12 Fries\r\n")

	msg := toRawMessage("42", buf, raw)
	if msg.ID != "42" || msg.Subject != "OOS Notice" || msg.From != "dc@example.com" {
		t.Errorf("toRawMessage() = %+v", msg)
	}
	if !msg.ReceivedAt.Equal(internal) {
		t.Errorf("ReceivedAt = %v, want %v", msg.ReceivedAt, internal)
	}
	if msg.Hash == "" || msg.Size != int64(len(raw)) {
		t.Errorf("hash %q size %d", msg.Hash, msg.Size)
	}
}

func TestToRawMessageFallsBackToEnvelopeDate(t *testing.T) {
	sent := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	buf := &imapclient.FetchMessageBuffer{Envelope: &imapv2.Envelope{Date: sent}}
	if msg := toRawMessage("1", buf, nil); !msg.ReceivedAt.Equal(sent) {
		t.Errorf("ReceivedAt = %v, want %v", msg.ReceivedAt, sent)
	}
}

func TestFolderDefault(t *testing.T) {
	if got := (&Mailbox{}).folder(); got != "INBOX" {
		t.Errorf("folder() = %q", got)
	}
	if got := (&Mailbox{opts: Options{Folder: "Vendors"}}).folder(); got != "Vendors" {
		t.Errorf("folder() = %q", got)
	}
}
