// Package progress shows a console progress bar fed by pipeline events.
package progress

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/mayodev/opsmail/stats"
)

// Sink receives pipeline events.
type Sink interface {
	EmitEvent(evt stats.Event)
}

// Bar advances once per scanned message and forwards every event to next.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	next    Sink
	total   int
	mu      sync.Mutex
	enabled bool
}

// New starts a bar over total messages. A disabled bar only forwards.
func New(title string, total int, enabled bool, next Sink) *Bar {
	bar := &Bar{total: total, next: next, enabled: enabled && total > 0}
	if bar.enabled {
		pb, err := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle(title).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			bar.enabled = false
		} else {
			bar.pb = pb
		}
	}
	return bar
}

func (b *Bar) EmitEvent(evt stats.Event) {
	if b.next != nil {
		b.next.EmitEvent(evt)
	}
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("message %s: %v\n", evt.MessageID, evt.Err)
		}
	}
}

// Stop finishes the bar.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
}
