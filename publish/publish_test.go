package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mayodev/opsmail/transport"
)

type webhook struct {
	mu       sync.Mutex
	statuses []int
	bodies   []payload
}

func (w *webhook) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var body payload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.mu.Lock()
		w.bodies = append(w.bodies, body)
		status := http.StatusOK
		if len(w.statuses) > 0 {
			status, w.statuses = w.statuses[0], w.statuses[1:]
		}
		w.mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var fastPolicy = transport.Policy{Attempts: 2}

func TestPublishPayload(t *testing.T) {
	hook := &webhook{}
	srv := hook.server(t)
	p, err := New(Options{URL: srv.URL, Policy: fastPolicy}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := p.Publish(context.Background(), Message{
		Title:      "CEM Update",
		Sections:   []string{"*Month to Date CEM Scores*"},
		ImageURL:   "http://www.mayodev.com/images/plot_10_16.png",
		ImageTitle: "CEM Update Chart",
	})
	if !res.Delivered || res.Status != http.StatusOK || res.Err != nil {
		t.Fatalf("Publish() = %+v", res)
	}

	want := []payload{{
		Text: "CEM Update",
		Blocks: []block{
			{Type: "section", Text: &text{Type: "mrkdwn", Text: "*Month to Date CEM Scores*"}},
			{
				Type:     "image",
				Title:    &text{Type: "plain_text", Text: "CEM Update Chart"},
				ImageURL: "http://www.mayodev.com/images/plot_10_16.png",
				AltText:  "CEM Update Chart",
			},
		},
	}}
	if diff := cmp.Diff(want, hook.bodies); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishRetriesOnceThenReports(t *testing.T) {
	hook := &webhook{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	srv := hook.server(t)
	operator := &webhook{}
	opSrv := operator.server(t)

	p, err := New(Options{URL: srv.URL, OperatorURL: opSrv.URL, Policy: fastPolicy}, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := p.Publish(context.Background(), Message{Title: "Allocation Notification", Sections: []string{"x"}})
	if res.Delivered || res.Status != http.StatusServiceUnavailable {
		t.Fatalf("Publish() = %+v", res)
	}
	var terr *transport.Error
	if !errors.As(res.Err, &terr) || terr.Status != http.StatusServiceUnavailable {
		t.Errorf("Publish() error = %v", res.Err)
	}
	if len(hook.bodies) != 2 {
		t.Errorf("webhook calls = %d, want 2", len(hook.bodies))
	}
	if len(operator.bodies) != 1 || !strings.Contains(operator.bodies[0].Text, "Allocation Notification") {
		t.Errorf("operator reports = %+v", operator.bodies)
	}
}

func TestPublishDoesNotRetryClientErrors(t *testing.T) {
	hook := &webhook{statuses: []int{http.StatusNotFound}}
	srv := hook.server(t)
	p, err := New(Options{URL: srv.URL, Policy: fastPolicy}, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := p.Publish(context.Background(), Message{Title: "OOS"})
	if res.Delivered || res.Status != http.StatusNotFound {
		t.Errorf("Publish() = %+v", res)
	}
	if len(hook.bodies) != 1 {
		t.Errorf("webhook calls = %d, want 1", len(hook.bodies))
	}
}

func TestBuildImageTitleDefaultsToTitle(t *testing.T) {
	got := build(Message{Title: "CEM Update", ImageURL: "http://www.mayodev.com/images/plot_10_16.png"})
	if len(got.Blocks) != 1 || got.Blocks[0].Type != "image" || got.Blocks[0].AltText != "CEM Update" {
		t.Errorf("build() = %+v", got)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Options{}, nil, nil); err == nil {
		t.Error("New() without url expected error")
	}
}
