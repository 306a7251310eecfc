package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mayodev/opsmail/aggregate"
	"github.com/mayodev/opsmail/config"
	"github.com/mayodev/opsmail/mbox"
	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/publish"
	"github.com/mayodev/opsmail/report"
	"github.com/mayodev/opsmail/sheets"
	"github.com/mayodev/opsmail/state"
	"github.com/mayodev/opsmail/upload"
)

var runTime = time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)

const cemDigest = `SMG Customer Experience Management
Month to Date Summary for Store 01234 (n: 45)

Likelihood to Return:  72%
Fast Service:          85%
Order Accuracy:        91%
Attentive/Courteous:  100%
Cleanliness:           64%
Taste:                  5%
Overall Satisfaction: 0%
`

type fakePublisher struct {
	mu       sync.Mutex
	fail     bool
	messages []publish.Message
	reports  []string
}

func (f *fakePublisher) Publish(_ context.Context, msg publish.Message) publish.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if f.fail {
		return publish.DeliveryResult{Status: 500, Err: errors.New("status 500")}
	}
	return publish.DeliveryResult{Delivered: true, Status: 200}
}

func (f *fakePublisher) ReportFailure(_ context.Context, title string, _ error) error {
	f.mu.Lock()
	f.reports = append(f.reports, title)
	f.mu.Unlock()
	return nil
}

func cemMessage(contentType, body string) model.RawMessage {
	raw := "From: SMG <SMGMailMgr@whysmg.com>\r\n" +
		"Subject: Your daily CEM digest\r\n" +
		"Date: " + runTime.Add(-time.Hour).Format(time.RFC1123Z) + "\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"\r\n" +
		strings.ReplaceAll(body, "\n", "\r\n")
	return model.RawMessage{From: "SMGMailMgr@whysmg.com", ReceivedAt: runTime.Add(-time.Hour), Raw: []byte(raw)}
}

type fixture struct {
	runner    *Runner
	store     *sheets.Memory
	tracker   state.Tracker
	publisher *fakePublisher
	cfg       config.Config
}

func newFixture(t *testing.T, dryRun bool, messages ...model.RawMessage) *fixture {
	t.Helper()
	cfg := config.Config{
		DryRun:    dryRun,
		StateDir:  t.TempDir(),
		Templates: config.DefaultTemplates(),
	}
	return newFixtureWith(t, cfg, sheets.NewMemory(), state.NewMemoryTracker(), messages...)
}

// newFixtureWith builds a runner over a shared store and tracker, the way two
// scheduled invocations see the same spreadsheet and state directory.
func newFixtureWith(t *testing.T, cfg config.Config, store *sheets.Memory, tracker state.Tracker, messages ...model.RawMessage) *fixture {
	t.Helper()
	var buf bytes.Buffer
	if err := mbox.Write(&buf, messages); err != nil {
		t.Fatalf("mbox.Write() error = %v", err)
	}
	mailbox, err := mbox.Read(&buf, nil)
	if err != nil {
		t.Fatalf("mbox.Read() error = %v", err)
	}

	agg, err := aggregate.New(store, aggregate.Options{
		SheetID:         "cem-sheet",
		Worksheets:      cfg.Templates.Worksheets(),
		Categories:      cfg.Templates.Categories,
		WasteSheetID:    "waste-sheet",
		WasteData:       cfg.Templates.Waste.Data,
		WasteGoals:      cfg.Templates.Waste.Goals,
		WasteCategories: cfg.Templates.Waste.Categories,
	}, nil)
	if err != nil {
		t.Fatalf("aggregate.New() error = %v", err)
	}
	host, err := upload.NewDir(t.TempDir(), "http://www.mayodev.com/images")
	if err != nil {
		t.Fatalf("upload.NewDir() error = %v", err)
	}

	f := &fixture{store: store, tracker: tracker, publisher: &fakePublisher{}, cfg: cfg}
	f.runner, err = New(cfg, Deps{
		Mailbox:    mailbox,
		Tracker:    f.tracker,
		Aggregator: agg,
		Renderer:   report.NewRenderer(cfg.Templates.Categories, nil),
		Host:       host,
		Publisher:  f.publisher,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.runner.now = func() time.Time { return runTime }
	return f
}

func (f *fixture) rows(t *testing.T) [][]string {
	t.Helper()
	rows, err := f.store.GetRows(context.Background(), "cem-sheet", "Daily", "")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	return rows
}

func TestRunOneValidOneCorrupted(t *testing.T) {
	f := newFixture(t, false,
		cemMessage("text/plain; charset=utf-8", cemDigest),
		cemMessage("application/octet-stream", "AAECAwQFBgcICQ=="),
	)

	summary, err := f.runner.Run(context.Background(), model.KindCEM)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Scanned != 2 || summary.Extracted != 1 || summary.DecodeFailures != 1 || summary.Appended != 1 {
		t.Errorf("summary = %+v", summary)
	}

	rows := f.rows(t)
	want := []string{"10/16/2026", "72", "85", "91", "100", "64", "5", "0", "45"}
	if len(rows) != 1 || strings.Join(rows[0], ",") != strings.Join(want, ",") {
		t.Errorf("rows = %v, want [%v]", rows, want)
	}

	if len(f.publisher.messages) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(f.publisher.messages))
	}
	msg := f.publisher.messages[0]
	if msg.Title != "CEM Update" || len(msg.Sections) != 1 {
		t.Fatalf("published %+v", msg)
	}
	for _, want := range []string{"Out of 45 responses", "Taste", "Overall Satisfaction"} {
		if !strings.Contains(msg.Sections[0], want) {
			t.Errorf("summary %q does not mention %q", msg.Sections[0], want)
		}
	}
	if f.tracker.Snapshot().Processed != 1 {
		t.Errorf("tracker processed = %d, want 1", f.tracker.Snapshot().Processed)
	}
}

func TestRunTwiceDoesNotReingest(t *testing.T) {
	f := newFixture(t, false, cemMessage("text/plain", cemDigest))
	ctx := context.Background()

	if _, err := f.runner.Run(ctx, model.KindCEM); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	summary, err := f.runner.Run(ctx, model.KindCEM)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if summary.Duplicates != 1 || summary.Appended != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if got := len(f.rows(t)); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
	if got := len(f.publisher.messages); got != 1 {
		t.Errorf("publish calls = %d, want 1", got)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, true, cemMessage("text/plain", cemDigest))

	summary, err := f.runner.Run(context.Background(), model.KindCEM)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.DryRunAppended != 1 || summary.Appended != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(f.rows(t)) != 0 || len(f.publisher.messages) != 0 || f.tracker.Snapshot().Processed != 0 {
		t.Errorf("dry run had side effects: rows=%d published=%d marked=%d",
			len(f.rows(t)), len(f.publisher.messages), f.tracker.Snapshot().Processed)
	}
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, false, cemMessage("text/plain", cemDigest))
	f.publisher.fail = true

	summary, err := f.runner.Run(context.Background(), model.KindCEM)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.PublishFailed != 1 || summary.Appended != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunStockKinds(t *testing.T) {
	raw := "From: dc@example.com\r\n" +
		"Subject: OOS Notice\r\n" +
		"Date: " + runTime.Add(-20*time.Hour).Format(time.RFC1123Z) + "\r\n" +
		"\r\n" +
		"Item #204411 Waffle Potato Fries this item was out of stock until 10/20. the product will ship then.\r\n"
	f := newFixture(t, false, model.RawMessage{From: "dc@example.com", ReceivedAt: runTime.Add(-20 * time.Hour), Raw: []byte(raw)})

	if _, err := f.runner.Run(context.Background(), model.KindOutOfStock); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.publisher.messages) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(f.publisher.messages))
	}
	msg := f.publisher.messages[0]
	want := "*O204411 - Waffle Potato Fries*\nthis item was out of stock until 10/20."
	if msg.Title != "Out of Stock Notification" || len(msg.Sections) != 1 || msg.Sections[0] != want {
		t.Errorf("published %+v", msg)
	}
	if msg.ImageURL != "" {
		t.Errorf("stock notice carries an image: %q", msg.ImageURL)
	}
}

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if _, err := AcquireLock(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second AcquireLock() error = %v, want ErrLocked", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	again.Close()
}

func TestOverlappingRunsShareLedger(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StateDir: t.TempDir(), Templates: config.DefaultTemplates()}
	store := sheets.NewMemory()
	msg := cemMessage("text/plain", cemDigest)

	lockA, err := AcquireLock(cfg.StateDir)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	trackerA, err := state.NewFileTracker(cfg.StateDir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	a := newFixtureWith(t, cfg, store, trackerA, msg)
	if _, err := a.runner.Run(ctx, model.KindCEM); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// A second invocation cannot load the ledger while the first still runs.
	if _, err := AcquireLock(cfg.StateDir); !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock() during run error = %v, want ErrLocked", err)
	}
	if _, err := a.runner.Run(ctx, model.KindOutOfStock); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	trackerA.Close()
	lockA.Close()

	lockB, err := AcquireLock(cfg.StateDir)
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	defer lockB.Close()
	trackerB, err := state.NewFileTracker(cfg.StateDir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	defer trackerB.Close()
	b := newFixtureWith(t, cfg, store, trackerB, msg)

	summary, err := b.runner.Run(ctx, model.KindCEM)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.Duplicates != 1 || summary.Appended != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if got := len(a.rows(t)); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
	if got := len(b.publisher.messages); got != 0 {
		t.Errorf("publish calls = %d, want 0", got)
	}
}

func TestRunWasteReport(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for _, row := range [][]string{{"Type", "Goal"}, {"Filets", "5"}, {"Spicy", "2"}} {
		if err := f.store.AppendRow(ctx, "waste-sheet", "Goals", row, sheets.Raw); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.store.AppendRow(ctx, "waste-sheet", "Data", []string{"2026-10-16 12:55:40", "5", "1.5"}, sheets.Raw); err != nil {
		t.Fatal(err)
	}

	if err := f.runner.RunWasteReport(ctx); err != nil {
		t.Fatalf("RunWasteReport() error = %v", err)
	}
	if len(f.publisher.messages) != 1 || f.publisher.messages[0].Title != report.WasteTitle {
		t.Fatalf("published %+v", f.publisher.messages)
	}
	text := strings.Join(f.publisher.messages[0].Sections, "\n")
	if !strings.Contains(text, "_Filets: 5 lbs._") || !strings.Contains(text, "Spicy: 1.5 lbs.") {
		t.Errorf("waste report = %q", text)
	}
}
