// Package aggregate persists extracted records as spreadsheet rows and loads
// the most recent rows back as a rolling window.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/sheets"
)

// ErrPartialRecord rejects a record that lacks a required field.
var ErrPartialRecord = errors.New("partial record")

// PersistenceError is a failed append or read of the backing table.
type PersistenceError struct {
	Op        string
	Worksheet string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Worksheet, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Options names the spreadsheet and worksheets used per kind.
type Options struct {
	SheetID    string
	Worksheets map[model.Kind]string
	Categories []string

	WasteSheetID    string
	WasteData       string
	WasteGoals      string
	WasteCategories []string
}

// Window is the last rows of one kind in chronological (insertion) order.
type Window struct {
	Kind    model.Kind
	Records []model.Record
}

// Operational is the latest waste row compared against the goal sheet.
type Operational struct {
	Taken   string
	Metrics []model.Metric
}

type Aggregator struct {
	store   sheets.Store
	opts    Options
	layouts map[model.Kind]layout
	logger  *slog.Logger
}

func New(store sheets.Store, opts Options, logger *slog.Logger) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("sheet store is nil")
	}
	if len(opts.Categories) == 0 {
		return nil, fmt.Errorf("no score categories configured")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{
		store: store,
		opts:  opts,
		layouts: map[model.Kind]layout{
			model.KindCEM:        scoreLayout(opts.Categories),
			model.KindCatering:   cateringLayout,
			model.KindAllocation: stockLayout(model.KindAllocation),
			model.KindOutOfStock: stockLayout(model.KindOutOfStock),
		},
		logger: logger,
	}, nil
}

// Header returns the column names of kind in persisted order.
func (a *Aggregator) Header(kind model.Kind) []string {
	return append([]string(nil), a.layouts[kind].header...)
}

// Encode returns the row rec is persisted as.
func (a *Aggregator) Encode(rec model.Record) ([]string, error) {
	l, ok := a.layouts[rec.Kind()]
	if !ok {
		return nil, fmt.Errorf("no layout for kind %q", rec.Kind())
	}
	return l.encode(rec)
}

// Append writes rec as one row. Partial records are rejected before any I/O.
func (a *Aggregator) Append(ctx context.Context, rec model.Record) error {
	if model.ProvenanceOf(rec) != model.Complete {
		return fmt.Errorf("%w: %s missing %s", ErrPartialRecord, rec.Kind(), strings.Join(rec.Missing(), ", "))
	}
	l, worksheet, err := a.lookup(rec.Kind())
	if err != nil {
		return err
	}
	row, err := l.encode(rec)
	if err != nil {
		return err
	}
	if err := a.store.AppendRow(ctx, a.opts.SheetID, worksheet, row, l.input); err != nil {
		return &PersistenceError{Op: "append", Worksheet: worksheet, Err: err}
	}
	a.logger.Debug("row appended", "kind", rec.Kind(), "worksheet", worksheet)
	return nil
}

// LoadWindow reads the last n rows of kind. A header row and rows that no
// longer decode are skipped.
func (a *Aggregator) LoadWindow(ctx context.Context, kind model.Kind, n int) (Window, error) {
	window := Window{Kind: kind}
	if n <= 0 {
		return window, nil
	}
	l, worksheet, err := a.lookup(kind)
	if err != nil {
		return window, err
	}

	rows, err := a.store.GetRows(ctx, a.opts.SheetID, worksheet, "")
	if err != nil {
		return window, &PersistenceError{Op: "read", Worksheet: worksheet, Err: err}
	}
	if len(rows) > 0 && isHeader(rows[0], l.header) {
		rows = rows[1:]
	}

	for i, row := range rows {
		rec, err := l.decode(row)
		if err != nil {
			a.logger.Warn("skipping unreadable row", "worksheet", worksheet, "row", i+2, "err", err)
			continue
		}
		window.Records = append(window.Records, rec)
	}
	if len(window.Records) > n {
		window.Records = window.Records[len(window.Records)-n:]
	}
	return window, nil
}

// LoadOperational reads the latest waste row and pairs every configured
// category with its goal.
func (a *Aggregator) LoadOperational(ctx context.Context) (Operational, error) {
	var op Operational
	sheetID := a.opts.WasteSheetID
	if sheetID == "" {
		return op, fmt.Errorf("waste sheet id is empty")
	}

	goalRows, err := a.store.GetRows(ctx, sheetID, a.opts.WasteGoals, "")
	if err != nil {
		return op, &PersistenceError{Op: "read", Worksheet: a.opts.WasteGoals, Err: err}
	}
	goals := make(map[string]float64, len(goalRows))
	for _, row := range goalRows {
		if len(row) < 2 || strings.EqualFold(strings.TrimSpace(row[0]), "Type") {
			continue
		}
		goal, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			a.logger.Warn("skipping unreadable goal", "type", row[0], "err", err)
			continue
		}
		goals[strings.TrimSpace(row[0])] = goal
	}

	dataRows, err := a.store.GetRows(ctx, sheetID, a.opts.WasteData, "")
	if err != nil {
		return op, &PersistenceError{Op: "read", Worksheet: a.opts.WasteData, Err: err}
	}
	var latest []string
	for i := len(dataRows) - 1; i >= 0; i-- {
		if len(dataRows[i]) > 0 && !isTimestampHeader(dataRows[i][0]) {
			latest = dataRows[i]
			break
		}
	}
	if latest == nil {
		return op, nil
	}

	op.Taken = strings.TrimSpace(latest[0])
	for i, name := range a.opts.WasteCategories {
		value := 0.0
		if i+1 < len(latest) {
			if cell := strings.TrimSpace(latest[i+1]); cell != "" {
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return op, fmt.Errorf("waste column %s: %w", name, err)
				}
				value = v
			}
		}
		goal, ok := goals[name]
		if !ok {
			a.logger.Warn("no goal configured", "type", name)
		}
		op.Metrics = append(op.Metrics, model.Metric{Name: name, Value: value, Goal: goal})
	}
	return op, nil
}

func (a *Aggregator) lookup(kind model.Kind) (layout, string, error) {
	l, ok := a.layouts[kind]
	if !ok {
		return layout{}, "", fmt.Errorf("no layout for kind %q", kind)
	}
	worksheet := a.opts.Worksheets[kind]
	if worksheet == "" {
		return layout{}, "", fmt.Errorf("no worksheet configured for kind %q", kind)
	}
	return l, worksheet, nil
}

// isTimestampHeader reports whether a data row's first cell is a column
// title rather than a timestamp.
func isTimestampHeader(cell string) bool {
	return !strings.ContainsAny(cell, "0123456789")
}
