// Package sheets is the spreadsheet collaborator: an ordered list of rows per
// worksheet, addressed by a sheet identifier and a worksheet name.
package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Input says how the spreadsheet interprets appended cells.
type Input string

const (
	// Raw stores every cell as the literal text given.
	Raw Input = "RAW"
	// UserEntered parses cells as if typed into the sheet, so dates and
	// numbers become typed values and a leading "=" starts a formula.
	UserEntered Input = "USER_ENTERED"
)

// Store appends rows to and reads rows from a worksheet. rng is an A1 row
// range such as "A2:I" or "A2:I40"; an empty rng selects every row. Stores
// that keep text only ignore input.
type Store interface {
	AppendRow(ctx context.Context, sheetID, worksheet string, values []string, input Input) error
	GetRows(ctx context.Context, sheetID, worksheet, rng string) ([][]string, error)
}

// Memory keeps worksheets in memory. It backs dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

func NewMemory() *Memory {
	return &Memory{sheets: make(map[string][][]string)}
}

func (m *Memory) AppendRow(ctx context.Context, sheetID, worksheet string, values []string, _ Input) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := append([]string(nil), values...)

	m.mu.Lock()
	key := sheetKey(sheetID, worksheet)
	m.sheets[key] = append(m.sheets[key], row)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetRows(ctx context.Context, sheetID, worksheet, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	rows := m.sheets[sheetKey(sheetID, worksheet)]
	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	m.mu.Unlock()
	return selectRows(copied, rng)
}

func sheetKey(sheetID, worksheet string) string {
	return sheetID + "\x00" + worksheet
}

// rowBounds reads the 1-based first and last row of an A1 range. last is 0
// when the range is open-ended.
func rowBounds(rng string) (first, last int, err error) {
	rng = strings.TrimSpace(rng)
	if rng == "" {
		return 1, 0, nil
	}
	if idx := strings.LastIndexByte(rng, '!'); idx >= 0 {
		rng = rng[idx+1:]
	}
	start, end, _ := strings.Cut(rng, ":")
	if first, err = rowNumber(start); err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", rng, err)
	}
	if first == 0 {
		first = 1
	}
	if last, err = rowNumber(end); err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", rng, err)
	}
	if last != 0 && last < first {
		return 0, 0, fmt.Errorf("range %q: last row before first", rng)
	}
	return first, last, nil
}

// rowNumber strips the column letters of an A1 cell reference. A bare column
// yields 0.
func rowNumber(cell string) (int, error) {
	digits := strings.TrimLeft(strings.ToUpper(strings.TrimSpace(cell)), "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid row in %q", cell)
	}
	return n, nil
}

func selectRows(rows [][]string, rng string) ([][]string, error) {
	first, last, err := rowBounds(rng)
	if err != nil {
		return nil, err
	}
	if first > len(rows) {
		return nil, nil
	}
	if last == 0 || last > len(rows) {
		last = len(rows)
	}
	return rows[first-1 : last], nil
}
