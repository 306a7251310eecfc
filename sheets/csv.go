package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CSVDir keeps each worksheet as <dir>/<sheetID>/<worksheet>.csv. It is the
// offline stand-in for a hosted spreadsheet.
type CSVDir struct {
	dir string
	mu  sync.Mutex
}

func NewCSVDir(dir string) (*CSVDir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csv directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}
	return &CSVDir{dir: dir}, nil
}

func (c *CSVDir) AppendRow(ctx context.Context, sheetID, worksheet string, values []string, _ Input) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.path(sheetID, worksheet)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create sheet directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open worksheet: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(values); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	return nil
}

func (c *CSVDir) GetRows(ctx context.Context, sheetID, worksheet, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.path(sheetID, worksheet)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open worksheet: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", worksheet, err)
	}
	return selectRows(rows, rng)
}

func (c *CSVDir) path(sheetID, worksheet string) (string, error) {
	for _, part := range []string{sheetID, worksheet} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid sheet path element %q", part)
		}
	}
	return filepath.Join(c.dir, sheetID, worksheet+".csv"), nil
}
