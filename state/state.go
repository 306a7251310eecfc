// Package state remembers which notification emails were already ingested,
// so re-polling an overlapping date range does not append the same record
// twice.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mayodev/opsmail/model"
)

const ledgerFile = "ingested.jsonl"

type Tracker interface {
	AlreadyProcessed(hash string) bool
	MarkProcessed(hash, messageID string, kind model.Kind) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Processed int
}

type MemoryTracker struct {
	mu        sync.RWMutex
	processed map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{processed: make(map[string]string)}
}

func (m *MemoryTracker) AlreadyProcessed(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.processed[hash]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkProcessed(hash, messageID string, _ model.Kind) error {
	if hash == "" {
		return nil
	}

	m.mu.Lock()
	m.processed[hash] = messageID
	m.mu.Unlock()
	return nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.processed)
	m.mu.RUnlock()
	return Snapshot{Processed: count}
}

// FileTracker appends every ingested message to a JSON-lines ledger and
// reloads it on start.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
	now     func() time.Time
}

type ledgerRecord struct {
	Hash       string     `json:"hash"`
	MessageID  string     `json:"message_id"`
	Kind       model.Kind `json:"kind,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// NewFileTracker loads the ledger in stateDir. With persist false (dry runs)
// new marks are kept in memory only.
func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, ledgerFile),
		persist:       persist,
		now:           time.Now,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open ledger for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriter(file)
	}

	return tracker, nil
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record ledgerRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse ledger line %d: %w", line, err)
		}
		if record.Hash == "" {
			continue
		}

		f.mu.Lock()
		f.processed[record.Hash] = record.MessageID
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	return nil
}

// MarkProcessed records hash and flushes it to disk immediately; a crash
// after an append must not lose the mark.
func (f *FileTracker) MarkProcessed(hash, messageID string, kind model.Kind) error {
	if hash == "" {
		return nil
	}

	f.mu.Lock()
	if _, exists := f.processed[hash]; exists {
		f.mu.Unlock()
		return nil
	}
	f.processed[hash] = messageID
	f.mu.Unlock()

	if !f.persist {
		return nil
	}

	data, err := json.Marshal(ledgerRecord{
		Hash:       hash,
		MessageID:  messageID,
		Kind:       kind,
		IngestedAt: f.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Close flushes and closes the ledger.
func (f *FileTracker) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush ledger: %w", err)
		}
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close ledger: %w", err)
	}
	f.file = nil

	return firstErr
}
