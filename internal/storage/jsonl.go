package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gaslessSwap/internal/model"
)

// JsonlStorage appends swap records, ledger events and decode errors to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// RecordSwap appends one swap record.
func (s *JsonlStorage) RecordSwap(_ context.Context, record model.SwapRecord) error {
	return s.appendLines([]interface{}{record})
}

// PutEvents appends a batch of ledger events.
func (s *JsonlStorage) PutEvents(_ context.Context, events []model.LedgerEvent) error {
	lines := make([]interface{}, 0, len(events))
	for _, ev := range events {
		lines = append(lines, ev)
	}
	return s.appendLines(lines)
}

// PutDecodeErrors appends a batch of decode failures.
func (s *JsonlStorage) PutDecodeErrors(_ context.Context, errs []model.DecodeError) error {
	lines := make([]interface{}, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e)
	}
	return s.appendLines(lines)
}

func (s *JsonlStorage) appendLines(records []interface{}) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// ReadSwapRecords loads every swap record from a JSONL journal. Lines that are
// not swap records are skipped.
func ReadSwapRecords(path string) ([]model.SwapRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.SwapRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record model.SwapRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("decode journal line: %w", err)
		}
		if record.ID == "" {
			continue
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}
