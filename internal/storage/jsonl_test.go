package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gaslessSwap/internal/model"
)

func TestJsonlStorageAppendsAndReadsSwaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "journal.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	first := model.SwapRecord{ID: "a", Stage: "done", AmountIn: "1000000", QuotedOut: "5"}
	second := model.SwapRecord{ID: "b", Stage: "failed", FailedStage: "liquidity_check", ErrorKind: "insufficient_liquidity"}
	if err := s.RecordSwap(ctx, first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := s.RecordSwap(ctx, second); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := s.PutEvents(ctx, []model.LedgerEvent{{EventName: model.EventTokenSwapped, TxHash: "0x01"}}); err != nil {
		t.Fatalf("put events: %v", err)
	}
	if err := s.PutEvents(ctx, nil); err != nil {
		t.Fatalf("put empty events: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if lines := strings.Count(string(raw), "\n"); lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}

	records, err := ReadSwapRecords(path)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 swap records, got %d", len(records))
	}
	if records[1].ErrorKind != "insufficient_liquidity" || records[1].FailedStage != "liquidity_check" {
		t.Fatalf("record mismatch: %+v", records[1])
	}
}

func TestReadSwapRecordsMissingFile(t *testing.T) {
	records, err := ReadSwapRecords(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records")
	}
}
