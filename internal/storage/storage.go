package storage

import (
	"context"

	"gaslessSwap/internal/model"
)

// Journal records finished swaps.
type Journal interface {
	RecordSwap(ctx context.Context, record model.SwapRecord) error
}

// EventSink stores decoded ledger events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.LedgerEvent) error
}
