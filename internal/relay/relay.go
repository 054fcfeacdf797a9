package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gaslessSwap/internal/model"
)

// Receipt status values, matching types.ReceiptStatus*.
const (
	StatusFailed  uint64 = 0
	StatusSuccess uint64 = 1
)

// Result is the confirmation of a sponsored call.
type Result struct {
	Hash        common.Hash
	BlockNumber uint64
	Status      uint64
	GasUsed     uint64
	// RevertReason is set by relayers that can observe it.
	RevertReason string
}

// Succeeded reports whether the call executed without reverting.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Channel submits calls on behalf of an account with fees covered by a sponsor.
type Channel interface {
	Submit(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*Result, error)
}

// revertedError builds the error returned alongside a failed Result.
func revertedError(result *Result) error {
	reason := result.RevertReason
	if reason == "" {
		reason = "execution reverted"
	}
	return model.NewKindError(model.ErrorKindTransactionReverted, fmt.Errorf("tx %s: %s", result.Hash.Hex(), reason))
}

// waitError maps a finished wait context to ReceiptTimeout or Cancelled.
func waitError(parent context.Context, hash common.Hash, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return model.NewKindError(model.ErrorKindCancelled, fmt.Errorf("await %s: %w", hash.Hex(), err))
	}
	return model.NewKindError(model.ErrorKindReceiptTimeout, fmt.Errorf("await %s: no receipt after %s", hash.Hex(), timeout))
}

var errUnknownTx = errors.New("unknown transaction")
