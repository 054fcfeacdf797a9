package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PendingSwap describes one in-flight settlement.
type PendingSwap struct {
	ID              string
	Account         common.Address
	FromToken       common.Address
	ToToken         common.Address
	AmountIn        *big.Int
	QuotedOut       *big.Int
	Stage           Stage
	FailedStage     Stage
	ApprovalReceipt *common.Hash
	SwapReceipt     *common.Hash
	Error           ErrorKind
	ErrorMessage    string
	StartedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy safe to hand to observers.
func (p PendingSwap) Clone() PendingSwap {
	out := p
	if p.AmountIn != nil {
		out.AmountIn = new(big.Int).Set(p.AmountIn)
	}
	if p.QuotedOut != nil {
		out.QuotedOut = new(big.Int).Set(p.QuotedOut)
	}
	if p.ApprovalReceipt != nil {
		h := *p.ApprovalReceipt
		out.ApprovalReceipt = &h
	}
	if p.SwapReceipt != nil {
		h := *p.SwapReceipt
		out.SwapReceipt = &h
	}
	return out
}

// Record converts the swap into its journal representation.
func (p PendingSwap) Record() SwapRecord {
	rec := SwapRecord{
		ID:           p.ID,
		Account:      p.Account.Hex(),
		FromToken:    p.FromToken.Hex(),
		ToToken:      p.ToToken.Hex(),
		AmountIn:     bigString(p.AmountIn),
		QuotedOut:    bigString(p.QuotedOut),
		Stage:        string(p.Stage),
		FailedStage:  string(p.FailedStage),
		ErrorKind:    string(p.Error),
		ErrorMessage: p.ErrorMessage,
		StartedAt:    p.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:   p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:   p.UpdatedAt.Sub(p.StartedAt).Milliseconds(),
	}
	if p.ApprovalReceipt != nil {
		rec.ApprovalTx = p.ApprovalReceipt.Hex()
	}
	if p.SwapReceipt != nil {
		rec.SwapTx = p.SwapReceipt.Hex()
	}
	return rec
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
