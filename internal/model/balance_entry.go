package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BalanceEntry is one cached token balance. Stale is set when the latest fetch failed
// and Amount still holds the previous value.
type BalanceEntry struct {
	Token     common.Address
	Raw       *big.Int
	Amount    decimal.Decimal
	FetchedAt time.Time
	Loading   bool
	Stale     bool
	LastError string
}

// Known reports whether the entry has ever been fetched successfully.
func (e BalanceEntry) Known() bool {
	return !e.FetchedAt.IsZero()
}
