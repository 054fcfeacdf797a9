package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gaslessSwap/internal/model"
)

var (
	// ErrInvalidAmount is returned for zero or overflowing amounts.
	ErrInvalidAmount = model.NewKindError(model.ErrorKindInvalidAmount, errors.New("amount must be greater than zero"))
	// ErrUnsupportedToken is returned when a token is neither side of the pool.
	ErrUnsupportedToken = model.NewKindError(model.ErrorKindUnsupportedPair, errors.New("token not part of pool"))
	// ErrInsufficientBalance is returned by the bank when the sender cannot cover a transfer.
	ErrInsufficientBalance = model.NewKindError(model.ErrorKindTransferFailed, errors.New("insufficient balance"))
	// ErrInsufficientAllowance is returned by the bank when the spender is not authorized for the amount.
	ErrInsufficientAllowance = model.NewKindError(model.ErrorKindTransferFailed, errors.New("insufficient allowance"))
)

// InsufficientLiquidityError reports a swap whose output exceeds the opposing reserve.
type InsufficientLiquidityError struct {
	Required  *uint256.Int
	Available *uint256.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity: required=%s available=%s", e.Required.ToBig(), e.Available.ToBig())
}

func (e *InsufficientLiquidityError) Kind() model.ErrorKind { return model.ErrorKindInsufficientLiquidity }

// UnauthorizedError reports an owner-only call from another account.
type UnauthorizedError struct {
	Caller common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized account: %s", e.Caller.Hex())
}

func (e *UnauthorizedError) Kind() model.ErrorKind { return model.ErrorKindUnauthorized }
