package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RemoteLedger reads a deployed exchange ledger and its tokens over eth_call.
type RemoteLedger struct {
	caller  ContractCaller
	address common.Address
}

func NewRemoteLedger(caller ContractCaller, address common.Address) *RemoteLedger {
	return &RemoteLedger{caller: caller, address: address}
}

// Address returns the ledger contract address.
func (r *RemoteLedger) Address() common.Address { return r.address }

// Quote calls quoteAtoB or quoteBtoA.
func (r *RemoteLedger) Quote(ctx context.Context, aToB bool, amountIn *big.Int) (*big.Int, error) {
	method := MethodQuoteBtoA
	if aToB {
		method = MethodQuoteAtoB
	}
	values, err := r.callLedger(ctx, method, amountIn)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Reserves calls getReserves.
func (r *RemoteLedger) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	return r.pair(ctx, MethodGetReserves)
}

// ExchangeRate calls getExchangeRate and returns (numerator, denominator).
func (r *RemoteLedger) ExchangeRate(ctx context.Context) (*big.Int, *big.Int, error) {
	return r.pair(ctx, MethodGetExchangeRate)
}

// Tokens returns the (tokenA, tokenB) addresses configured on the ledger.
func (r *RemoteLedger) Tokens(ctx context.Context) (common.Address, common.Address, error) {
	values, err := r.callLedger(ctx, MethodTokenA)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	tokenA, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("tokenA: %w", err)
	}
	values, err = r.callLedger(ctx, MethodTokenB)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	tokenB, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("tokenB: %w", err)
	}
	return tokenA, tokenB, nil
}

// ReadBalance calls balanceOf(owner) on token.
func (r *RemoteLedger) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, r.caller, token, parsed, MethodBalanceOf, owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// ReadAllowance calls allowance(owner, spender) on token.
func (r *RemoteLedger) ReadAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, r.caller, token, parsed, MethodAllowance, owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *RemoteLedger) pair(ctx context.Context, method string) (*big.Int, *big.Int, error) {
	values, err := r.callLedger(ctx, method)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	first, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, err
	}
	second, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (r *RemoteLedger) callLedger(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := LedgerABI()
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}
	return callMethod(ctx, r.caller, r.address, parsed, method, args...)
}
