package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger method names.
const (
	MethodQuoteAtoB         = "quoteAtoB"
	MethodQuoteBtoA         = "quoteBtoA"
	MethodGetReserves       = "getReserves"
	MethodGetExchangeRate   = "getExchangeRate"
	MethodTokenA            = "tokenA"
	MethodTokenB            = "tokenB"
	MethodOwner             = "owner"
	MethodAddLiquidity      = "addLiquidity"
	MethodSwapAtoB          = "swapAtoB"
	MethodSwapBtoA          = "swapBtoA"
	MethodEmergencyWithdraw = "emergencyWithdraw"
)

// ERC20 method names.
const (
	MethodBalanceOf = "balanceOf"
	MethodAllowance = "allowance"
	MethodApprove   = "approve"
	MethodFaucet    = "faucet"
	MethodDecimals  = "decimals"
	MethodSymbol    = "symbol"
	MethodName      = "name"
)

// PackApprove encodes ERC20 approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return pack(parsed, MethodApprove, spender, amount)
}

// PackFaucet encodes the test-token faucet() call.
func PackFaucet() ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return pack(parsed, MethodFaucet)
}

// PackSwap encodes swapAtoB or swapBtoA.
func PackSwap(aToB bool, amountIn *big.Int) ([]byte, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return nil, err
	}
	method := MethodSwapBtoA
	if aToB {
		method = MethodSwapAtoB
	}
	return pack(parsed, method, amountIn)
}

// PackAddLiquidity encodes addLiquidity(amountA, amountB).
func PackAddLiquidity(amountA, amountB *big.Int) ([]byte, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return nil, err
	}
	return pack(parsed, MethodAddLiquidity, amountA, amountB)
}

// PackEmergencyWithdraw encodes emergencyWithdraw().
func PackEmergencyWithdraw() ([]byte, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return nil, err
	}
	return pack(parsed, MethodEmergencyWithdraw)
}

// Call is a decoded contract call.
type Call struct {
	Method string
	Args   []interface{}
}

// DecodeCall resolves the 4-byte selector of data against parsed and unpacks its arguments.
func DecodeCall(parsed abi.ABI, data []byte) (Call, error) {
	if len(data) < 4 {
		return Call{}, fmt.Errorf("call data too short: %d bytes", len(data))
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return Call{}, fmt.Errorf("lookup selector: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return Call{}, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	return Call{Method: method.Name, Args: args}, nil
}

// ArgBigInt returns argument i of c as *big.Int.
func (c Call) ArgBigInt(i int) (*big.Int, error) {
	if i >= len(c.Args) {
		return nil, fmt.Errorf("%s: missing argument %d", c.Method, i)
	}
	return asBigInt(c.Args[i])
}

// ArgAddress returns argument i of c as an address.
func (c Call) ArgAddress(i int) (common.Address, error) {
	if i >= len(c.Args) {
		return common.Address{}, fmt.Errorf("%s: missing argument %d", c.Method, i)
	}
	return asAddress(c.Args[i])
}

func pack(parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}
