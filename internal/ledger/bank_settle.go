package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Settle pulls amountIn of tokenIn from user into pool (consuming the pool's allowance)
// and pushes amountOut of tokenOut from pool to user. Either both legs apply or neither.
func (b *Bank) Settle(pool, user, tokenIn common.Address, amountIn *uint256.Int, tokenOut common.Address, amountOut *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := allowanceKey{owner: user, spender: pool}
	allowed, ok := b.allowances[tokenIn][key]
	if !ok || allowed.Lt(amountIn) {
		return ErrInsufficientAllowance
	}
	if b.balanceLocked(tokenIn, user).Lt(amountIn) {
		return ErrInsufficientBalance
	}
	if b.balanceLocked(tokenOut, pool).Lt(amountOut) {
		return ErrInsufficientBalance
	}

	if err := b.transferLocked(tokenIn, user, pool, amountIn); err != nil {
		return err
	}
	if err := b.transferLocked(tokenOut, pool, user, amountOut); err != nil {
		// unreachable after the balance checks above; undo the first leg anyway
		_ = b.transferLocked(tokenIn, pool, user, amountIn)
		return err
	}
	b.allowances[tokenIn][key] = new(uint256.Int).Sub(allowed, amountIn)
	return nil
}
