package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bank is an in-memory ERC20 ledger for several tokens: balances, allowances and a faucet.
type Bank struct {
	mu          sync.RWMutex
	balances    map[common.Address]map[common.Address]*uint256.Int
	allowances  map[common.Address]map[allowanceKey]*uint256.Int
	faucetDrops map[common.Address]*uint256.Int
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

func NewBank() *Bank {
	return &Bank{
		balances:    make(map[common.Address]map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[allowanceKey]*uint256.Int),
		faucetDrops: make(map[common.Address]*uint256.Int),
	}
}

// SetFaucetDrop configures how much Faucet mints per call for token.
func (b *Bank) SetFaucetDrop(token common.Address, amount *uint256.Int) {
	b.mu.Lock()
	b.faucetDrops[token] = amount.Clone()
	b.mu.Unlock()
}

func (b *Bank) BalanceOf(token, owner common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceLocked(token, owner).Clone()
}

func (b *Bank) Allowance(token, owner, spender common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if amount, ok := b.allowances[token][allowanceKey{owner, spender}]; ok {
		return amount.Clone()
	}
	return new(uint256.Int)
}

// Approve overwrites the spender allowance, as ERC20 approve does.
func (b *Bank) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byKey, ok := b.allowances[token]
	if !ok {
		byKey = make(map[allowanceKey]*uint256.Int)
		b.allowances[token] = byKey
	}
	byKey[allowanceKey{owner, spender}] = amount.Clone()
}

// Mint credits amount to owner.
func (b *Bank) Mint(token, owner common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balanceLocked(token, owner)
	b.setBalanceLocked(token, owner, new(uint256.Int).Add(bal, amount))
}

// Faucet mints the configured drop for token to owner and returns the minted amount.
func (b *Bank) Faucet(token, owner common.Address) (*uint256.Int, error) {
	b.mu.RLock()
	drop, ok := b.faucetDrops[token]
	b.mu.RUnlock()
	if !ok || drop.IsZero() {
		return nil, ErrUnsupportedToken
	}
	b.Mint(token, owner, drop)
	return drop.Clone(), nil
}

func (b *Bank) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(token, from, to, amount)
}

// TransferFrom moves amount from owner to recipient, consuming spender allowance.
func (b *Bank) TransferFrom(token, spender, owner, recipient common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := allowanceKey{owner, spender}
	allowed, ok := b.allowances[token][key]
	if !ok || allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := b.transferLocked(token, owner, recipient, amount); err != nil {
		return err
	}
	b.allowances[token][key] = new(uint256.Int).Sub(allowed, amount)
	return nil
}

func (b *Bank) transferLocked(token, from, to common.Address, amount *uint256.Int) error {
	fromBal := b.balanceLocked(token, from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.setBalanceLocked(token, from, new(uint256.Int).Sub(fromBal, amount))
	toBal := b.balanceLocked(token, to)
	b.setBalanceLocked(token, to, new(uint256.Int).Add(toBal, amount))
	return nil
}

func (b *Bank) balanceLocked(token, owner common.Address) *uint256.Int {
	if bal, ok := b.balances[token][owner]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (b *Bank) setBalanceLocked(token, owner common.Address, amount *uint256.Int) {
	byOwner, ok := b.balances[token]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		b.balances[token] = byOwner
	}
	byOwner[owner] = amount
}
