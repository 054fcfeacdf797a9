package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config fixes the pool identity and conversion constants at deployment.
type Config struct {
	Address         common.Address
	Owner           common.Address
	TokenA          common.Address
	TokenB          common.Address
	RateNumerator   *uint256.Int
	RateDenominator *uint256.Int
}

// Ledger is a fixed-ratio two-reserve exchange. A single mutex covers admission and
// mutation so a swap's check-then-act never interleaves with another mutation.
type Ledger struct {
	cfg    Config
	bank   *Bank
	logger *zap.Logger

	mu       sync.Mutex
	reserveA *uint256.Int
	reserveB *uint256.Int

	seq uint64

	evMu       sync.Mutex
	events     []Event
	pending    []Event
	delivering bool
	subs       []func(Event)
}

// New deploys an empty pool backed by bank.
func New(cfg Config, bank *Bank, logger *zap.Logger) (*Ledger, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	if cfg.RateNumerator == nil || cfg.RateNumerator.IsZero() {
		return nil, fmt.Errorf("rate numerator must be greater than zero")
	}
	if cfg.RateDenominator == nil || cfg.RateDenominator.IsZero() {
		return nil, fmt.Errorf("rate denominator must be greater than zero")
	}
	if cfg.TokenA == cfg.TokenB {
		return nil, fmt.Errorf("token a and token b must differ")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		cfg:      cfg,
		bank:     bank,
		logger:   logger,
		reserveA: new(uint256.Int),
		reserveB: new(uint256.Int),
	}, nil
}

func (l *Ledger) Address() common.Address { return l.cfg.Address }
func (l *Ledger) Owner() common.Address   { return l.cfg.Owner }
func (l *Ledger) TokenA() common.Address  { return l.cfg.TokenA }
func (l *Ledger) TokenB() common.Address  { return l.cfg.TokenB }

// ExchangeRate returns the conversion constants (numerator, denominator).
func (l *Ledger) ExchangeRate() (*uint256.Int, *uint256.Int) {
	return l.cfg.RateNumerator.Clone(), l.cfg.RateDenominator.Clone()
}

// QuoteAtoB returns floor(amountIn * num / den).
func (l *Ledger) QuoteAtoB(amountIn *uint256.Int) (*uint256.Int, error) {
	return mulDiv(amountIn, l.cfg.RateNumerator, l.cfg.RateDenominator)
}

// QuoteBtoA returns floor(amountIn * den / num).
func (l *Ledger) QuoteBtoA(amountIn *uint256.Int) (*uint256.Int, error) {
	return mulDiv(amountIn, l.cfg.RateDenominator, l.cfg.RateNumerator)
}

// Reserves returns copies of (reserveA, reserveB).
func (l *Ledger) Reserves() (*uint256.Int, *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveA.Clone(), l.reserveB.Clone()
}

// AddLiquidity pulls both amounts from the owner and credits the reserves.
func (l *Ledger) AddLiquidity(caller common.Address, amountA, amountB *uint256.Int) error {
	if caller != l.cfg.Owner {
		return &UnauthorizedError{Caller: caller}
	}
	if isZero(amountA) || isZero(amountB) {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	if err := l.bank.TransferFrom(l.cfg.TokenA, l.cfg.Address, caller, l.cfg.Address, amountA); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("pull token a: %w", err)
	}
	if err := l.bank.TransferFrom(l.cfg.TokenB, l.cfg.Address, caller, l.cfg.Address, amountB); err != nil {
		// give token a back so the pool holds exactly its reserves
		_ = l.bank.Transfer(l.cfg.TokenA, l.cfg.Address, caller, amountA)
		l.mu.Unlock()
		return fmt.Errorf("pull token b: %w", err)
	}
	l.reserveA = new(uint256.Int).Add(l.reserveA, amountA)
	l.reserveB = new(uint256.Int).Add(l.reserveB, amountB)
	l.record(Event{Name: EventLiquidityAdded, Caller: caller, AmountA: amountA.Clone(), AmountB: amountB.Clone()})
	l.mu.Unlock()

	l.deliver()
	l.logger.Info("liquidity added", zap.Stringer("amount_a", amountA.ToBig()), zap.Stringer("amount_b", amountB.ToBig()))
	return nil
}

// SwapAtoB exchanges amountIn of token A for token B.
func (l *Ledger) SwapAtoB(caller common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return l.swap(caller, amountIn, true)
}

// SwapBtoA exchanges amountIn of token B for token A.
func (l *Ledger) SwapBtoA(caller common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return l.swap(caller, amountIn, false)
}

func (l *Ledger) swap(caller common.Address, amountIn *uint256.Int, aToB bool) (*uint256.Int, error) {
	if isZero(amountIn) {
		return nil, ErrInvalidAmount
	}

	var (
		amountOut *uint256.Int
		err       error
	)
	if aToB {
		amountOut, err = l.QuoteAtoB(amountIn)
	} else {
		amountOut, err = l.QuoteBtoA(amountIn)
	}
	if err != nil {
		return nil, err
	}

	tokenIn, tokenOut := l.cfg.TokenA, l.cfg.TokenB
	if !aToB {
		tokenIn, tokenOut = tokenOut, tokenIn
	}

	l.mu.Lock()
	sourceReserve, destReserve := &l.reserveA, &l.reserveB
	if !aToB {
		sourceReserve, destReserve = destReserve, sourceReserve
	}
	if amountOut.Gt(*destReserve) {
		available := (*destReserve).Clone()
		l.mu.Unlock()
		return nil, &InsufficientLiquidityError{Required: amountOut, Available: available}
	}
	if err := l.bank.Settle(l.cfg.Address, caller, tokenIn, amountIn, tokenOut, amountOut); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("settle swap: %w", err)
	}
	*sourceReserve = new(uint256.Int).Add(*sourceReserve, amountIn)
	*destReserve = new(uint256.Int).Sub(*destReserve, amountOut)
	l.record(Event{
		Name:      EventTokenSwapped,
		Caller:    caller,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn.Clone(),
		AmountOut: amountOut.Clone(),
	})
	l.mu.Unlock()

	l.deliver()
	l.logger.Debug("token swapped",
		zap.String("caller", caller.Hex()),
		zap.String("token_in", tokenIn.Hex()),
		zap.Stringer("amount_in", amountIn.ToBig()),
		zap.Stringer("amount_out", amountOut.ToBig()),
	)
	return amountOut.Clone(), nil
}

// EmergencyWithdraw sends both reserves to the owner and zeroes them. It holds the
// pool mutex, so it serializes with swaps rather than racing their admission check.
func (l *Ledger) EmergencyWithdraw(caller common.Address) error {
	if caller != l.cfg.Owner {
		return &UnauthorizedError{Caller: caller}
	}

	l.mu.Lock()
	amountA, amountB := l.reserveA.Clone(), l.reserveB.Clone()
	if !amountA.IsZero() {
		if err := l.bank.Transfer(l.cfg.TokenA, l.cfg.Address, caller, amountA); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("withdraw token a: %w", err)
		}
	}
	if !amountB.IsZero() {
		if err := l.bank.Transfer(l.cfg.TokenB, l.cfg.Address, caller, amountB); err != nil {
			_ = l.bank.Transfer(l.cfg.TokenA, caller, l.cfg.Address, amountA)
			l.mu.Unlock()
			return fmt.Errorf("withdraw token b: %w", err)
		}
	}
	l.reserveA = new(uint256.Int)
	l.reserveB = new(uint256.Int)
	l.record(Event{Name: EventEmergencyWithdrawn, Caller: caller, AmountA: amountA, AmountB: amountB})
	l.mu.Unlock()

	l.deliver()
	l.logger.Warn("emergency withdraw", zap.Stringer("amount_a", amountA.ToBig()), zap.Stringer("amount_b", amountB.ToBig()))
	return nil
}

func mulDiv(amount, mul, div *uint256.Int) (*uint256.Int, error) {
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, mul)
	if overflow {
		return nil, fmt.Errorf("quote overflow: %w", ErrInvalidAmount)
	}
	return product.Div(product, div), nil
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}
