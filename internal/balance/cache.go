package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gaslessSwap/internal/model"
	"gaslessSwap/internal/observability"
	"gaslessSwap/internal/retry"
)

// Reader reads a token balance. dex.RemoteLedger and relay.Local satisfy it.
type Reader interface {
	ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// RetryPolicy bounds RefreshUntilChanged. Delay doubles after every attempt.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy covers the usual read-path propagation lag of a few seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Cache holds one BalanceEntry per tracked token.
type Cache struct {
	reader Reader
	tokens []model.Token
	policy RetryPolicy
	logger *zap.Logger

	// refreshing admits one refresh at a time: reads and commits of two refreshes
	// never interleave, and Loading is cleared by the refresh that set it.
	refreshing chan struct{}

	mu        sync.RWMutex
	entries   map[common.Address]model.BalanceEntry
	observers []func([]model.BalanceEntry)
}

// New builds a cache for tokens.
func New(reader Reader, tokens []model.Token, policy RetryPolicy, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	entries := make(map[common.Address]model.BalanceEntry, len(tokens))
	for _, tok := range tokens {
		entries[tok.Address] = zeroEntry(tok.Address)
	}
	return &Cache{
		reader:     reader,
		tokens:     append([]model.Token(nil), tokens...),
		policy:     policy,
		logger:     logger,
		refreshing: make(chan struct{}, 1),
		entries:    entries,
	}
}

// Tokens returns the tracked tokens.
func (c *Cache) Tokens() []model.Token {
	return append([]model.Token(nil), c.tokens...)
}

// Subscribe registers fn to receive the entries that changed in a refresh. fn runs
// inside the refresh, in commit order, and must not call Refresh.
func (c *Cache) Subscribe(fn func([]model.BalanceEntry)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Get returns the cached amount of token, zero if never fetched.
func (c *Cache) Get(token common.Address) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[token]
	if !ok {
		return decimal.Zero
	}
	return entry.Amount
}

// Entry returns a copy of the cached entry for token.
func (c *Cache) Entry(token common.Address) (model.BalanceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[token]
	if !ok {
		return zeroEntry(token), false
	}
	return copyEntry(entry), true
}

// Snapshot returns every entry in token order.
func (c *Cache) Snapshot() []model.BalanceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.BalanceEntry, 0, len(c.tokens))
	for _, tok := range c.tokens {
		out = append(out, copyEntry(c.entries[tok.Address]))
	}
	return out
}

type fetchResult struct {
	raw *big.Int
	err error
}

// Refresh fetches every tracked balance of owner concurrently. A failed fetch marks
// only that entry stale; the returned error lists the failures with kind
// BalanceFetchFailure while the other entries are still updated. Concurrent calls
// queue behind the running one until ctx is done.
func (c *Cache) Refresh(ctx context.Context, owner common.Address) (bool, error) {
	if c.reader == nil {
		return false, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("balance reader not configured"))
	}
	if err := c.acquireRefresh(ctx); err != nil {
		return false, err
	}
	defer func() { <-c.refreshing }()

	c.setLoading(true)

	results := make([]fetchResult, len(c.tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, tok := range c.tokens {
		i, tok := i, tok
		g.Go(func() error {
			raw, err := c.reader.ReadBalance(gctx, tok.Address, owner)
			if err == nil && raw == nil {
				err = errors.New("reader returned nil balance")
			}
			results[i] = fetchResult{raw: raw, err: err}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now()
	var changed []model.BalanceEntry
	var failures []error

	c.mu.Lock()
	for i, tok := range c.tokens {
		prev := c.entries[tok.Address]
		next := prev
		next.Loading = false
		res := results[i]

		if res.err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", tok.Label(), res.err))
			next.LastError = res.err.Error()
			if !prev.Stale {
				next.Stale = true
				changed = append(changed, copyEntry(next))
			}
			c.entries[tok.Address] = next
			observability.Balances().RecordFailure(tok.Symbol)
			continue
		}

		next.FetchedAt = now
		next.LastError = ""
		if prev.Raw == nil || prev.Raw.Cmp(res.raw) != 0 || prev.Stale || !prev.Known() {
			next.Raw = new(big.Int).Set(res.raw)
			next.Amount = tok.ToDecimal(res.raw)
			next.Stale = false
			changed = append(changed, copyEntry(next))
			observability.Balances().SetAmount(tok.Symbol, next.Amount.InexactFloat64())
		}
		c.entries[tok.Address] = next
	}
	observers := make([]func([]model.BalanceEntry), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	observability.Balances().RecordRefresh(len(changed) > 0)
	if len(changed) > 0 {
		c.logger.Debug("balances changed", zap.String("owner", owner.Hex()), zap.Int("entries", len(changed)))
		for _, fn := range observers {
			fn(changed)
		}
	}

	if len(failures) > 0 {
		err := model.NewKindError(model.ErrorKindBalanceFetchFailure, errors.Join(failures...))
		c.logger.Warn("balance refresh incomplete", zap.String("owner", owner.Hex()), zap.Error(err))
		return len(changed) > 0, err
	}
	return len(changed) > 0, nil
}

// RefreshUntilChanged re-reads balances with exponential backoff until an entry
// changes or the policy's attempts are used up. It reports whether anything changed.
func (c *Cache) RefreshUntilChanged(ctx context.Context, owner common.Address) (bool, error) {
	errUnchanged := errors.New("balances unchanged")
	var lastErr error
	changed := false
	err := retry.Do(ctx, c.policy.MaxAttempts-1, c.policy.Delay, func(ctx context.Context) error {
		ok, err := c.Refresh(ctx, owner)
		lastErr = err
		if ok {
			changed = true
			return nil
		}
		return errUnchanged
	})
	if changed {
		return true, lastErr
	}
	if err != nil && !errors.Is(err, errUnchanged) {
		return false, err
	}
	return false, lastErr
}

// Start refreshes balances of owner every interval until ctx is done.
func (c *Cache) Start(ctx context.Context, owner common.Address, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := c.Refresh(ctx, owner); err != nil && ctx.Err() == nil {
				c.logger.Debug("scheduled refresh failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// acquireRefresh takes the refresh slot, waiting for the running refresh unless ctx
// ends first. A free slot is taken even if ctx is already done.
func (c *Cache) acquireRefresh(ctx context.Context) error {
	select {
	case c.refreshing <- struct{}{}:
		return nil
	default:
	}
	select {
	case c.refreshing <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) setLoading(loading bool) {
	c.mu.Lock()
	for addr, entry := range c.entries {
		entry.Loading = loading
		c.entries[addr] = entry
	}
	c.mu.Unlock()
}

func zeroEntry(token common.Address) model.BalanceEntry {
	return model.BalanceEntry{Token: token, Raw: new(big.Int), Amount: decimal.Zero}
}

func copyEntry(entry model.BalanceEntry) model.BalanceEntry {
	if entry.Raw != nil {
		entry.Raw = new(big.Int).Set(entry.Raw)
	}
	return entry
}
