package settlement

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

	"gaslessSwap/internal/balance"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/relay"
	"gaslessSwap/internal/storage"
)

// Reader is the read path the client needs. dex.RemoteLedger and relay.Local satisfy it.
type Reader interface {
	ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ReadAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Quote(ctx context.Context, aToB bool, amountIn *big.Int) (*big.Int, error)
	Reserves(ctx context.Context) (*big.Int, *big.Int, error)
}

// Accounts exposes the readiness of the smart-account identity. account.Manager satisfies it.
type Accounts interface {
	IsReady() bool
	Address() (common.Address, bool)
}

// Config holds the deployment the client settles against.
type Config struct {
	Ledger         common.Address
	TokenA         model.Token
	TokenB         model.Token
	ReceiptTimeout time.Duration
	// RefreshTimeout bounds the balance refreshes run after a swap or a failure.
	RefreshTimeout time.Duration
}

// Deps are the collaborators of a Client. Balances and Journal are optional.
type Deps struct {
	Accounts Accounts
	Channel  relay.Channel
	Reader   Reader
	Balances *balance.Cache
	Journal  storage.Journal
	Logger   *zap.Logger
}

// Client owns one smart-account session and runs at most one settlement at a time.
type Client struct {
	cfg      Config
	accounts Accounts
	channel  relay.Channel
	reader   Reader
	balances *balance.Cache
	journal  storage.Journal
	logger   *zap.Logger

	mu        sync.Mutex
	busy      bool
	pending   *model.PendingSwap
	lastErr   error
	observers []func(model.PendingSwap)

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New validates cfg and builds a Client.
func New(cfg Config, deps Deps) (*Client, error) {
	if deps.Accounts == nil {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("account manager is nil"))
	}
	if deps.Channel == nil {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("relay channel is nil"))
	}
	if deps.Reader == nil {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("reader is nil"))
	}
	if cfg.Ledger == (common.Address{}) {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("ledger address is required"))
	}
	if cfg.TokenA.Address == (common.Address{}) || cfg.TokenB.Address == (common.Address{}) {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("token addresses are required"))
	}
	if cfg.TokenA.Address == cfg.TokenB.Address {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("token a and token b must differ"))
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 60 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		accounts: deps.Accounts,
		channel:  deps.Channel,
		reader:   deps.Reader,
		balances: deps.Balances,
		journal:  deps.Journal,
		logger:   logger,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Close stops scheduled reconciliation and waits for it to exit.
func (c *Client) Close() {
	c.bgCancel()
	c.bg.Wait()
}

// OnStage registers fn to observe every stage transition of every swap.
func (c *Client) OnStage(fn func(model.PendingSwap)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// IsReady reports whether the account can settle.
func (c *Client) IsReady() bool {
	return c.accounts.IsReady()
}

// AccountAddress returns the smart-account address once derived.
func (c *Client) AccountAddress() (common.Address, bool) {
	return c.accounts.Address()
}

// Tokens returns token A and token B.
func (c *Client) Tokens() (model.Token, model.Token) {
	return c.cfg.TokenA, c.cfg.TokenB
}

// CachedBalance returns the cached amount of token without blocking.
func (c *Client) CachedBalance(token common.Address) decimal.Decimal {
	if c.balances == nil {
		return decimal.Zero
	}
	return c.balances.Get(token)
}

// RefreshBalances re-reads both balances of the account.
func (c *Client) RefreshBalances(ctx context.Context) error {
	if c.balances == nil {
		return model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("balance cache not configured"))
	}
	owner, ok := c.readyAccount()
	if !ok {
		return model.NewKindError(model.ErrorKindAccountNotReady, errors.New("account is not ready"))
	}
	_, err := c.balances.Refresh(ctx, owner)
	return err
}

// LastError returns the most recent settlement failure, nil after a success.
// OperationInProgress rejections are not recorded.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending returns the in-flight swap, if any.
func (c *Client) Pending() (model.PendingSwap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return model.PendingSwap{}, false
	}
	return c.pending.Clone(), true
}

func (c *Client) readyAccount() (common.Address, bool) {
	if !c.accounts.IsReady() {
		return common.Address{}, false
	}
	return c.accounts.Address()
}

// direction resolves the pair order, reporting true for A to B.
func (c *Client) direction(from, to common.Address) (bool, error) {
	switch {
	case from == c.cfg.TokenA.Address && to == c.cfg.TokenB.Address:
		return true, nil
	case from == c.cfg.TokenB.Address && to == c.cfg.TokenA.Address:
		return false, nil
	default:
		return false, model.NewKindError(model.ErrorKindUnsupportedPair, fmt.Errorf("pair %s -> %s is not traded by ledger %s", from.Hex(), to.Hex(), c.cfg.Ledger.Hex()))
	}
}

// acquire takes the single in-flight slot.
func (c *Client) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Client) release() {
	c.mu.Lock()
	c.busy = false
	c.pending = nil
	c.mu.Unlock()
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// refreshNow runs one bounded refresh that survives cancellation of ctx.
func (c *Client) refreshNow(ctx context.Context, owner common.Address) {
	if c.balances == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
	defer cancel()
	if _, err := c.balances.Refresh(rctx, owner); err != nil {
		c.logger.Warn("balance refresh failed", zap.String("account", owner.Hex()), zap.Error(err))
	}
}

// scheduleRefresh re-reads balances in the background until they move or the cache's
// retry policy gives up.
func (c *Client) scheduleRefresh(owner common.Address) {
	if c.balances == nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		changed, err := c.balances.RefreshUntilChanged(c.bgCtx, owner)
		if err != nil && c.bgCtx.Err() == nil {
			c.logger.Warn("scheduled balance refresh failed", zap.String("account", owner.Hex()), zap.Error(err))
			return
		}
		c.logger.Debug("scheduled balance refresh finished", zap.String("account", owner.Hex()), zap.Bool("changed", changed))
	}()
}
