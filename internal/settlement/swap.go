package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/observability"
	"gaslessSwap/internal/relay"
)

// Preview is the outcome of a liquidity check.
type Preview struct {
	AToB      bool
	AmountIn  *big.Int
	AmountOut *big.Int
	// Available is the reserve of the output token.
	Available *big.Int
}

// Sufficient reports whether the pool can pay AmountOut.
func (p Preview) Sufficient() bool {
	return p.AmountOut != nil && p.Available != nil && p.AmountOut.Cmp(p.Available) <= 0
}

// Quote previews a swap without submitting anything.
func (c *Client) Quote(ctx context.Context, from, to common.Address, amountIn *big.Int) (Preview, error) {
	aToB, err := c.direction(from, to)
	if err != nil {
		return Preview{}, err
	}
	if err := validAmount(amountIn); err != nil {
		return Preview{}, err
	}
	return c.preview(ctx, aToB, amountIn)
}

// ExecuteSwap settles amountIn of from into to: liquidity check, sponsored approval,
// sponsored swap, then balance reconciliation. The returned PendingSwap is terminal.
// Failures are *StageError values naming the stage they occurred at.
func (c *Client) ExecuteSwap(ctx context.Context, from, to common.Address, amountIn *big.Int) (model.PendingSwap, error) {
	aToB, err := c.direction(from, to)
	if err != nil {
		c.setLastErr(err)
		return model.PendingSwap{}, err
	}
	if err := validAmount(amountIn); err != nil {
		c.setLastErr(err)
		return model.PendingSwap{}, err
	}
	// The in-flight swap owns LastError; a rejected caller only gets the error back.
	if !c.acquire() {
		return model.PendingSwap{}, errInFlight()
	}
	defer c.release()
	observability.Settlement().SetInflight(true)
	defer observability.Settlement().SetInflight(false)

	owner, ok := c.readyAccount()
	if !ok {
		err := model.NewKindError(model.ErrorKindAccountNotReady, errors.New("account is not ready"))
		c.setLastErr(err)
		return model.PendingSwap{}, err
	}

	now := time.Now()
	p := &model.PendingSwap{
		ID:        uuid.NewString(),
		Account:   owner,
		FromToken: from,
		ToToken:   to,
		AmountIn:  new(big.Int).Set(amountIn),
		StartedAt: now,
		UpdatedAt: now,
	}
	c.logger.Info("swap accepted",
		zap.String("id", p.ID),
		zap.String("account", owner.Hex()),
		zap.String("from", c.token(from).Label()),
		zap.String("to", c.token(to).Label()),
		zap.Stringer("amount_in", amountIn),
	)
	return c.settle(ctx, p, aToB)
}

func (c *Client) settle(ctx context.Context, p *model.PendingSwap, aToB bool) (model.PendingSwap, error) {
	c.advance(p, model.StageLiquidityCheck)
	preview, err := c.preview(ctx, aToB, p.AmountIn)
	if err != nil {
		return c.fail(ctx, p, err)
	}
	p.QuotedOut = preview.AmountOut
	if err := ctx.Err(); err != nil {
		return c.fail(ctx, p, model.NewKindError(model.ErrorKindCancelled, err))
	}

	c.advance(p, model.StageApproving)
	data, err := dex.PackApprove(c.cfg.Ledger, p.AmountIn)
	if err != nil {
		return c.fail(ctx, p, model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("pack approve: %w", err)))
	}
	hash, err := c.channel.Submit(ctx, p.Account, p.FromToken, data)
	if err != nil {
		return c.fail(ctx, p, classify(ctx, fmt.Errorf("submit approve: %w", err), model.ErrorKindProviderRejected))
	}
	p.ApprovalReceipt = &hash

	c.advance(p, model.StageAwaitingApprovalReceipt)
	if _, err := c.channel.AwaitConfirmation(ctx, hash, c.cfg.ReceiptTimeout); err != nil {
		return c.fail(ctx, p, classify(ctx, err, model.ErrorKindProviderRejected))
	}
	allowance, err := c.reader.ReadAllowance(ctx, p.FromToken, p.Account, c.cfg.Ledger)
	if err != nil {
		return c.fail(ctx, p, classify(ctx, fmt.Errorf("read allowance: %w", err), model.ErrorKindApprovalNotReflected))
	}
	if allowance == nil || allowance.Cmp(p.AmountIn) < 0 {
		return c.fail(ctx, p, model.NewKindError(model.ErrorKindApprovalNotReflected,
			fmt.Errorf("allowance %v below amount %s after approval %s", allowance, p.AmountIn, hash.Hex())))
	}

	c.advance(p, model.StageSwapping)
	data, err = dex.PackSwap(aToB, p.AmountIn)
	if err != nil {
		return c.fail(ctx, p, model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("pack swap: %w", err)))
	}
	hash, err = c.channel.Submit(ctx, p.Account, c.cfg.Ledger, data)
	if err != nil {
		return c.fail(ctx, p, classify(ctx, fmt.Errorf("submit swap: %w", err), model.ErrorKindProviderRejected))
	}
	p.SwapReceipt = &hash

	c.advance(p, model.StageAwaitingSwapReceipt)
	result, err := c.channel.AwaitConfirmation(ctx, hash, c.cfg.ReceiptTimeout)
	if err != nil {
		return c.fail(ctx, p, classify(ctx, err, model.ErrorKindProviderRejected))
	}

	c.advance(p, model.StageReconciling)
	c.refreshNow(ctx, p.Account)
	c.scheduleRefresh(p.Account)

	c.advance(p, model.StageDone)
	c.logger.Info("swap settled",
		zap.String("id", p.ID),
		zap.String("tx", hash.Hex()),
		zap.Uint64("block", result.BlockNumber),
		zap.Stringer("quoted_out", p.QuotedOut),
	)
	return c.finish(p, nil)
}

// Faucet requests test tokens for the account through the sponsored channel.
func (c *Client) Faucet(ctx context.Context, token common.Address) (*relay.Result, error) {
	if token != c.cfg.TokenA.Address && token != c.cfg.TokenB.Address {
		err := model.NewKindError(model.ErrorKindUnsupportedPair, fmt.Errorf("token %s is not traded", token.Hex()))
		c.setLastErr(err)
		return nil, err
	}
	if !c.acquire() {
		return nil, errInFlight()
	}
	defer c.release()

	owner, ok := c.readyAccount()
	if !ok {
		err := model.NewKindError(model.ErrorKindAccountNotReady, errors.New("account is not ready"))
		c.setLastErr(err)
		return nil, err
	}
	data, err := dex.PackFaucet()
	if err != nil {
		err = fmt.Errorf("pack faucet: %w", err)
		c.setLastErr(err)
		return nil, err
	}
	hash, err := c.channel.Submit(ctx, owner, token, data)
	if err != nil {
		err = classify(ctx, fmt.Errorf("submit faucet: %w", err), model.ErrorKindProviderRejected)
		c.setLastErr(err)
		return nil, err
	}
	result, err := c.channel.AwaitConfirmation(ctx, hash, c.cfg.ReceiptTimeout)
	c.refreshNow(ctx, owner)
	if err != nil {
		err = classify(ctx, err, model.ErrorKindProviderRejected)
		c.setLastErr(err)
		return result, err
	}
	c.scheduleRefresh(owner)
	c.logger.Info("faucet drip confirmed", zap.String("token", c.token(token).Label()), zap.String("tx", hash.Hex()))
	c.setLastErr(nil)
	return result, nil
}

// preview reads the quote and both reserves concurrently.
func (c *Client) preview(ctx context.Context, aToB bool, amountIn *big.Int) (Preview, error) {
	var (
		out                *big.Int
		reserveA, reserveB *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.reader.Quote(gctx, aToB, amountIn)
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		out = v
		return nil
	})
	g.Go(func() error {
		a, b, err := c.reader.Reserves(gctx)
		if err != nil {
			return fmt.Errorf("reserves: %w", err)
		}
		reserveA, reserveB = a, b
		return nil
	})
	if err := g.Wait(); err != nil {
		return Preview{}, classify(ctx, err, model.ErrorKindProviderRejected)
	}

	outToken := c.cfg.TokenB
	available := reserveB
	if !aToB {
		outToken = c.cfg.TokenA
		available = reserveA
	}
	p := Preview{AToB: aToB, AmountIn: new(big.Int).Set(amountIn), AmountOut: out, Available: available}
	if out.Sign() == 0 {
		return p, model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("amount %s quotes to zero %s", amountIn, outToken.Label()))
	}
	if !p.Sufficient() {
		return p, &InsufficientLiquidityError{Token: outToken, Required: new(big.Int).Set(out), Available: new(big.Int).Set(available)}
	}
	return p, nil
}

func (c *Client) advance(p *model.PendingSwap, stage model.Stage) {
	p.Stage = stage
	p.UpdatedAt = time.Now()
	snapshot := p.Clone()

	c.mu.Lock()
	c.pending = &snapshot
	observers := make([]func(model.PendingSwap), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	observability.Settlement().RecordStage(string(stage))
	c.logger.Info("swap stage", zap.String("id", p.ID), zap.String("stage", string(stage)))
	for _, fn := range observers {
		fn(p.Clone())
	}
}

func (c *Client) fail(ctx context.Context, p *model.PendingSwap, err error) (model.PendingSwap, error) {
	stage := p.Stage
	kind := model.KindOf(err)
	p.FailedStage = stage
	p.Error = kind
	p.ErrorMessage = err.Error()
	c.advance(p, model.StageFailed)

	// The approval may have landed even though a later stage failed.
	if kind != model.ErrorKindCancelled || stage.Submitted() {
		c.refreshNow(ctx, p.Account)
	}
	return c.finish(p, &StageError{Stage: stage, Kind: kind, Err: err})
}

func (c *Client) finish(p *model.PendingSwap, err error) (model.PendingSwap, error) {
	observability.Settlement().RecordOutcome(string(p.Stage), string(p.Error), p.UpdatedAt.Sub(p.StartedAt))
	if c.journal != nil {
		jctx, cancel := context.WithTimeout(context.Background(), c.cfg.RefreshTimeout)
		if jerr := c.journal.RecordSwap(jctx, p.Record()); jerr != nil {
			c.logger.Warn("journal swap failed", zap.String("id", p.ID), zap.Error(jerr))
		}
		cancel()
	}
	if err != nil {
		c.logger.Warn("swap failed",
			zap.String("id", p.ID),
			zap.String("stage", string(p.FailedStage)),
			zap.String("kind", string(p.Error)),
			zap.Error(err),
		)
	}
	c.setLastErr(err)
	return p.Clone(), err
}

func (c *Client) token(addr common.Address) model.Token {
	if addr == c.cfg.TokenB.Address {
		return c.cfg.TokenB
	}
	if addr == c.cfg.TokenA.Address {
		return c.cfg.TokenA
	}
	return model.Token{Address: addr}
}

func errInFlight() error {
	return model.NewKindError(model.ErrorKindOperationInProgress, errors.New("a swap is already in flight"))
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("amount must be greater than zero, got %v", amount))
	}
	return nil
}

// classify keeps an existing kind, maps a finished ctx to Cancelled, and tags the rest with fallback.
func classify(ctx context.Context, err error, fallback model.ErrorKind) error {
	if ctx.Err() != nil && model.KindOf(err) != model.ErrorKindReceiptTimeout {
		return model.NewKindError(model.ErrorKindCancelled, err)
	}
	if kind := model.KindOf(err); kind != model.ErrorKindUnknown {
		return err
	}
	return model.NewKindError(fallback, err)
}
