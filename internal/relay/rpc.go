package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"gaslessSwap/internal/model"
)

const (
	defaultSendMethod   = "relay_sendTransaction"
	defaultPollInterval = 2 * time.Second
)

// Backend is the RPC surface the relayer needs. *chain.Client satisfies it.
type Backend interface {
	Call(ctx context.Context, result interface{}, method string, args ...interface{}) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// HashSigner signs request digests. *account.KeyProvider satisfies it.
type HashSigner interface {
	SignHash(hash common.Hash) ([]byte, error)
}

// RPCConfig configures an RPCRelayer.
type RPCConfig struct {
	Method       string
	PollInterval time.Duration
	Signer       HashSigner
}

// RPCRelayer forwards calls to a sponsoring relay over JSON-RPC and polls the
// chain for their receipts.
type RPCRelayer struct {
	relay  Backend
	chain  Backend
	cfg    RPCConfig
	logger *zap.Logger
}

// SendRequest is the relay_sendTransaction payload.
type SendRequest struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Data      hexutil.Bytes  `json:"data"`
	Signature hexutil.Bytes  `json:"signature,omitempty"`
}

// NewRPCRelayer builds a relayer. relay receives submissions; chain answers receipt polls.
// They may be the same backend.
func NewRPCRelayer(relay, chain Backend, cfg RPCConfig, logger *zap.Logger) (*RPCRelayer, error) {
	if relay == nil || chain == nil {
		return nil, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("relay and chain backends are required"))
	}
	if cfg.Method == "" {
		cfg.Method = defaultSendMethod
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCRelayer{relay: relay, chain: chain, cfg: cfg, logger: logger}, nil
}

// RequestDigest is keccak256(from || to || data), the value signed for a relay request.
func RequestDigest(from, to common.Address, data []byte) common.Hash {
	return crypto.Keccak256Hash(from.Bytes(), to.Bytes(), data)
}

// Submit sends the call to the relay and returns the transaction hash it assigned.
func (r *RPCRelayer) Submit(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	req := SendRequest{From: from, To: to, Data: data}
	if r.cfg.Signer != nil {
		sig, err := r.cfg.Signer.SignHash(RequestDigest(from, to, data))
		if err != nil {
			return common.Hash{}, model.NewKindError(model.ErrorKindSignerUnavailable, fmt.Errorf("sign relay request: %w", err))
		}
		req.Signature = sig
	}

	var hash common.Hash
	if err := r.relay.Call(ctx, &hash, r.cfg.Method, req); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return common.Hash{}, model.NewKindError(model.ErrorKindCancelled, fmt.Errorf("%s: %w", r.cfg.Method, ctxErr))
		}
		return common.Hash{}, model.NewKindError(model.ErrorKindProviderRejected, fmt.Errorf("%s: %w", r.cfg.Method, err))
	}
	if hash == (common.Hash{}) {
		return common.Hash{}, model.NewKindError(model.ErrorKindProviderRejected, fmt.Errorf("%s returned empty hash", r.cfg.Method))
	}
	r.logger.Debug("relay submitted",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("tx", hash.Hex()),
	)
	return hash, nil
}

// AwaitConfirmation polls for the receipt of hash until it lands or timeout elapses.
func (r *RPCRelayer) AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*Result, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.chain.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil:
			result := &Result{Hash: hash, Status: receipt.Status, GasUsed: receipt.GasUsed}
			if receipt.BlockNumber != nil {
				result.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if !result.Succeeded() {
				return result, revertedError(result)
			}
			return result, nil
		case errors.Is(err, ethereum.NotFound):
		case waitCtx.Err() != nil:
		default:
			r.logger.Warn("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			return nil, waitError(ctx, hash, timeout)
		case <-ticker.C:
		}
	}
}
