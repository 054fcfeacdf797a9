package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/ledger"
	"gaslessSwap/internal/model"
)

// Submission is one call accepted by the Local relayer.
type Submission struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Method string
	At     time.Time
}

type localTx struct {
	sub    Submission
	call   dex.Call
	done   chan struct{}
	result *Result
}

// Local executes sponsored calls against an in-process ledger and token bank.
// Each call is applied after the confirmation delay, in submission order.
type Local struct {
	ledger *ledger.Ledger
	bank   *ledger.Bank
	delay  time.Duration
	logger *zap.Logger

	mu          sync.Mutex
	nonce       uint64
	block       uint64
	txs         map[common.Hash]*localTx
	submissions []Submission
	queue       chan *localTx
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewLocal starts a local relayer whose calls confirm after delay.
func NewLocal(l *ledger.Ledger, bank *ledger.Bank, delay time.Duration, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Local{
		ledger: l,
		bank:   bank,
		delay:  delay,
		logger: logger,
		txs:    make(map[common.Hash]*localTx),
		queue:  make(chan *localTx, 64),
		closed: make(chan struct{}),
	}
	go r.mine()
	return r
}

// Close stops the mining loop. Pending calls never confirm.
func (r *Local) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Submit decodes the call against the target's ABI and queues it.
func (r *Local) Submit(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, model.NewKindError(model.ErrorKindCancelled, err)
	}
	call, err := r.decode(to, data)
	if err != nil {
		return common.Hash{}, model.NewKindError(model.ErrorKindProviderRejected, err)
	}

	r.mu.Lock()
	r.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], r.nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), to.Bytes(), data, nonce[:])
	tx := &localTx{
		sub:  Submission{Hash: hash, From: from, To: to, Method: call.Method, At: time.Now()},
		call: call,
		done: make(chan struct{}),
	}
	r.txs[hash] = tx
	r.submissions = append(r.submissions, tx.sub)
	r.mu.Unlock()

	select {
	case r.queue <- tx:
	case <-r.closed:
		return common.Hash{}, model.NewKindError(model.ErrorKindProviderRejected, errors.New("relayer closed"))
	case <-ctx.Done():
		return common.Hash{}, model.NewKindError(model.ErrorKindCancelled, ctx.Err())
	}
	r.logger.Debug("local relay submitted", zap.String("method", call.Method), zap.String("tx", hash.Hex()))
	return hash, nil
}

// AwaitConfirmation waits until the call has been applied or timeout elapses.
func (r *Local) AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*Result, error) {
	r.mu.Lock()
	tx, ok := r.txs[hash]
	r.mu.Unlock()
	if !ok {
		return nil, model.NewKindError(model.ErrorKindProviderRejected, fmt.Errorf("%w: %s", errUnknownTx, hash.Hex()))
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-tx.done:
		if !tx.result.Succeeded() {
			return tx.result, revertedError(tx.result)
		}
		return tx.result, nil
	case <-waitCtx.Done():
		return nil, waitError(ctx, hash, timeout)
	}
}

// Submissions returns the accepted calls in submission order.
func (r *Local) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, len(r.submissions))
	copy(out, r.submissions)
	return out
}

func (r *Local) mine() {
	for {
		select {
		case <-r.closed:
			return
		case tx := <-r.queue:
			if wait := time.Until(tx.sub.At.Add(r.delay)); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-r.closed:
					timer.Stop()
					return
				}
			}
			r.apply(tx)
		}
	}
}

func (r *Local) apply(tx *localTx) {
	err := r.execute(tx.sub.From, tx.sub.To, tx.call)

	r.mu.Lock()
	r.block++
	result := &Result{Hash: tx.sub.Hash, BlockNumber: r.block, Status: StatusSuccess}
	r.mu.Unlock()

	if err != nil {
		result.Status = StatusFailed
		result.RevertReason = err.Error()
		r.logger.Info("local relay reverted",
			zap.String("method", tx.call.Method),
			zap.String("tx", tx.sub.Hash.Hex()),
			zap.Error(err),
		)
	}
	tx.result = result
	close(tx.done)
}

func (r *Local) decode(to common.Address, data []byte) (dex.Call, error) {
	switch to {
	case r.ledger.Address():
		parsed, err := dex.LedgerABI()
		if err != nil {
			return dex.Call{}, err
		}
		return dex.DecodeCall(parsed, data)
	case r.ledger.TokenA(), r.ledger.TokenB():
		parsed, err := dex.ERC20ABI()
		if err != nil {
			return dex.Call{}, err
		}
		return dex.DecodeCall(parsed, data)
	default:
		return dex.Call{}, fmt.Errorf("unknown call target %s", to.Hex())
	}
}

func (r *Local) execute(from, to common.Address, call dex.Call) error {
	switch call.Method {
	case dex.MethodApprove:
		spender, err := call.ArgAddress(0)
		if err != nil {
			return err
		}
		amount, err := argUint256(call, 1)
		if err != nil {
			return err
		}
		r.bank.Approve(to, from, spender, amount)
		return nil
	case dex.MethodFaucet:
		_, err := r.bank.Faucet(to, from)
		return err
	case dex.MethodSwapAtoB, dex.MethodSwapBtoA:
		amount, err := argUint256(call, 0)
		if err != nil {
			return err
		}
		if call.Method == dex.MethodSwapAtoB {
			_, err = r.ledger.SwapAtoB(from, amount)
		} else {
			_, err = r.ledger.SwapBtoA(from, amount)
		}
		return err
	case dex.MethodAddLiquidity:
		amountA, err := argUint256(call, 0)
		if err != nil {
			return err
		}
		amountB, err := argUint256(call, 1)
		if err != nil {
			return err
		}
		return r.ledger.AddLiquidity(from, amountA, amountB)
	case dex.MethodEmergencyWithdraw:
		return r.ledger.EmergencyWithdraw(from)
	default:
		return fmt.Errorf("method %s is not callable through the relay", call.Method)
	}
}

// ReadBalance reads the bank balance of owner.
func (r *Local) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.bank.BalanceOf(token, owner).ToBig(), nil
}

// ReadAllowance reads the bank allowance granted by owner to spender.
func (r *Local) ReadAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.bank.Allowance(token, owner, spender).ToBig(), nil
}

// Quote quotes against the in-process ledger.
func (r *Local) Quote(ctx context.Context, aToB bool, amountIn *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := toUint256(amountIn)
	if err != nil {
		return nil, err
	}
	var out *uint256.Int
	if aToB {
		out, err = r.ledger.QuoteAtoB(in)
	} else {
		out, err = r.ledger.QuoteBtoA(in)
	}
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// Reserves returns the in-process ledger reserves.
func (r *Local) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	a, b := r.ledger.Reserves()
	return a.ToBig(), b.ToBig(), nil
}

func argUint256(call dex.Call, i int) (*uint256.Int, error) {
	v, err := call.ArgBigInt(i)
	if err != nil {
		return nil, err
	}
	return toUint256(v)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("invalid amount %v", v))
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, model.NewKindError(model.ErrorKindInvalidAmount, fmt.Errorf("amount %s overflows uint256", v))
	}
	return out, nil
}
