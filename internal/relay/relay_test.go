package relay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/model"
)

var (
	ledgerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	ownerAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	userAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenA     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB     = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newSandbox(t *testing.T, delay time.Duration) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(SandboxConfig{
		Ledger:          ledgerAddr,
		Owner:           ownerAddr,
		TokenA:          tokenA,
		TokenB:          tokenB,
		RateNumerator:   big.NewInt(5),
		RateDenominator: big.NewInt(1_000_000),
		LiquidityA:      big.NewInt(5_000_000),
		LiquidityB:      big.NewInt(25),
		FaucetA:         big.NewInt(10_000),
		FaucetB:         big.NewInt(1_000),
		Delay:           delay,
	})
	require.NoError(t, err)
	t.Cleanup(sb.Close)
	return sb
}

func submitAndWait(t *testing.T, r Channel, from, to common.Address, data []byte) (*Result, error) {
	t.Helper()
	ctx := context.Background()
	hash, err := r.Submit(ctx, from, to, data)
	require.NoError(t, err)
	return r.AwaitConfirmation(ctx, hash, time.Second)
}

func TestLocalApproveThenSwap(t *testing.T) {
	sb := newSandbox(t, 0)
	require.NoError(t, sb.Fund(tokenA, userAddr, big.NewInt(2_000_000)))

	approve, err := dex.PackApprove(ledgerAddr, big.NewInt(1_000_000))
	require.NoError(t, err)
	res, err := submitAndWait(t, sb.Relay, userAddr, tokenA, approve)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	allowance, err := sb.Relay.ReadAllowance(context.Background(), tokenA, userAddr, ledgerAddr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), allowance.Int64())

	swap, err := dex.PackSwap(true, big.NewInt(1_000_000))
	require.NoError(t, err)
	res, err = submitAndWait(t, sb.Relay, userAddr, ledgerAddr, swap)
	require.NoError(t, err)
	require.Equal(t, uint64(2), res.BlockNumber)

	a, b, err := sb.Relay.Reserves(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(6_000_000), a.Int64())
	require.Equal(t, int64(20), b.Int64())

	balanceB, err := sb.Relay.ReadBalance(context.Background(), tokenB, userAddr)
	require.NoError(t, err)
	require.Equal(t, int64(5), balanceB.Int64())

	subs := sb.Relay.Submissions()
	require.Len(t, subs, 2)
	require.Equal(t, dex.MethodApprove, subs[0].Method)
	require.Equal(t, dex.MethodSwapAtoB, subs[1].Method)
}

func TestLocalRevertSurfacesReason(t *testing.T) {
	sb := newSandbox(t, 0)

	// Without allowance or balance the swap reverts and reserves stay put.
	swap, err := dex.PackSwap(true, big.NewInt(6_000_000))
	require.NoError(t, err)
	res, err := submitAndWait(t, sb.Relay, userAddr, ledgerAddr, swap)
	require.Error(t, err)
	require.Equal(t, model.ErrorKindTransactionReverted, model.KindOf(err))
	require.False(t, res.Succeeded())
	require.Contains(t, res.RevertReason, "insufficient liquidity")

	a, b := sb.Ledger.Reserves()
	require.Equal(t, uint64(5_000_000), a.Uint64())
	require.Equal(t, uint64(25), b.Uint64())
}

func TestLocalFaucetAndOwnerCalls(t *testing.T) {
	sb := newSandbox(t, 0)
	faucet, err := dex.PackFaucet()
	require.NoError(t, err)
	_, err = submitAndWait(t, sb.Relay, userAddr, tokenB, faucet)
	require.NoError(t, err)
	balance, err := sb.Relay.ReadBalance(context.Background(), tokenB, userAddr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), balance.Int64())

	withdraw, err := dex.PackEmergencyWithdraw()
	require.NoError(t, err)
	_, err = submitAndWait(t, sb.Relay, userAddr, ledgerAddr, withdraw)
	require.Equal(t, model.ErrorKindTransactionReverted, model.KindOf(err))

	_, err = submitAndWait(t, sb.Relay, ownerAddr, ledgerAddr, withdraw)
	require.NoError(t, err)
	a, b, err := sb.Relay.Reserves(context.Background())
	require.NoError(t, err)
	require.Zero(t, a.Sign())
	require.Zero(t, b.Sign())
}

func TestLocalRejectsUnknownTargetAndMethod(t *testing.T) {
	sb := newSandbox(t, 0)
	ctx := context.Background()

	approve, err := dex.PackApprove(ledgerAddr, big.NewInt(1))
	require.NoError(t, err)
	_, err = sb.Relay.Submit(ctx, userAddr, common.HexToAddress("0x03"), approve)
	require.Equal(t, model.ErrorKindProviderRejected, model.KindOf(err))

	_, err = sb.Relay.Submit(ctx, userAddr, ledgerAddr, []byte{0xde, 0xad, 0xbe, 0xef})
	require.Equal(t, model.ErrorKindProviderRejected, model.KindOf(err))

	_, err = sb.Relay.AwaitConfirmation(ctx, common.HexToHash("0x01"), time.Second)
	require.Equal(t, model.ErrorKindProviderRejected, model.KindOf(err))
}

func TestLocalConfirmationDelayAndTimeout(t *testing.T) {
	sb := newSandbox(t, 200*time.Millisecond)
	ctx := context.Background()
	faucet, err := dex.PackFaucet()
	require.NoError(t, err)

	hash, err := sb.Relay.Submit(ctx, userAddr, tokenA, faucet)
	require.NoError(t, err)

	_, err = sb.Relay.AwaitConfirmation(ctx, hash, 20*time.Millisecond)
	require.Equal(t, model.ErrorKindReceiptTimeout, model.KindOf(err))
	require.True(t, model.KindOf(err).Recoverable())

	// Waiting again after a timeout picks up the same call.
	res, err := sb.Relay.AwaitConfirmation(ctx, hash, time.Second)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sb.Relay.Submit(cancelled, userAddr, tokenA, faucet)
	require.Equal(t, model.ErrorKindCancelled, model.KindOf(err))
}

type fakeBackend struct {
	mu          sync.Mutex
	sent        []SendRequest
	sendErr     error
	hash        common.Hash
	pendingFor  int
	polls       int
	status      uint64
	receiptErrs []error
}

func (f *fakeBackend) Call(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if method != defaultSendMethod || len(args) != 1 {
		return errors.New("unexpected call")
	}
	// Round-trip through JSON like the real transport.
	raw, err := json.Marshal(args[0])
	if err != nil {
		return err
	}
	var req SendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	f.sent = append(f.sent, req)
	*(result.(*common.Hash)) = f.hash
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.receiptErrs) > 0 {
		err := f.receiptErrs[0]
		f.receiptErrs = f.receiptErrs[1:]
		return nil, err
	}
	if f.polls <= f.pendingFor {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: f.status, BlockNumber: big.NewInt(77), GasUsed: 21000}, nil
}

type keySigner struct{ t *testing.T }

func (k keySigner) SignHash(hash common.Hash) ([]byte, error) {
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(k.t, err)
	return crypto.Sign(hash.Bytes(), key)
}

func TestRPCRelayerSubmitAndConfirm(t *testing.T) {
	backend := &fakeBackend{
		hash:        common.HexToHash("0xfeed"),
		pendingFor:  2,
		status:      types.ReceiptStatusSuccessful,
		receiptErrs: []error{errors.New("connection reset")},
	}
	relayer, err := NewRPCRelayer(backend, backend, RPCConfig{PollInterval: time.Millisecond, Signer: keySigner{t}}, nil)
	require.NoError(t, err)

	data := []byte{1, 2, 3}
	hash, err := relayer.Submit(context.Background(), userAddr, tokenA, data)
	require.NoError(t, err)
	require.Equal(t, backend.hash, hash)

	require.Len(t, backend.sent, 1)
	sent := backend.sent[0]
	require.Equal(t, userAddr, sent.From)
	require.Equal(t, tokenA, sent.To)
	require.Equal(t, data, []byte(sent.Data))
	pub, err := crypto.SigToPub(RequestDigest(userAddr, tokenA, data).Bytes(), sent.Signature)
	require.NoError(t, err)
	key, _ := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))

	res, err := relayer.AwaitConfirmation(context.Background(), hash, time.Second)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, uint64(77), res.BlockNumber)
	require.Equal(t, 3, backend.polls)
}

func TestRPCRelayerFailures(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("sponsor quota exceeded")}
	relayer, err := NewRPCRelayer(backend, backend, RPCConfig{PollInterval: time.Millisecond}, nil)
	require.NoError(t, err)
	_, err = relayer.Submit(context.Background(), userAddr, tokenA, nil)
	require.Equal(t, model.ErrorKindProviderRejected, model.KindOf(err))

	reverted := &fakeBackend{hash: common.HexToHash("0x01"), status: types.ReceiptStatusFailed}
	relayer, err = NewRPCRelayer(reverted, reverted, RPCConfig{PollInterval: time.Millisecond}, nil)
	require.NoError(t, err)
	res, err := relayer.AwaitConfirmation(context.Background(), reverted.hash, time.Second)
	require.Equal(t, model.ErrorKindTransactionReverted, model.KindOf(err))
	require.False(t, res.Succeeded())

	pending := &fakeBackend{hash: common.HexToHash("0x02"), pendingFor: 1 << 30}
	relayer, err = NewRPCRelayer(pending, pending, RPCConfig{PollInterval: time.Millisecond}, nil)
	require.NoError(t, err)
	_, err = relayer.AwaitConfirmation(context.Background(), pending.hash, 20*time.Millisecond)
	require.Equal(t, model.ErrorKindReceiptTimeout, model.KindOf(err))

	_, err = NewRPCRelayer(nil, pending, RPCConfig{}, nil)
	require.Equal(t, model.ErrorKindConfigurationMissing, model.KindOf(err))
}
