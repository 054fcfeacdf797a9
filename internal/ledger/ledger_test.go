package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gaslessSwap/internal/model"
)

var (
	poolAddr  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	ownerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	userAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func newTestLedger(t *testing.T) (*Ledger, *Bank) {
	t.Helper()
	bank := NewBank()
	l, err := New(Config{
		Address:         poolAddr,
		Owner:           ownerAddr,
		TokenA:          tokenA,
		TokenB:          tokenB,
		RateNumerator:   u(5),
		RateDenominator: u(1_000_000),
	}, bank, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, bank
}

// seeded returns a pool holding (5,000,000 A, 25 B) and a user with allowance for both tokens.
func seeded(t *testing.T) (*Ledger, *Bank) {
	t.Helper()
	l, bank := newTestLedger(t)
	bank.Mint(tokenA, ownerAddr, u(5_000_000))
	bank.Mint(tokenB, ownerAddr, u(25))
	bank.Approve(tokenA, ownerAddr, poolAddr, u(5_000_000))
	bank.Approve(tokenB, ownerAddr, poolAddr, u(25))
	if err := l.AddLiquidity(ownerAddr, u(5_000_000), u(25)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	bank.Mint(tokenA, userAddr, u(50_000_000))
	bank.Mint(tokenB, userAddr, u(1_000))
	bank.Approve(tokenA, userAddr, poolAddr, u(50_000_000))
	bank.Approve(tokenB, userAddr, poolAddr, u(1_000))
	return l, bank
}

func assertReserves(t *testing.T, l *Ledger, wantA, wantB uint64) {
	t.Helper()
	a, b := l.Reserves()
	if !a.Eq(u(wantA)) || !b.Eq(u(wantB)) {
		t.Fatalf("reserves mismatch: got (%s, %s) want (%d, %d)", a.ToBig(), b.ToBig(), wantA, wantB)
	}
}

func TestNewRejectsZeroRate(t *testing.T) {
	if _, err := New(Config{TokenA: tokenA, TokenB: tokenB, RateNumerator: u(0), RateDenominator: u(1)}, NewBank(), nil); err == nil {
		t.Fatalf("expected error for zero numerator")
	}
	if _, err := New(Config{TokenA: tokenA, TokenB: tokenB, RateNumerator: u(1), RateDenominator: u(0)}, NewBank(), nil); err == nil {
		t.Fatalf("expected error for zero denominator")
	}
}

func TestQuoteTruncates(t *testing.T) {
	l, _ := newTestLedger(t)

	out, err := l.QuoteAtoB(u(5000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !out.IsZero() {
		t.Fatalf("expected truncation to zero, got %s", out.ToBig())
	}

	out, err = l.QuoteAtoB(u(1_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !out.Eq(u(5)) {
		t.Fatalf("expected 5, got %s", out.ToBig())
	}

	out, err = l.QuoteBtoA(u(3))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !out.Eq(u(600_000)) {
		t.Fatalf("expected 600000, got %s", out.ToBig())
	}
}

func TestQuoteRejectsZeroAndOverflow(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.QuoteAtoB(u(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.QuoteBtoA(nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	max := new(uint256.Int).SetAllOne()
	if _, err := l.QuoteBtoA(max); model.KindOf(err) != model.ErrorKindInvalidAmount {
		t.Fatalf("expected overflow as invalid amount, got %v", err)
	}
}

func TestQuoteIsIdempotent(t *testing.T) {
	l, _ := seeded(t)
	for i := 0; i < 100; i++ {
		if _, err := l.QuoteAtoB(u(1_000_000)); err != nil {
			t.Fatalf("quote: %v", err)
		}
		if _, err := l.QuoteBtoA(u(7)); err != nil {
			t.Fatalf("quote: %v", err)
		}
	}
	assertReserves(t, l, 5_000_000, 25)
}

func TestAddLiquidity(t *testing.T) {
	l, bank := seeded(t)
	assertReserves(t, l, 5_000_000, 25)

	if got := bank.BalanceOf(tokenA, poolAddr); !got.Eq(u(5_000_000)) {
		t.Fatalf("pool token a balance: %s", got.ToBig())
	}

	events := l.Events()
	if len(events) != 1 || events[0].Name != EventLiquidityAdded {
		t.Fatalf("expected LiquidityAdded, got %+v", events)
	}
	if !events[0].AmountA.Eq(u(5_000_000)) || !events[0].AmountB.Eq(u(25)) {
		t.Fatalf("event amounts mismatch: %+v", events[0])
	}
}

func TestAddLiquidityOwnerGated(t *testing.T) {
	l, _ := seeded(t)

	err := l.AddLiquidity(userAddr, u(100), u(1))
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) || unauthorized.Caller != userAddr {
		t.Fatalf("expected unauthorized for user, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
}

func TestAddLiquidityRejectsZero(t *testing.T) {
	l, _ := seeded(t)
	if err := l.AddLiquidity(ownerAddr, u(100), u(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := l.AddLiquidity(ownerAddr, u(0), u(100)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
}

func TestAddLiquidityWithoutAllowanceLeavesNoTrace(t *testing.T) {
	l, bank := seeded(t)
	bank.Mint(tokenA, ownerAddr, u(10))
	bank.Approve(tokenA, ownerAddr, poolAddr, u(10))

	if err := l.AddLiquidity(ownerAddr, u(10), u(10)); model.KindOf(err) != model.ErrorKindTransferFailed {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
	if got := bank.BalanceOf(tokenA, poolAddr); !got.Eq(u(5_000_000)) {
		t.Fatalf("pool token a balance changed: %s", got.ToBig())
	}
}

func TestSwapAtoBHappyPath(t *testing.T) {
	l, bank := seeded(t)

	quoted, err := l.QuoteAtoB(u(1_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	userBBefore := bank.BalanceOf(tokenB, userAddr)

	out, err := l.SwapAtoB(userAddr, u(1_000_000))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !out.Eq(quoted) || !out.Eq(u(5)) {
		t.Fatalf("amount out mismatch: %s", out.ToBig())
	}
	assertReserves(t, l, 6_000_000, 20)

	userBAfter := bank.BalanceOf(tokenB, userAddr)
	if got := new(uint256.Int).Sub(userBAfter, userBBefore); !got.Eq(u(5)) {
		t.Fatalf("user received %s", got.ToBig())
	}

	events := l.Events()
	last := events[len(events)-1]
	if last.Name != EventTokenSwapped || last.Caller != userAddr || last.TokenIn != tokenA || last.TokenOut != tokenB {
		t.Fatalf("unexpected event: %+v", last)
	}
	if !last.AmountIn.Eq(u(1_000_000)) || !last.AmountOut.Eq(u(5)) {
		t.Fatalf("event amounts mismatch: %+v", last)
	}
}

func TestSwapBtoA(t *testing.T) {
	l, _ := seeded(t)

	out, err := l.SwapBtoA(userAddr, u(10))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !out.Eq(u(2_000_000)) {
		t.Fatalf("amount out mismatch: %s", out.ToBig())
	}
	assertReserves(t, l, 3_000_000, 35)
}

func TestSwapConservation(t *testing.T) {
	l, _ := seeded(t)
	inputs := []uint64{200_000, 1_000_000, 399_999, 2_000_000}

	for _, in := range inputs {
		beforeA, beforeB := l.Reserves()
		quoted, err := l.QuoteAtoB(u(in))
		if err != nil {
			t.Fatalf("quote %d: %v", in, err)
		}
		if quoted.IsZero() {
			continue
		}
		if _, err := l.SwapAtoB(userAddr, u(in)); err != nil {
			t.Fatalf("swap %d: %v", in, err)
		}
		afterA, afterB := l.Reserves()
		if !afterA.Eq(new(uint256.Int).Add(beforeA, u(in))) {
			t.Fatalf("reserve a not conserved for %d", in)
		}
		if !afterB.Eq(new(uint256.Int).Sub(beforeB, quoted)) {
			t.Fatalf("reserve b not conserved for %d", in)
		}
	}
}

func TestSwapInsufficientLiquidity(t *testing.T) {
	l, bank := seeded(t)
	userABefore := bank.BalanceOf(tokenA, userAddr)

	_, err := l.SwapAtoB(userAddr, u(6_000_000))
	var liq *InsufficientLiquidityError
	if !errors.As(err, &liq) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if !liq.Required.Eq(u(30)) || !liq.Available.Eq(u(25)) {
		t.Fatalf("expected required=30 available=25, got %s", liq)
	}
	if model.KindOf(err) != model.ErrorKindInsufficientLiquidity {
		t.Fatalf("kind mismatch: %s", model.KindOf(err))
	}
	assertReserves(t, l, 5_000_000, 25)
	if !bank.BalanceOf(tokenA, userAddr).Eq(userABefore) {
		t.Fatalf("user balance changed on rejected swap")
	}

	if _, err := l.SwapBtoA(userAddr, u(30)); !errors.As(err, &liq) {
		t.Fatalf("expected insufficient liquidity for b to a, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
}

func TestSwapZeroRejected(t *testing.T) {
	l, _ := seeded(t)
	if _, err := l.SwapAtoB(userAddr, u(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.SwapBtoA(userAddr, u(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
}

func TestSwapWithoutAllowanceIsAtomic(t *testing.T) {
	l, bank := seeded(t)
	bank.Approve(tokenA, userAddr, poolAddr, u(10))

	if _, err := l.SwapAtoB(userAddr, u(1_000_000)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance failure, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)
	if got := bank.BalanceOf(tokenB, poolAddr); !got.Eq(u(25)) {
		t.Fatalf("pool token b balance changed: %s", got.ToBig())
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	l, bank := seeded(t)

	err := l.EmergencyWithdraw(userAddr)
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	assertReserves(t, l, 5_000_000, 25)

	if err := l.EmergencyWithdraw(ownerAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	assertReserves(t, l, 0, 0)
	if !bank.BalanceOf(tokenA, poolAddr).IsZero() || !bank.BalanceOf(tokenB, poolAddr).IsZero() {
		t.Fatalf("pool still holds tokens")
	}
	if !bank.BalanceOf(tokenA, ownerAddr).Eq(u(5_000_000)) || !bank.BalanceOf(tokenB, ownerAddr).Eq(u(25)) {
		t.Fatalf("owner did not receive reserves")
	}
	for _, ev := range l.Events() {
		if ev.Name == EventTokenSwapped {
			t.Fatalf("withdraw must not emit swap events")
		}
	}

	if _, err := l.SwapAtoB(userAddr, u(1_000_000)); model.KindOf(err) != model.ErrorKindInsufficientLiquidity {
		t.Fatalf("expected drained pool to reject swaps, got %v", err)
	}
}

func TestConcurrentSwapsNeverOverdraw(t *testing.T) {
	l, _ := seeded(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var filled uint64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.SwapAtoB(userAddr, u(1_000_000))
			if err != nil {
				return
			}
			mu.Lock()
			filled += out.Uint64()
			mu.Unlock()
		}()
	}
	wg.Wait()

	a, b := l.Reserves()
	if filled != 25 || !b.IsZero() {
		t.Fatalf("expected pool to drain exactly 25, filled=%d reserveB=%s", filled, b.ToBig())
	}
	if !a.Eq(u(10_000_000)) {
		t.Fatalf("reserve a mismatch: %s", a.ToBig())
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	l, _ := seeded(t)
	var got []string
	l.Subscribe(func(ev Event) { got = append(got, ev.Name) })

	if _, err := l.SwapAtoB(userAddr, u(1_000_000)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if err := l.EmergencyWithdraw(ownerAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(got) != 2 || got[0] != EventTokenSwapped || got[1] != EventEmergencyWithdrawn {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestSubscribersSeeMutationOrder(t *testing.T) {
	l, bank := seeded(t)
	bank.Mint(tokenA, ownerAddr, u(20_000_000))
	bank.Mint(tokenB, ownerAddr, u(1_000))
	bank.Approve(tokenA, ownerAddr, poolAddr, u(20_000_000))
	bank.Approve(tokenB, ownerAddr, poolAddr, u(1_000))
	if err := l.AddLiquidity(ownerAddr, u(10_000_000), u(100)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	var delivered []uint64
	l.Subscribe(func(ev Event) { delivered = append(delivered, ev.Seq) })

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := l.AddLiquidity(ownerAddr, u(10), u(10)); err != nil {
				t.Errorf("add liquidity: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.SwapBtoA(userAddr, u(1)); err != nil {
				t.Errorf("swap: %v", err)
			}
		}()
	}
	wg.Wait()

	events := l.Events()
	if len(events) != 82 {
		t.Fatalf("expected 82 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
	if len(delivered) != 80 {
		t.Fatalf("expected 80 deliveries, got %d", len(delivered))
	}
	for i, seq := range delivered {
		if seq != uint64(i+3) {
			t.Fatalf("delivery %d out of order: seq %d", i, seq)
		}
	}
}

func TestEventHistoryIsBounded(t *testing.T) {
	l, bank := seeded(t)
	const adds = maxEventHistory + 100
	bank.Mint(tokenA, ownerAddr, u(adds))
	bank.Mint(tokenB, ownerAddr, u(adds))
	bank.Approve(tokenA, ownerAddr, poolAddr, u(adds))
	bank.Approve(tokenB, ownerAddr, poolAddr, u(adds))
	for i := 0; i < adds; i++ {
		if err := l.AddLiquidity(ownerAddr, u(1), u(1)); err != nil {
			t.Fatalf("add liquidity %d: %v", i, err)
		}
	}

	events := l.Events()
	if len(events) != maxEventHistory {
		t.Fatalf("history not capped: %d", len(events))
	}
	total := uint64(adds + 1)
	if first, last := events[0].Seq, events[len(events)-1].Seq; first != total-maxEventHistory+1 || last != total {
		t.Fatalf("history should keep the newest events, got seq %d..%d", first, last)
	}
}
