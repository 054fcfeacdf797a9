package relay

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gaslessSwap/internal/ledger"
)

// SandboxConfig describes an in-process deployment.
type SandboxConfig struct {
	Ledger          common.Address
	Owner           common.Address
	TokenA          common.Address
	TokenB          common.Address
	RateNumerator   *big.Int
	RateDenominator *big.Int
	LiquidityA      *big.Int
	LiquidityB      *big.Int
	FaucetA         *big.Int
	FaucetB         *big.Int
	Delay           time.Duration
	Logger          *zap.Logger
}

// Sandbox bundles an in-process ledger, its token bank and a Local relayer.
type Sandbox struct {
	Ledger *ledger.Ledger
	Bank   *ledger.Bank
	Relay  *Local
}

// NewSandbox deploys the ledger, funds the owner, and seeds liquidity through the ledger
// itself so the usual LiquidityAdded event is emitted.
func NewSandbox(cfg SandboxConfig) (*Sandbox, error) {
	num, err := toUint256(cfg.RateNumerator)
	if err != nil {
		return nil, fmt.Errorf("rate numerator: %w", err)
	}
	den, err := toUint256(cfg.RateDenominator)
	if err != nil {
		return nil, fmt.Errorf("rate denominator: %w", err)
	}

	bank := ledger.NewBank()
	l, err := ledger.New(ledger.Config{
		Address:         cfg.Ledger,
		Owner:           cfg.Owner,
		TokenA:          cfg.TokenA,
		TokenB:          cfg.TokenB,
		RateNumerator:   num,
		RateDenominator: den,
	}, bank, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("deploy ledger: %w", err)
	}

	for token, drop := range map[common.Address]*big.Int{cfg.TokenA: cfg.FaucetA, cfg.TokenB: cfg.FaucetB} {
		if drop == nil {
			continue
		}
		amount, err := toUint256(drop)
		if err != nil {
			return nil, fmt.Errorf("faucet drop: %w", err)
		}
		bank.SetFaucetDrop(token, amount)
	}

	if cfg.LiquidityA != nil && cfg.LiquidityB != nil {
		amountA, err := toUint256(cfg.LiquidityA)
		if err != nil {
			return nil, fmt.Errorf("liquidity a: %w", err)
		}
		amountB, err := toUint256(cfg.LiquidityB)
		if err != nil {
			return nil, fmt.Errorf("liquidity b: %w", err)
		}
		bank.Mint(cfg.TokenA, cfg.Owner, amountA)
		bank.Mint(cfg.TokenB, cfg.Owner, amountB)
		bank.Approve(cfg.TokenA, cfg.Owner, cfg.Ledger, amountA)
		bank.Approve(cfg.TokenB, cfg.Owner, cfg.Ledger, amountB)
		if err := l.AddLiquidity(cfg.Owner, amountA, amountB); err != nil {
			return nil, fmt.Errorf("seed liquidity: %w", err)
		}
	}

	return &Sandbox{
		Ledger: l,
		Bank:   bank,
		Relay:  NewLocal(l, bank, cfg.Delay, cfg.Logger),
	}, nil
}

// Fund mints amount of token to owner.
func (s *Sandbox) Fund(token, owner common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	s.Bank.Mint(token, owner, v)
	return nil
}

// Close stops the relayer.
func (s *Sandbox) Close() {
	s.Relay.Close()
}
