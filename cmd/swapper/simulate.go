package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gaslessSwap/internal/account"
	"gaslessSwap/internal/balance"
	"gaslessSwap/internal/config"
	"gaslessSwap/internal/ledger"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/observability"
	"gaslessSwap/internal/relay"
	"gaslessSwap/internal/settlement"
	"gaslessSwap/internal/storage"
)

var (
	sandboxLedger   = common.HexToAddress("0x5eE5000000000000000000000000000000000001")
	sandboxOwner    = common.HexToAddress("0x5eE50000000000000000000000000000000000a1")
	sandboxTokenA   = common.HexToAddress("0x5eE500000000000000000000000000000000000a")
	sandboxTokenB   = common.HexToAddress("0x5eE500000000000000000000000000000000000b")
	sandboxFactory  = "0x5eE50000000000000000000000000000000000f0"
	sandboxInitHash = "0x" + strings.Repeat("ab", 32)
)

var defaultSimulatedSwaps = []string{"1000000:PEPE:USDC", "5000000:PEPE:USDC"}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run swaps against an in-process ledger and relayer",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}

	cmd.Flags().String("rate-numerator", "5", "exchange rate numerator (raw units)")
	cmd.Flags().String("rate-denominator", "1000000000000000000", "exchange rate denominator (raw units)")
	cmd.Flags().String("liquidity-a", "5000000", "seeded PEPE liquidity")
	cmd.Flags().String("liquidity-b", "25", "seeded USDC liquidity")
	cmd.Flags().String("fund-a", "10000000", "PEPE minted to the smart account")
	cmd.Flags().String("fund-b", "0", "USDC minted to the smart account")
	cmd.Flags().StringSlice("swap", nil, "swaps to run as amount:FROM:TO (repeatable)")
	cmd.Flags().Duration("confirm-delay", 200*time.Millisecond, "simulated block time")
	cmd.Flags().Duration("receipt-timeout", 10*time.Second, "maximum wait for a receipt")
	cmd.Flags().String("journal", "", "swap journal JSONL path")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	tokenA, tokenB := model.DefaultTokens[0], model.DefaultTokens[1]
	tokenA.Address, tokenB.Address = sandboxTokenA, sandboxTokenB
	tokens := []model.Token{tokenA, tokenB}

	sbCfg, err := sandboxConfig(cfg, tokenA, tokenB, logger)
	if err != nil {
		return err
	}
	sb, err := relay.NewSandbox(sbCfg)
	if err != nil {
		return err
	}
	defer sb.Close()

	sb.Ledger.Subscribe(func(ev ledger.Event) {
		observability.Ledger().RecordEvent(ev.Name, "sandbox")
		logger.Info("ledger event", zap.String("event", ev.Name), zap.String("caller", ev.Caller.Hex()))
	})

	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	keys := account.NewKeyProvider(account.KeyConfig{
		PrivateKey:   hexutil.Encode(crypto.FromECDSA(key)),
		Factory:      sandboxFactory,
		InitCodeHash: sandboxInitHash,
	})
	accounts := account.NewManager(keys, logger)
	if err := accounts.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize account: %w", err)
	}
	owner, _ := accounts.Address()

	for _, fund := range []struct {
		token  model.Token
		amount string
	}{{tokenA, cfg.FundA}, {tokenB, cfg.FundB}} {
		raw, err := fund.token.FromDecimal(fund.amount)
		if err != nil {
			return err
		}
		if raw.Sign() == 0 {
			continue
		}
		if err := sb.Fund(fund.token.Address, owner, raw); err != nil {
			return fmt.Errorf("fund %s: %w", fund.token.Label(), err)
		}
	}

	var journal storage.Journal
	if cfg.Journal != "" {
		journal = storage.NewJsonlStorage(cfg.Journal)
	}

	cache := balance.New(sb.Relay, tokens, balance.RetryPolicy{MaxAttempts: 3, Delay: cfg.ConfirmDelay}, logger)
	client, err := settlement.New(settlement.Config{
		Ledger:         sandboxLedger,
		TokenA:         tokenA,
		TokenB:         tokenB,
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, settlement.Deps{
		Accounts: accounts,
		Channel:  sb.Relay,
		Reader:   sb.Relay,
		Balances: cache,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.RefreshBalances(ctx); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "account %s\n", owner.Hex())
	printBalances(out, owner, tokens, cache)

	swaps := cfg.Swaps
	if len(swaps) == 0 {
		swaps = defaultSimulatedSwaps
	}
	for _, entry := range swaps {
		from, to, amount, err := parseSimulatedSwap(tokens, entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n> swap %s %s -> %s\n", from.ToDecimal(amount), from.Label(), to.Label())
		swap, err := client.ExecuteSwap(ctx, from.Address, to.Address, amount)
		printSwap(out, swap, from, to)
		if err != nil {
			var liq *settlement.InsufficientLiquidityError
			if errors.As(err, &liq) {
				fmt.Fprintf(out, "  required %s, available %s %s\n",
					liq.Token.ToDecimal(liq.Required), liq.Token.ToDecimal(liq.Available), liq.Token.Label())
			} else {
				fmt.Fprintf(out, "  error: %v\n", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	fmt.Fprintln(out)
	printSandbox(ctx, out, sb.Relay, tokenA, tokenB)
	printBalances(out, owner, tokens, cache)
	return nil
}

func sandboxConfig(cfg config.SimulateConfig, tokenA, tokenB model.Token, logger *zap.Logger) (relay.SandboxConfig, error) {
	num, ok := new(big.Int).SetString(strings.TrimSpace(cfg.RateNumerator), 10)
	if !ok {
		return relay.SandboxConfig{}, fmt.Errorf("invalid rate numerator %q", cfg.RateNumerator)
	}
	den, ok := new(big.Int).SetString(strings.TrimSpace(cfg.RateDenominator), 10)
	if !ok {
		return relay.SandboxConfig{}, fmt.Errorf("invalid rate denominator %q", cfg.RateDenominator)
	}
	liqA, err := tokenA.FromDecimal(cfg.LiquidityA)
	if err != nil {
		return relay.SandboxConfig{}, err
	}
	liqB, err := tokenB.FromDecimal(cfg.LiquidityB)
	if err != nil {
		return relay.SandboxConfig{}, err
	}
	return relay.SandboxConfig{
		Ledger:          sandboxLedger,
		Owner:           sandboxOwner,
		TokenA:          tokenA.Address,
		TokenB:          tokenB.Address,
		RateNumerator:   num,
		RateDenominator: den,
		LiquidityA:      liqA,
		LiquidityB:      liqB,
		Delay:           cfg.ConfirmDelay,
		Logger:          logger,
	}, nil
}

// parseSimulatedSwap reads "amount:FROM:TO".
func parseSimulatedSwap(tokens []model.Token, entry string) (model.Token, model.Token, *big.Int, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return model.Token{}, model.Token{}, nil, fmt.Errorf("invalid swap %q, expected amount:FROM:TO", entry)
	}
	from, err := resolveToken(tokens, parts[1])
	if err != nil {
		return model.Token{}, model.Token{}, nil, err
	}
	to, err := resolveToken(tokens, parts[2])
	if err != nil {
		return model.Token{}, model.Token{}, nil, err
	}
	amount, err := from.FromDecimal(parts[0])
	if err != nil {
		return model.Token{}, model.Token{}, nil, model.NewKindError(model.ErrorKindInvalidAmount, err)
	}
	return from, to, amount, nil
}

func printSandbox(ctx context.Context, w io.Writer, local *relay.Local, tokenA, tokenB model.Token) {
	reserveA, reserveB, err := local.Reserves(ctx)
	if err != nil {
		fmt.Fprintf(w, "reserves unavailable: %v\n", err)
		return
	}
	a, b := tokenA.ToDecimal(reserveA), tokenB.ToDecimal(reserveB)
	observability.Ledger().SetReserves(a.InexactFloat64(), b.InexactFloat64())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "reserve %s\t%s\n", tokenA.Label(), a)
	fmt.Fprintf(tw, "reserve %s\t%s\n", tokenB.Label(), b)
	fmt.Fprintf(tw, "sponsored calls\t%d\n", len(local.Submissions()))
	_ = tw.Flush()
}
