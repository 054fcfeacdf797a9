package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gaslessSwap/internal/balance"
	"gaslessSwap/internal/config"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/observability"
	"gaslessSwap/internal/settlement"
	"gaslessSwap/internal/storage"
)

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap <amount> <from> <to>",
		Short: "Approve and swap through the sponsored relay",
		Args:  cobra.ExactArgs(3),
		RunE:  runSwap,
	}
	addSessionFlags(cmd)
	return cmd
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <amount> <from> <to>",
		Short: "Quote a swap and check it against the opposing reserve",
		Args:  cobra.ExactArgs(3),
		RunE:  runQuote,
	}
	addSessionFlags(cmd)
	return cmd
}

func newReservesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserves",
		Short: "Show ledger reserves and exchange rate",
		Args:  cobra.NoArgs,
		RunE:  runReserves,
	}
	addSessionFlags(cmd)
	return cmd
}

func newBalancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balances [owner]",
		Short: "Show token balances of the smart account or of owner",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBalances,
	}
	addSessionFlags(cmd)
	cmd.Flags().Duration("watch", 0, "keep refreshing at this interval")
	return cmd
}

func newFaucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet <token>",
		Short: "Request test tokens for the smart account",
		Args:  cobra.ExactArgs(1),
		RunE:  runFaucet,
	}
	addSessionFlags(cmd)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled swaps",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	addSessionFlags(cmd)
	cmd.Flags().String("account", "", "smart account address (required with --pg-dsn)")
	cmd.Flags().Int("limit", 20, "maximum rows")
	return cmd
}

// withSession loads config, opens a ledger session, and optionally arms the account.
func withSession(cmd *cobra.Command, arm bool, fn func(ctx context.Context, s *session) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSwap(cfgFile, cmd.Flags())
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
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if arm {
		if err := s.arm(ctx); err != nil {
			return err
		}
		logger.Info("account ready", zap.String("account", s.account().Hex()))
	}
	return fn(ctx, s)
}

func parseSwapArgs(s *session, args []string) (model.Token, model.Token, *big.Int, error) {
	from, err := s.token(args[1])
	if err != nil {
		return model.Token{}, model.Token{}, nil, err
	}
	to, err := s.token(args[2])
	if err != nil {
		return model.Token{}, model.Token{}, nil, err
	}
	amount, err := from.FromDecimal(args[0])
	if err != nil {
		return model.Token{}, model.Token{}, nil, model.NewKindError(model.ErrorKindInvalidAmount, err)
	}
	return from, to, amount, nil
}

func runSwap(cmd *cobra.Command, args []string) error {
	return withSession(cmd, true, func(ctx context.Context, s *session) error {
		from, to, amount, err := parseSwapArgs(s, args)
		if err != nil {
			return err
		}
		s.client.OnStage(func(p model.PendingSwap) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p.Stage)
		})
		if err := s.client.RefreshBalances(ctx); err != nil {
			s.logger.Warn("pre-swap balance refresh failed", zap.Error(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "balance: %s %s\n", s.client.CachedBalance(from.Address), from.Label())

		swap, err := s.client.ExecuteSwap(ctx, from.Address, to.Address, amount)
		printSwap(cmd.OutOrStdout(), swap, from, to)
		if err != nil {
			var liq *settlement.InsufficientLiquidityError
			if errors.As(err, &liq) {
				fmt.Fprintf(cmd.OutOrStdout(), "required %s %s, available %s %s\n",
					liq.Token.ToDecimal(liq.Required), liq.Token.Label(),
					liq.Token.ToDecimal(liq.Available), liq.Token.Label())
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "balances: %s %s, %s %s\n",
			s.client.CachedBalance(from.Address), from.Label(),
			s.client.CachedBalance(to.Address), to.Label())
		return nil
	})
}

func printSwap(w io.Writer, swap model.PendingSwap, from, to model.Token) {
	if swap.ID == "" {
		return
	}
	fmt.Fprintf(w, "swap %s: %s\n", swap.ID, swap.Stage)
	fmt.Fprintf(w, "  in:  %s %s\n", from.ToDecimal(swap.AmountIn), from.Label())
	if swap.QuotedOut != nil {
		fmt.Fprintf(w, "  out: %s %s\n", to.ToDecimal(swap.QuotedOut), to.Label())
	}
	if swap.ApprovalReceipt != nil {
		fmt.Fprintf(w, "  approval tx: %s\n", swap.ApprovalReceipt.Hex())
	}
	if swap.SwapReceipt != nil {
		fmt.Fprintf(w, "  swap tx:     %s\n", swap.SwapReceipt.Hex())
	}
	if swap.Stage == model.StageFailed {
		fmt.Fprintf(w, "  failed at %s: %s\n", swap.FailedStage, swap.ErrorMessage)
	}
}

func runQuote(cmd *cobra.Command, args []string) error {
	return withSession(cmd, false, func(ctx context.Context, s *session) error {
		from, to, amount, err := parseSwapArgs(s, args)
		if err != nil {
			return err
		}
		if from.Address == to.Address {
			return model.NewKindError(model.ErrorKindUnsupportedPair, fmt.Errorf("cannot swap %s for itself", from.Label()))
		}
		aToB := from.Address == s.tokenA.Address
		out, err := s.remote.Quote(ctx, aToB, amount)
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		reserveA, reserveB, err := s.remote.Reserves(ctx)
		if err != nil {
			return fmt.Errorf("reserves: %w", err)
		}
		available := reserveB
		if !aToB {
			available = reserveA
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s %s\n", from.ToDecimal(amount), from.Label(), to.ToDecimal(out), to.Label())
		if out.Cmp(available) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "insufficient liquidity: required %s, available %s %s\n",
				to.ToDecimal(out), to.ToDecimal(available), to.Label())
		}
		return nil
	})
}

func runReserves(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, false, func(ctx context.Context, s *session) error {
		reserveA, reserveB, err := s.remote.Reserves(ctx)
		if err != nil {
			return fmt.Errorf("reserves: %w", err)
		}
		num, den, err := s.remote.ExchangeRate(ctx)
		if err != nil {
			return fmt.Errorf("exchange rate: %w", err)
		}
		a, b := s.tokenA.ToDecimal(reserveA), s.tokenB.ToDecimal(reserveB)
		observability.Ledger().SetReserves(a.InexactFloat64(), b.InexactFloat64())

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ledger\t%s\n", s.remote.Address().Hex())
		fmt.Fprintf(w, "reserve %s\t%s\n", s.tokenA.Label(), a)
		fmt.Fprintf(w, "reserve %s\t%s\n", s.tokenB.Label(), b)
		fmt.Fprintf(w, "rate\t%s/%s (raw units, A to B)\n", num, den)
		return w.Flush()
	})
}

func runBalances(cmd *cobra.Command, args []string) error {
	arm := len(args) == 0
	return withSession(cmd, arm, func(ctx context.Context, s *session) error {
		owner := s.account()
		cache := s.cache
		if !arm {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid owner address: %s", args[0])
			}
			owner = common.HexToAddress(args[0])
			cache = balance.New(s.remote, []model.Token{s.tokenA, s.tokenB}, balance.RetryPolicy{}, s.logger)
		}

		refreshErr := func() error {
			_, err := cache.Refresh(ctx, owner)
			return err
		}()
		printBalances(cmd.OutOrStdout(), owner, []model.Token{s.tokenA, s.tokenB}, cache)

		watch, _ := cmd.Flags().GetDuration("watch")
		if watch <= 0 {
			return refreshErr
		}
		cache.Subscribe(func([]model.BalanceEntry) {
			printBalances(cmd.OutOrStdout(), owner, []model.Token{s.tokenA, s.tokenB}, cache)
		})
		cache.Start(ctx, owner, watch)
		<-ctx.Done()
		return nil
	})
}

func printBalances(w io.Writer, owner common.Address, tokens []model.Token, cache *balance.Cache) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "owner\t%s\n", owner.Hex())
	for _, tok := range tokens {
		entry, _ := cache.Entry(tok.Address)
		status := ""
		if entry.Stale {
			status = "stale: " + entry.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tok.Label(), entry.Amount, status)
	}
	_ = tw.Flush()
}

func runFaucet(cmd *cobra.Command, args []string) error {
	return withSession(cmd, true, func(ctx context.Context, s *session) error {
		tok, err := s.token(args[0])
		if err != nil {
			return err
		}
		result, err := s.client.Faucet(ctx, tok.Address)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "faucet tx %s in block %d\n", result.Hash.Hex(), result.BlockNumber)
		fmt.Fprintf(cmd.OutOrStdout(), "balance: %s %s\n", s.client.CachedBalance(tok.Address), tok.Label())
		return nil
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSwap(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	var records []model.SwapRecord
	if cfg.PGDSN != "" {
		accountArg, _ := cmd.Flags().GetString("account")
		if !common.IsHexAddress(accountArg) {
			return fmt.Errorf("--account is required with --pg-dsn")
		}
		ctx, stop := signalContext()
		defer stop()
		store, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		records, err = store.RecentSwaps(ctx, common.HexToAddress(accountArg).Hex(), limit)
		if err != nil {
			return fmt.Errorf("recent swaps: %w", err)
		}
	} else {
		records, err = storage.ReadSwapRecords(cfg.Journal)
		if err != nil {
			return err
		}
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTAGE\tIN\tOUT\tERROR")
	for _, rec := range records {
		errText := rec.ErrorKind
		if rec.FailedStage != "" {
			errText = rec.FailedStage + ": " + rec.ErrorKind
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.StartedAt, rec.Stage, rec.AmountIn, rec.QuotedOut, errText)
	}
	return w.Flush()
}
