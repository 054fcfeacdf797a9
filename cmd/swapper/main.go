package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gaslessSwap/internal/observability"
)

func main() {
	root := &cobra.Command{
		Use:          "swapper",
		Short:        "Sponsored swaps against a fixed-ratio exchange ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newSwapCmd(),
		newQuoteCmd(),
		newReservesCmd(),
		newBalancesCmd(),
		newFaucetCmd(),
		newHistoryCmd(),
		newEventsCmd(),
		newSimulateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addSessionFlags registers the flags shared by commands that talk to a deployed ledger.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("relay-rpc", "", "sponsoring relay RPC URL (defaults to --rpc)")
	cmd.Flags().String("relay-method", "relay_sendTransaction", "relay JSON-RPC submission method")
	cmd.Flags().String("ledger", "", "exchange ledger address")
	cmd.Flags().String("token-a", "", "expected token A address (optional pin)")
	cmd.Flags().String("token-b", "", "expected token B address (optional pin)")
	cmd.Flags().String("private-key", "", "signer private key (hex)")
	cmd.Flags().String("account-factory", "", "smart account factory address")
	cmd.Flags().String("account-init-code-hash", "", "smart account init code hash")
	cmd.Flags().Uint64("account-index", 0, "smart account salt index")
	cmd.Flags().Duration("receipt-timeout", 60*time.Second, "maximum wait for a sponsored call receipt")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "receipt poll interval")
	cmd.Flags().Int("refresh-attempts", 3, "balance re-reads after a swap")
	cmd.Flags().Duration("refresh-delay", 2*time.Second, "initial delay between balance re-reads")
	cmd.Flags().String("journal", "./data/swaps.jsonl", "swap journal JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; journals swaps to Postgres instead of JSONL")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveMetrics runs the /metrics endpoint in the background when addr is set.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := observability.Serve(ctx, addr, logger); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
