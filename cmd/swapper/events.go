package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gaslessSwap/internal/chain"
	"gaslessSwap/internal/config"
	"gaslessSwap/internal/indexer"
	"gaslessSwap/internal/storage"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Index ledger events into JSONL or Postgres",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}

	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().StringSlice("ledger", nil, "ledger addresses (comma-separated)")
	cmd.Flags().StringSlice("event", nil, "event names to index (default: all)")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().Uint64("confirmations", 0, "stay this many blocks behind the chain head")
	cmd.Flags().String("out", "./data/ledger_events.jsonl", "output JSONL path")
	cmd.Flags().String("checkpoint", "./data/events_checkpoint.json", "checkpoint file path, empty disables")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; stores events and progress in Postgres")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Bool("follow", false, "keep polling for new blocks")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "poll interval in follow mode")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEvents(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	ledgers, err := indexer.ParseAddresses(cfg.Ledgers)
	if err != nil {
		return err
	}
	if len(ledgers) == 0 {
		return fmt.Errorf("ledger address is required")
	}
	topics, err := indexer.ParseEvents(cfg.Events)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var (
		sink       storage.EventSink
		checkpoint indexer.Checkpointer
		target     string
	)
	ledgerKeys := make([]string, 0, len(ledgers))
	for _, addr := range ledgers {
		ledgerKeys = append(ledgerKeys, strings.ToLower(addr.Hex()))
	}
	stateName := "events:" + strings.Join(ledgerKeys, ",")

	if cfg.PGDSN != "" {
		store, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
		checkpoint = indexer.NewStateCheckpoint(store, stateName)
		target = "postgres"
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
		if cfg.Checkpoint != "" {
			checkpoint = indexer.NewCheckpointStore(cfg.Checkpoint, strings.Join(ledgerKeys, ","))
		}
		target = cfg.Out
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		Ledgers:       ledgers,
		Topic0:        topics,
		BatchSize:     cfg.BatchSize,
		Confirmations: cfg.Confirmations,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		Follow:        cfg.Follow,
		PollInterval:  cfg.PollInterval,
	}, chainClient, sink, checkpoint, logger)
	if err != nil {
		return err
	}

	logger.Info("events start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("ledgers", len(ledgers)),
		zap.Int("events", len(topics)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("target", target),
		zap.Bool("follow", cfg.Follow),
	)

	if err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("events stopped")
			return nil
		}
		return err
	}
	logger.Info("events finished")
	return nil
}
