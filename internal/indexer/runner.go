package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/observability"
	"gaslessSwap/internal/retry"
	"gaslessSwap/internal/storage"
)

// Chain is the log source. chain.Client satisfies it.
type Chain interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// DecodeErrorSink receives logs that matched the filter but failed to decode.
type DecodeErrorSink interface {
	PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock uint64
	ToBlock   uint64
	Ledgers   []common.Address
	Topic0    []common.Hash
	BatchSize uint64
	// Confirmations keeps the indexer this many blocks behind the head when ToBlock is 0.
	Confirmations uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	// Follow keeps polling for new blocks every PollInterval after catching up.
	Follow       bool
	PollInterval time.Duration
}

// Runner streams ledger logs from the chain, decodes them and writes them to a sink.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	sink       storage.EventSink
	errSink    DecodeErrorSink
	checkpoint Checkpointer
	decoder    *dex.LedgerDecoder
	logger     *zap.Logger
	seen       map[string]struct{}
}

// NewRunner builds a Runner with its dependencies. checkpoint and errSink may be nil.
func NewRunner(cfg RunConfig, chainClient Chain, sink storage.EventSink, checkpoint Checkpointer, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := dex.NewLedgerDecoder()
	if err != nil {
		return nil, fmt.Errorf("ledger decoder: %w", err)
	}
	if len(cfg.Topic0) == 0 {
		cfg.Topic0 = decoder.Topics()
	}
	r := &Runner{
		cfg:        cfg,
		chain:      chainClient,
		sink:       sink,
		checkpoint: checkpoint,
		decoder:    decoder,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
	if errSink, ok := sink.(DecodeErrorSink); ok {
		r.errSink = errSink
	}
	return r, nil
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("event sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Ledgers) == 0 {
		return fmt.Errorf("at least one ledger address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to, ready := r.cfg.ToBlock, true
		if to == 0 {
			latest, err := r.chain.LatestBlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			to, ready = SafeHead(latest, r.cfg.Confirmations)
		}

		if ready && from <= to {
			if err := r.syncRange(ctx, chainIDValue, from, to); err != nil {
				return err
			}
			from = to + 1
		} else if !r.cfg.Follow {
			r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.cfg.Follow || r.cfg.ToBlock != 0 {
			return nil
		}
		if err := retry.Sleep(ctx, r.pollInterval()); err != nil {
			return err
		}
	}
}

func (r *Runner) syncRange(ctx context.Context, chainID, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		events := make([]model.LedgerEvent, 0, len(logs))
		var decodeErrs []model.DecodeError
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}
			if len(log.Topics) == 0 || !r.decoder.CanDecode(log.Topics[0]) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			event, err := r.decoder.Decode(log, buildLogMeta(chainID, ts, ingestedAt))
			if err != nil {
				r.logger.Warn("decode log failed", zap.String("tx", log.TxHash.Hex()), zap.Uint("index", log.Index), zap.Error(err))
				decodeErrs = append(decodeErrs, buildDecodeError(chainID, log, err))
				continue
			}
			events = append(events, *event)
			observability.Ledger().RecordEvent(event.EventName, "indexer")
		}

		if err := r.sink.PutEvents(ctx, events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if len(decodeErrs) > 0 && r.errSink != nil {
			if err := r.errSink.PutDecodeErrors(ctx, decodeErrs); err != nil {
				return fmt.Errorf("store decode errors: %w", err)
			}
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("events", len(events)),
			zap.Int("decode_errors", len(decodeErrs)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}
	return nil
}

func (r *Runner) pollInterval() time.Duration {
	if r.cfg.PollInterval <= 0 {
		return 5 * time.Second
	}
	return r.cfg.PollInterval
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Ledgers, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
