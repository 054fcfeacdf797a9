package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gaslessSwap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS swaps (
	id              TEXT PRIMARY KEY,
	account         TEXT NOT NULL,
	from_token      TEXT NOT NULL,
	to_token        TEXT NOT NULL,
	amount_in       NUMERIC(78, 0) NOT NULL,
	quoted_out      NUMERIC(78, 0) NOT NULL,
	stage           TEXT NOT NULL,
	failed_stage    TEXT,
	approval_tx     TEXT,
	swap_tx         TEXT,
	error_kind      TEXT,
	error_message   TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS swaps_account_idx ON swaps (account, started_at DESC);

CREATE TABLE IF NOT EXISTS ledger_events (
	chain_id     BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_hash   TEXT NOT NULL,
	ledger       TEXT NOT NULL,
	event_name   TEXT NOT NULL,
	caller       TEXT,
	token_in     TEXT,
	token_out    TEXT,
	amount_in    NUMERIC(78, 0),
	amount_out   NUMERIC(78, 0),
	amount_a     NUMERIC(78, 0),
	amount_b     NUMERIC(78, 0),
	block_ts     BIGINT NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for the swap journal and ledger events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// RecordSwap inserts or updates a swap journal row.
func (s *Store) RecordSwap(ctx context.Context, record model.SwapRecord) error {
	startedAt, err := parseTime(record.StartedAt)
	if err != nil {
		return fmt.Errorf("started_at: %w", err)
	}
	finishedAt, err := parseTime(record.FinishedAt)
	if err != nil {
		return fmt.Errorf("finished_at: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO swaps (
			id, account, from_token, to_token, amount_in, quoted_out, stage, failed_stage,
			approval_tx, swap_tx, error_kind, error_message, started_at, finished_at, duration_ms
		) VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id)
		DO UPDATE SET
			stage = EXCLUDED.stage,
			failed_stage = EXCLUDED.failed_stage,
			approval_tx = EXCLUDED.approval_tx,
			swap_tx = EXCLUDED.swap_tx,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms
	`,
		record.ID,
		record.Account,
		record.FromToken,
		record.ToToken,
		record.AmountIn,
		record.QuotedOut,
		record.Stage,
		nullable(record.FailedStage),
		nullable(record.ApprovalTx),
		nullable(record.SwapTx),
		nullable(record.ErrorKind),
		nullable(record.ErrorMessage),
		startedAt,
		finishedAt,
		record.DurationMs,
	)
	return err
}

// RecentSwaps returns the newest journal rows of account, newest first.
func (s *Store) RecentSwaps(ctx context.Context, account string, limit int) ([]model.SwapRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account, from_token, to_token, amount_in::text, quoted_out::text, stage,
			COALESCE(failed_stage, ''), COALESCE(approval_tx, ''), COALESCE(swap_tx, ''),
			COALESCE(error_kind, ''), COALESCE(error_message, ''), started_at, finished_at, duration_ms
		FROM swaps
		WHERE account = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SwapRecord
	for rows.Next() {
		var rec model.SwapRecord
		var startedAt, finishedAt time.Time
		if err := rows.Scan(
			&rec.ID, &rec.Account, &rec.FromToken, &rec.ToToken, &rec.AmountIn, &rec.QuotedOut, &rec.Stage,
			&rec.FailedStage, &rec.ApprovalTx, &rec.SwapTx, &rec.ErrorKind, &rec.ErrorMessage,
			&startedAt, &finishedAt, &rec.DurationMs,
		); err != nil {
			return nil, err
		}
		rec.StartedAt = startedAt.UTC().Format(time.RFC3339Nano)
		rec.FinishedAt = finishedAt.UTC().Format(time.RFC3339Nano)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutEvents inserts ledger events, ignoring ones already stored.
func (s *Store) PutEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				chain_id, tx_hash, log_index, block_number, block_hash, ledger, event_name,
				caller, token_in, token_out, amount_in, amount_out, amount_a, amount_b, block_ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::numeric,$12::numeric,$13::numeric,$14::numeric,$15)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(ev.ChainID),
			ev.TxHash,
			int64(ev.LogIndex),
			int64(ev.BlockNumber),
			ev.BlockHash,
			ev.Ledger,
			ev.EventName,
			nullable(ev.Caller),
			nullable(ev.TokenIn),
			nullable(ev.TokenOut),
			nullable(ev.AmountIn),
			nullable(ev.AmountOut),
			nullable(ev.AmountA),
			nullable(ev.AmountB),
			int64(ev.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}
