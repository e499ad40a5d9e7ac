// Package history persists per-term rank observations to PostgreSQL so that
// rank trajectories survive process restarts and can be charted later. The
// in-memory ledger stays authoritative for the live session; this store is a
// durable append-only log behind it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/query"
	"github.com/embeddinglab/wordvec-lab/pkg/postgres"
	"github.com/embeddinglab/wordvec-lab/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS rank_history (
	id          BIGSERIAL PRIMARY KEY,
	query_key   TEXT        NOT NULL,
	term        TEXT        NOT NULL,
	rank        INT         NOT NULL,
	iteration   INT         NOT NULL,
	status      TEXT        NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rank_history_query_term
	ON rank_history (query_key, term, iteration);
`

// Store writes and reads rank observations.
type Store struct {
	client *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
		},
		logger: slog.Default().With("component", "history-store"),
	}
}

// EnsureSchema creates the rank_history table and index if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating rank_history schema: %w", err)
	}
	return nil
}

// Append persists one batch of surfaced records at the given iteration. All
// rows commit atomically; transient failures are retried with backoff.
func (s *Store) Append(ctx context.Context, queryKey string, iteration int, records []query.OutRecord) error {
	if len(records) == 0 {
		return nil
	}
	return resilience.Retry(ctx, "rank-history-append", s.retry, func() error {
		return s.client.InTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO rank_history (query_key, term, rank, iteration, status)
				VALUES ($1, $2, $3, $4, $5)`)
			if err != nil {
				return fmt.Errorf("preparing insert: %w", err)
			}
			defer stmt.Close()
			for _, rec := range records {
				if _, err := stmt.ExecContext(ctx, queryKey, rec.Term, rec.Rank, iteration, string(rec.Status)); err != nil {
					return fmt.Errorf("inserting rank row for %q: %w", rec.Term, err)
				}
			}
			return nil
		})
	})
}

// TermHistory returns the persisted observations for one term under one
// query, ordered by iteration.
func (s *Store) TermHistory(ctx context.Context, queryKey, term string) ([]query.HistoryEntry, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT rank, iteration
		FROM rank_history
		WHERE query_key = $1 AND term = $2
		ORDER BY iteration ASC, id ASC`, queryKey, term)
	if err != nil {
		return nil, fmt.Errorf("querying rank history: %w", err)
	}
	defer rows.Close()

	var entries []query.HistoryEntry
	for rows.Next() {
		var e query.HistoryEntry
		if err := rows.Scan(&e.Rank, &e.Iteration); err != nil {
			return nil, fmt.Errorf("scanning rank history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rank history rows: %w", err)
	}
	return entries, nil
}

// RecordRanks implements the session rank sink. Failures are logged, never
// propagated: persistence must not disturb the interactive loop.
func (s *Store) RecordRanks(queryKey string, iteration int, records []query.OutRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Append(ctx, queryKey, iteration, records); err != nil {
		s.logger.Error("failed to persist rank records",
			"query", queryKey,
			"iteration", iteration,
			"records", len(records),
			"error", err,
		)
	}
}
