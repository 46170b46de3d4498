// Package history persists emitted evaluation summaries in PostgreSQL for
// later analysis. Writes are best effort; a failed insert is logged and never
// fails an evaluation.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Record is one persisted evaluation summary row.
type Record struct {
	ID               string    `json:"id"` // evaluation UUID
	Pair             string    `json:"pair"`
	Price            float64   `json:"price"`
	ReversalDetected bool      `json:"reversal_detected"`
	ReversalPhase    string    `json:"reversal_phase"`
	Confidence       float64   `json:"confidence"`
	ShouldExit       bool      `json:"should_exit"`
	ExitPressure     float64   `json:"exit_pressure"`
	ExitReason       string    `json:"exit_reason"`
	DCARecommended   bool      `json:"dca_recommended"`
	Summary          any       `json:"summary"` // full summary, stored as JSONB
	CreatedAt        time.Time `json:"created_at"`
}

// Repository wraps the PostgreSQL connection pool.
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a repository from a connection string and verifies the
// connection.
func New(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger.With().Str("component", "history").Logger(),
	}, nil
}

// Migrate creates the signal history table.
func (r *Repository) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS signal_history (
			id UUID PRIMARY KEY,
			pair VARCHAR(20) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			reversal_detected BOOLEAN NOT NULL,
			reversal_phase VARCHAR(16) NOT NULL,
			confidence DECIMAL(6, 2) NOT NULL,
			should_exit BOOLEAN NOT NULL,
			exit_pressure DECIMAL(6, 2) NOT NULL,
			exit_reason VARCHAR(32) NOT NULL,
			dca_recommended BOOLEAN NOT NULL,
			summary JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_signal_history_pair_time
			ON signal_history (pair, created_at DESC);
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate signal_history: %w", err)
	}
	return nil
}

// Insert stores one record. Callers treat failure as non-fatal; the error is
// returned for logging only.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
		INSERT INTO signal_history (
			id, pair, price, reversal_detected, reversal_phase, confidence,
			should_exit, exit_pressure, exit_reason, dca_recommended, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.Pair,
		rec.Price,
		rec.ReversalDetected,
		rec.ReversalPhase,
		rec.Confidence,
		rec.ShouldExit,
		rec.ExitPressure,
		rec.ExitReason,
		rec.DCARecommended,
		summary,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal history: %w", err)
	}
	return nil
}

// InsertAsync fires the insert on a goroutine and logs failures.
func (r *Repository) InsertAsync(rec *Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Insert(ctx, rec); err != nil {
			r.logger.Warn().Err(err).Str("pair", rec.Pair).Msg("signal history insert failed")
		}
	}()
}

// Recent returns the latest records for a pair.
func (r *Repository) Recent(ctx context.Context, pair string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, pair, price, reversal_detected, reversal_phase, confidence,
		       should_exit, exit_pressure, exit_reason, dca_recommended, created_at
		FROM signal_history
		WHERE pair = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Pair, &rec.Price, &rec.ReversalDetected,
			&rec.ReversalPhase, &rec.Confidence, &rec.ShouldExit,
			&rec.ExitPressure, &rec.ExitReason, &rec.DCARecommended,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal history row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
