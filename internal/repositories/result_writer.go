package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
)

// Migrations creates the tables a settlement run is stored in.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS settlement_runs (
		run_id UUID PRIMARY KEY,
		balances_count INTEGER NOT NULL,
		events_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS settlement_balances (
		run_id UUID NOT NULL REFERENCES settlement_runs(run_id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		balance NUMERIC NOT NULL,
		PRIMARY KEY (run_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS settlement_events (
		run_id UUID NOT NULL REFERENCES settlement_runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		transaction_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);`,
}

const (
	insertRunQuery = `
		INSERT INTO settlement_runs (run_id, balances_count, events_count, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	insertBalanceQuery = `
		INSERT INTO settlement_balances (run_id, user_id, balance)
		VALUES ($1, $2, $3)
	`
	insertEventQuery = `
		INSERT INTO settlement_events (run_id, seq, transaction_id, status, message)
		VALUES ($1, $2, $3, $4, $5)
	`
)

// ResultWriteRepository stores settlement runs in Postgres.
type ResultWriteRepository struct {
	db *sqlx.DB
}

func NewResultWriteRepository(db *sqlx.DB) *ResultWriteRepository {
	return &ResultWriteRepository{db: db}
}

// EnsureSchema applies Migrations.
func (r *ResultWriteRepository) EnsureSchema(ctx context.Context) error {
	for _, m := range Migrations {
		if _, err := r.db.ExecContext(ctx, m); err != nil {
			logger.Log.Errorw("migration failed", "query", compact(m), "error", err)
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run, its balances and its events in one transaction.
// Events keep their input position in seq since transaction IDs may repeat.
func (r *ResultWriteRepository) SaveRun(ctx context.Context, runID uuid.UUID, balances []models.Balance, events []models.Event) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Log.Errorw("rollback failed", "run_id", runID, "error", rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, insertRunQuery, runID, len(balances), len(events)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, b := range balances {
		if _, err = tx.ExecContext(ctx, insertBalanceQuery, runID, b.UserID, b.Balance.String()); err != nil {
			return fmt.Errorf("insert balance of user %s: %w", b.UserID, err)
		}
	}

	for i, e := range events {
		if _, err = tx.ExecContext(ctx, insertEventQuery, runID, i+1, e.TransactionID, e.Status, e.Message); err != nil {
			return fmt.Errorf("insert event of transaction %s: %w", e.TransactionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logger.Log.Infow("settlement run saved",
		"query", compact(insertRunQuery),
		"args", []any{runID, len(balances), len(events)},
		"result", "ok",
	)
	return nil
}

func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
