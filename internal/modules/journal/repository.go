// Package journal persists rebalancing run results and per-order outcomes
// as an immutable audit trail.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Repository handles run journal database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new journal repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "journal").Logger(),
	}
}

// InitSchema creates the journal tables if they do not exist
func (r *Repository) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		account_id    TEXT NOT NULL,
		status        TEXT NOT NULL,
		phase_reached INTEGER NOT NULL,
		reasons       TEXT,
		started_at    INTEGER NOT NULL,
		finished_at   INTEGER NOT NULL,
		created_at    INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_orders (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL,
		phase         TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		side          TEXT NOT NULL,
		quantity      INTEGER NOT NULL,
		status        TEXT NOT NULL,
		order_id      TEXT,
		detail        TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_run_orders_run_id ON run_orders(run_id);`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// RunRecord is a persisted run summary
type RunRecord struct {
	RunID        string    `json:"run_id"`
	AccountID    string    `json:"account_id"`
	Status       string    `json:"status"`
	PhaseReached int       `json:"phase_reached"`
	Reasons      []string  `json:"reasons,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RecordRun persists a run result and its order outcomes in one transaction.
// Implements the orchestrator's RunJournal interface.
func (r *Repository) RecordRun(result *domain.RunResult) error {
	if result == nil {
		return fmt.Errorf("run result is required")
	}

	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode run reasons: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, account_id, status, phase_reached, reasons, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.AccountID,
		string(result.Status),
		result.PhaseReached,
		string(reasons),
		result.StartedAt.Unix(),
		result.FinishedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := r.insertOrders(tx, result.RunID, "sell", result.SellResults); err != nil {
		return err
	}
	if err := r.insertOrders(tx, result.RunID, "buy", result.BuyResults); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}

	r.log.Debug().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Msg("Run recorded")
	return nil
}

// insertOrders inserts the order outcomes of one phase
func (r *Repository) insertOrders(tx *sql.Tx, runID, phase string, outcomes []domain.OrderOutcome) error {
	for _, o := range outcomes {
		_, err := tx.Exec(`
			INSERT INTO run_orders (run_id, phase, instrument_id, side, quantity, status, order_id, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, phase, o.InstrumentID, string(o.Side), o.Quantity, string(o.Status), o.OrderID, o.Detail,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s order outcome for %s: %w", phase, o.InstrumentID, err)
		}
	}
	return nil
}

// ListRecent returns the most recent runs, newest first
func (r *Repository) ListRecent(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT run_id, account_id, status, phase_reached, reasons, started_at, finished_at
		FROM runs ORDER BY started_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var reasons sql.NullString
		var startedAt, finishedAt int64
		if err := rows.Scan(&rec.RunID, &rec.AccountID, &rec.Status, &rec.PhaseReached, &reasons, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if reasons.Valid && strings.TrimSpace(reasons.String) != "" {
			if err := json.Unmarshal([]byte(reasons.String), &rec.Reasons); err != nil {
				r.log.Warn().Err(err).Str("run_id", rec.RunID).Msg("Failed to decode run reasons")
			}
		}
		rec.StartedAt = time.Unix(startedAt, 0).UTC()
		rec.FinishedAt = time.Unix(finishedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return records, nil
}

// GetOrders returns the order outcomes recorded for a run
func (r *Repository) GetOrders(runID string) ([]domain.OrderOutcome, error) {
	rows, err := r.db.Query(`
		SELECT instrument_id, side, quantity, status, order_id, detail
		FROM run_orders WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run orders: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.OrderOutcome
	for rows.Next() {
		var o domain.OrderOutcome
		var side, status string
		var orderID, detail sql.NullString
		if err := rows.Scan(&o.InstrumentID, &side, &o.Quantity, &status, &orderID, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan run order: %w", err)
		}
		o.Side = domain.TradeSide(side)
		o.Status = domain.OrderStatus(status)
		o.OrderID = orderID.String
		o.Detail = detail.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run orders: %w", err)
	}

	return outcomes, nil
}
