// Package allocation persists target allocations: per-class portfolio
// weights and intra-class instrument fractions. The repository implements
// the target allocation port consumed by the rebalancing pipeline.
package allocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Repository handles allocation target database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// InitSchema creates the allocation tables if they do not exist
func (r *Repository) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS allocation_classes (
		account_id  TEXT NOT NULL,
		asset_class TEXT NOT NULL,
		weight_pct  REAL NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (account_id, asset_class)
	);
	CREATE TABLE IF NOT EXISTS allocation_instruments (
		account_id      TEXT NOT NULL,
		asset_class     TEXT NOT NULL,
		instrument_id   TEXT NOT NULL,
		weight_fraction REAL NOT NULL,
		updated_at      INTEGER NOT NULL,
		PRIMARY KEY (account_id, asset_class, instrument_id)
	);`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize allocation schema: %w", err)
	}
	return nil
}

// GetTarget returns the hierarchical target allocation for an account.
// Implements domain.TargetSource.
func (r *Repository) GetTarget(ctx context.Context, accountID string) (domain.TargetAllocation, error) {
	target := make(domain.TargetAllocation)

	rows, err := r.db.QueryContext(ctx,
		"SELECT asset_class, weight_pct FROM allocation_classes WHERE account_id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation classes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var assetClass string
		var weightPct float64
		if err := rows.Scan(&assetClass, &weightPct); err != nil {
			return nil, fmt.Errorf("failed to scan allocation class: %w", err)
		}
		target[assetClass] = domain.ClassTarget{WeightPct: weightPct}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation classes: %w", err)
	}

	instRows, err := r.db.QueryContext(ctx,
		"SELECT asset_class, instrument_id, weight_fraction FROM allocation_instruments WHERE account_id = ? ORDER BY asset_class, instrument_id",
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation instruments: %w", err)
	}
	defer instRows.Close()

	for instRows.Next() {
		var assetClass, instrumentID string
		var fraction float64
		if err := instRows.Scan(&assetClass, &instrumentID, &fraction); err != nil {
			return nil, fmt.Errorf("failed to scan allocation instrument: %w", err)
		}
		class, ok := target[assetClass]
		if !ok {
			// Instrument row without a class row: orphaned, skip it
			r.log.Warn().
				Str("asset_class", assetClass).
				Str("instrument", instrumentID).
				Msg("Skipping instrument weight with no class target")
			continue
		}
		class.Instruments = append(class.Instruments, domain.InstrumentWeight{
			InstrumentID:   instrumentID,
			WeightFraction: fraction,
		})
		target[assetClass] = class
	}
	if err := instRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation instruments: %w", err)
	}

	return target, nil
}

// SetClassTarget upserts the portfolio weight of an asset class
func (r *Repository) SetClassTarget(accountID, assetClass string, weightPct float64) error {
	if weightPct < 0 || weightPct > 100 {
		return fmt.Errorf("class weight must be within [0,100], got %.2f", weightPct)
	}

	query := `
		INSERT INTO allocation_classes (account_id, asset_class, weight_pct, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, asset_class) DO UPDATE SET
			weight_pct = excluded.weight_pct,
			updated_at = excluded.updated_at`

	if _, err := r.db.Exec(query, accountID, assetClass, weightPct, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set class target: %w", err)
	}
	return nil
}

// SetInstrumentWeight upserts the intra-class fraction of an instrument
func (r *Repository) SetInstrumentWeight(accountID, assetClass, instrumentID string, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("instrument weight fraction must be within [0,1], got %.4f", fraction)
	}

	query := `
		INSERT INTO allocation_instruments (account_id, asset_class, instrument_id, weight_fraction, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, asset_class, instrument_id) DO UPDATE SET
			weight_fraction = excluded.weight_fraction,
			updated_at = excluded.updated_at`

	if _, err := r.db.Exec(query, accountID, assetClass, instrumentID, fraction, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set instrument weight: %w", err)
	}
	return nil
}
