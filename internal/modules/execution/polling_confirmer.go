package execution

import (
	"context"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// PollingConfirmer confirms sell fills by re-fetching the holdings snapshot
// at a fixed interval and cross-checking every pending instruction against
// it. One read per cycle regardless of plan size. This is the minimum viable
// confirmation mechanism; a push-based fill stream is preferred when the
// broker integration offers one.
type PollingConfirmer struct {
	snapshots domain.SnapshotSource
	interval  time.Duration
	log       zerolog.Logger
}

// NewPollingConfirmer creates a polling fill confirmer
func NewPollingConfirmer(snapshots domain.SnapshotSource, interval time.Duration, log zerolog.Logger) *PollingConfirmer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollingConfirmer{
		snapshots: snapshots,
		interval:  interval,
		log:       log.With().Str("component", "polling_confirmer").Logger(),
	}
}

// ConfirmFills polls until every target is reached or the context deadline
// expires. An instruction is confirmed the first time its polled quantity is
// at or below its target. A transient snapshot error is logged and the loop
// keeps polling; the deadline is the only exit on a degraded broker.
func (c *PollingConfirmer) ConfirmFills(ctx context.Context, accountID string, targets map[string]int64) (map[string]bool, error) {
	filled := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return filled, nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.checkOnce(ctx, accountID, targets, filled)
		if len(filled) == len(targets) {
			c.log.Info().Int("confirmed", len(filled)).Msg("All sell fills confirmed")
			return filled, nil
		}

		select {
		case <-ctx.Done():
			c.log.Warn().
				Int("confirmed", len(filled)).
				Int("pending", len(targets)-len(filled)).
				Msg("Fill confirmation window closed with pending sells")
			return filled, nil
		case <-ticker.C:
		}
	}
}

// checkOnce fetches the snapshot once and marks every reached target
func (c *PollingConfirmer) checkOnce(ctx context.Context, accountID string, targets map[string]int64, filled map[string]bool) {
	snapshot, err := c.snapshots.GetSnapshot(ctx, accountID)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to fetch holdings for fill check, will retry")
		return
	}

	for instrumentID, target := range targets {
		if filled[instrumentID] {
			continue
		}
		if snapshot.HoldingQuantity(instrumentID) <= target {
			filled[instrumentID] = true
			c.log.Debug().
				Str("instrument", instrumentID).
				Int64("target", target).
				Msg("Sell fill confirmed")
		}
	}
}
