package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSnapshotSource serves a sequence of snapshots, repeating the last one
type mockSnapshotSource struct {
	mu        sync.Mutex
	snapshots []*domain.Snapshot
	errs      []error
	calls     int
}

func (m *mockSnapshotSource) GetSnapshot(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.snapshots) {
		idx = len(m.snapshots) - 1
	}
	return m.snapshots[idx], nil
}

func snapshotWith(quantities map[string]int64) *domain.Snapshot {
	s := &domain.Snapshot{AccountID: "acc-1", TotalValue: 1000}
	for id, qty := range quantities {
		s.Holdings = append(s.Holdings, domain.Holding{
			InstrumentID: id, Quantity: qty, AssetClass: "equity",
		})
	}
	return s
}

func TestConfirmFills_ImmediateFill(t *testing.T) {
	source := &mockSnapshotSource{snapshots: []*domain.Snapshot{
		snapshotWith(map[string]int64{"SELL-1": 60}),
	}}
	confirmer := NewPollingConfirmer(source, 10*time.Millisecond, zerolog.Nop())

	filled, err := confirmer.ConfirmFills(context.Background(), "acc-1", map[string]int64{"SELL-1": 60})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"SELL-1": true}, filled)
	assert.Equal(t, 1, source.calls, "first check must precede any ticker wait")
}

func TestConfirmFills_GradualFills(t *testing.T) {
	source := &mockSnapshotSource{snapshots: []*domain.Snapshot{
		snapshotWith(map[string]int64{"SELL-1": 100, "SELL-2": 50}),
		snapshotWith(map[string]int64{"SELL-1": 60, "SELL-2": 50}),
		snapshotWith(map[string]int64{"SELL-1": 60, "SELL-2": 0}),
	}}
	confirmer := NewPollingConfirmer(source, 5*time.Millisecond, zerolog.Nop())

	targets := map[string]int64{"SELL-1": 60, "SELL-2": 0}
	filled, err := confirmer.ConfirmFills(context.Background(), "acc-1", targets)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"SELL-1": true, "SELL-2": true}, filled)
	assert.GreaterOrEqual(t, source.calls, 3)
}

func TestConfirmFills_DeadlineReturnsPartial(t *testing.T) {
	// Holdings never move: nothing confirms before the deadline
	source := &mockSnapshotSource{snapshots: []*domain.Snapshot{
		snapshotWith(map[string]int64{"SELL-1": 100, "SELL-2": 50}),
	}}
	confirmer := NewPollingConfirmer(source, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	targets := map[string]int64{"SELL-1": 60, "SELL-2": 0}
	filled, err := confirmer.ConfirmFills(ctx, "acc-1", targets)
	require.NoError(t, err)
	assert.Empty(t, filled)
}

func TestConfirmFills_TransientErrorKeepsPolling(t *testing.T) {
	source := &mockSnapshotSource{
		errs: []error{fmt.Errorf("broker hiccup")},
		snapshots: []*domain.Snapshot{
			snapshotWith(map[string]int64{"SELL-1": 60}),
			snapshotWith(map[string]int64{"SELL-1": 60}),
		},
	}
	confirmer := NewPollingConfirmer(source, 5*time.Millisecond, zerolog.Nop())

	filled, err := confirmer.ConfirmFills(context.Background(), "acc-1", map[string]int64{"SELL-1": 60})
	require.NoError(t, err)
	assert.True(t, filled["SELL-1"])
	assert.GreaterOrEqual(t, source.calls, 2)
}

func TestConfirmFills_NoTargets(t *testing.T) {
	source := &mockSnapshotSource{snapshots: []*domain.Snapshot{snapshotWith(nil)}}
	confirmer := NewPollingConfirmer(source, 5*time.Millisecond, zerolog.Nop())

	filled, err := confirmer.ConfirmFills(context.Background(), "acc-1", nil)
	require.NoError(t, err)
	assert.Empty(t, filled)
	assert.Zero(t, source.calls)
}
