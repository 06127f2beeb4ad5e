package quotes

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockQuoteSource serves scripted prices and records concurrency
type mockQuoteSource struct {
	mu       sync.Mutex
	prices   map[string]float64
	errs     map[string]error
	inFlight int32
	maxSeen  int32
	calls    int
}

func (m *mockQuoteSource) GetPrice(ctx context.Context, instrumentID string) (float64, error) {
	current := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		max := atomic.LoadInt32(&m.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&m.maxSeen, max, current) {
			break
		}
	}

	// Hold the slot briefly so overlap would be observable
	time.Sleep(2 * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[instrumentID]; err != nil {
		return 0, err
	}
	return m.prices[instrumentID], nil
}

func TestFetchAll_ReturnsAllPrices(t *testing.T) {
	source := &mockQuoteSource{prices: map[string]float64{
		"EQ-A": 100.5,
		"EQ-B": 42.0,
		"EQ-C": 7.25,
	}}
	svc := NewService(source, 0, zerolog.Nop())

	prices, err := svc.FetchAll(context.Background(), []string{"EQ-A", "EQ-B", "EQ-C"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EQ-A": 100.5, "EQ-B": 42.0, "EQ-C": 7.25}, prices)
}

func TestFetchAll_RequestsAreSerialized(t *testing.T) {
	source := &mockQuoteSource{prices: map[string]float64{
		"EQ-A": 1, "EQ-B": 2, "EQ-C": 3, "EQ-D": 4,
	}}
	svc := NewService(source, 0, zerolog.Nop())

	_, err := svc.FetchAll(context.Background(), []string{"EQ-A", "EQ-B", "EQ-C", "EQ-D"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.maxSeen, "gate of size 1 must never overlap requests")
}

func TestFetchAll_SingleFailureFailsWholeFetch(t *testing.T) {
	source := &mockQuoteSource{
		prices: map[string]float64{"EQ-A": 100, "EQ-C": 50},
		errs:   map[string]error{"EQ-B": fmt.Errorf("quote unavailable")},
	}
	svc := NewService(source, 0, zerolog.Nop())

	prices, err := svc.FetchAll(context.Background(), []string{"EQ-A", "EQ-B", "EQ-C"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EQ-B")
	assert.Nil(t, prices, "partial price sets must never escape")
}

func TestFetchAll_NonPositivePriceFails(t *testing.T) {
	source := &mockQuoteSource{prices: map[string]float64{"EQ-A": 0}}
	svc := NewService(source, 0, zerolog.Nop())

	_, err := svc.FetchAll(context.Background(), []string{"EQ-A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid price")
}

func TestFetchAll_EmptyInput(t *testing.T) {
	source := &mockQuoteSource{}
	svc := NewService(source, time.Second, zerolog.Nop())

	prices, err := svc.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Zero(t, source.calls)
}

func TestFetchAll_CancelledContext(t *testing.T) {
	source := &mockQuoteSource{prices: map[string]float64{"EQ-A": 1}}
	svc := NewService(source, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.FetchAll(ctx, []string{"EQ-A"})
	assert.Error(t, err)
}
