// Package quotes fetches live prices for a set of instruments under the
// brokerage's strict per-second request ceiling.
package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Service fans out quote lookups behind a counting gate of size 1: requests
// are fully serialized, each preceded by a fixed inter-request delay, and the
// caller join-barriers before the pipeline proceeds. A partial price set is a
// hard failure, never silent partial sizing.
type Service struct {
	source domain.QuoteSource
	delay  time.Duration
	gate   *semaphore.Weighted
	log    zerolog.Logger
}

// NewService creates a quote fetch service
func NewService(source domain.QuoteSource, delay time.Duration, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		delay:  delay,
		gate:   semaphore.NewWeighted(1),
		log:    log.With().Str("service", "quotes").Logger(),
	}
}

// FetchAll returns a price for every requested instrument or an error.
// Any single missing price fails the whole fetch - a missing price
// masquerading as "no position wanted" must never reach sizing.
func (s *Service) FetchAll(ctx context.Context, instrumentIDs []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return prices, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, instrumentID := range instrumentIDs {
		instrumentID := instrumentID
		g.Go(func() error {
			if err := s.gate.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.gate.Release(1)

			// Fixed inter-request delay keeps us under the broker's
			// per-second ceiling even with an instant response.
			if s.delay > 0 {
				timer := time.NewTimer(s.delay)
				defer timer.Stop()
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-timer.C:
				}
			}

			price, err := s.source.GetPrice(gctx, instrumentID)
			if err != nil {
				return fmt.Errorf("failed to fetch price for %s: %w", instrumentID, err)
			}
			if price <= 0 {
				return fmt.Errorf("invalid price %.4f for %s", price, instrumentID)
			}

			mu.Lock()
			prices[instrumentID] = price
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debug().Int("instruments", len(prices)).Msg("Fetched quotes")
	return prices, nil
}
