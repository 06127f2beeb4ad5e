// Package scheduler triggers unattended rebalancing runs on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"ballast/internal/domain"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner starts rebalancing runs
type Runner interface {
	Run(ctx context.Context, accountID string, maxPhase int) (*domain.RunResult, error)
}

// Scheduler runs full rebalancing runs on a cron expression
type Scheduler struct {
	runner    Runner
	accountID string
	spec      string
	cron      *cron.Cron
	mu        sync.Mutex
	running   bool
	log       zerolog.Logger
}

// New creates a cron-driven scheduler. The spec uses the standard 5-field
// cron format, e.g. "30 9 * * 1-5" for weekday market open.
func New(runner Runner, accountID, spec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		accountID: accountID,
		spec:      spec,
		cron:      cron.New(),
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the cron entry and starts the ticker
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.trigger); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("Rebalance schedule started")
	return nil
}

// Stop stops the ticker and waits for a running job to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Rebalance schedule stopped")
}

// trigger runs one full rebalancing run. Overlapping triggers are skipped:
// a run already in flight holds the broker's attention.
func (s *Scheduler) trigger() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Skipping scheduled run, previous run still in progress")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := s.runner.Run(ctx, s.accountID, 5)
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduled rebalancing run failed")
		return
	}
	s.log.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Msg("Scheduled rebalancing run finished")
}
