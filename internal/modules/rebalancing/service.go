// Package rebalancing sequences the full pipeline: snapshot and target load,
// drift analysis, trade sizing, strategy planning, validation and execution.
// The service is re-entrant with no process-wide state; every run is a pure
// function of its injected ports plus the max-phase cutoff.
package rebalancing

import (
	"context"
	"fmt"
	"time"

	"ballast/internal/domain"
	"ballast/internal/modules/execution"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pipeline phases. A run consumes only the prior phase's output; nothing is
// re-derived.
const (
	PhaseDataLoad   = 1 // snapshot + target load
	PhaseDrift      = 2 // drift analysis + threshold gate
	PhasePlanning   = 3 // netting + strategy planning
	PhaseValidation = 4 // plan validation
	PhaseExecution  = 5 // order execution
)

// DriftAnalyzer computes drift and decides whether rebalancing is needed
type DriftAnalyzer interface {
	Calculate(snapshot *domain.Snapshot, target domain.TargetAllocation) (*domain.DriftReport, error)
	ExceedsThreshold(report *domain.DriftReport, classThresholdPct, instrumentThresholdPct float64) (bool, []string)
}

// TradeSizer converts weights and prices into filtered net trades
type TradeSizer interface {
	TargetQuantities(totalEquity float64, weights map[string]float64, prices map[string]float64) (map[string]int64, error)
	NetTrades(current, target map[string]int64, prices map[string]float64) ([]domain.NetTrade, error)
	FilterMinimumTrade(trades []domain.NetTrade, prices map[string]float64, minAmount float64) []domain.NetTrade
}

// PlanBuilder assigns execution styles to net trades
type PlanBuilder interface {
	Plan(ctx context.Context, trades []domain.NetTrade, mctx domain.MarketContext) []domain.ExecutionInstruction
}

// PlanValidator simulates the cash ledger against a plan
type PlanValidator interface {
	Validate(snapshot *domain.Snapshot, plan []domain.ExecutionInstruction) domain.ValidationResult
}

// PlanExecutor runs the two-phase order execution
type PlanExecutor interface {
	Execute(ctx context.Context, accountID string, snapshot *domain.Snapshot, plan []domain.ExecutionInstruction) *execution.Report
}

// QuoteFetcher returns a complete price set or an error
type QuoteFetcher interface {
	FetchAll(ctx context.Context, instrumentIDs []string) (map[string]float64, error)
}

// RunJournal persists run results. Optional; persistence failures never
// change a run's outcome.
type RunJournal interface {
	RecordRun(result *domain.RunResult) error
}

// Config holds the orchestrator's gate and filter settings
type Config struct {
	ClassDriftThresholdPct      float64
	InstrumentDriftThresholdPct float64
	MinTradeAmount              float64
}

// Service orchestrates rebalancing runs
type Service struct {
	snapshots domain.SnapshotSource
	targets   domain.TargetSource
	quotes    QuoteFetcher
	drift     DriftAnalyzer
	sizer     TradeSizer
	planner   PlanBuilder
	validator PlanValidator
	executor  PlanExecutor
	journal   RunJournal // optional
	cfg       Config
	log       zerolog.Logger
}

// NewService creates a rebalancing orchestrator
func NewService(
	snapshots domain.SnapshotSource,
	targets domain.TargetSource,
	quotes QuoteFetcher,
	drift DriftAnalyzer,
	sizer TradeSizer,
	planner PlanBuilder,
	validator PlanValidator,
	executor PlanExecutor,
	journal RunJournal,
	cfg Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		snapshots: snapshots,
		targets:   targets,
		quotes:    quotes,
		drift:     drift,
		sizer:     sizer,
		planner:   planner,
		validator: validator,
		executor:  executor,
		journal:   journal,
		cfg:       cfg,
		log:       log.With().Str("service", "rebalancing").Logger(),
	}
}

// Run executes the staged pipeline up to maxPhase (1..5). Stopping early is
// how dry runs work: maxPhase=2 reports diagnostics only, maxPhase=4
// validates without trading. If the drift gate is not tripped the run
// terminates "not_needed" regardless of maxPhase.
func (s *Service) Run(ctx context.Context, accountID string, maxPhase int) (*domain.RunResult, error) {
	if maxPhase < PhaseDataLoad {
		maxPhase = PhaseDataLoad
	}
	if maxPhase > PhaseExecution {
		maxPhase = PhaseExecution
	}

	result := &domain.RunResult{
		RunID:     uuid.New().String(),
		AccountID: accountID,
		StartedAt: time.Now().UTC(),
	}
	defer s.record(result)

	s.log.Info().
		Str("run_id", result.RunID).
		Str("account_id", accountID).
		Int("max_phase", maxPhase).
		Msg("Starting rebalancing run")

	// Phase 1: data load
	snapshot, target, err := s.loadInputs(ctx, accountID)
	if err != nil {
		return s.fail(result, PhaseDataLoad, err), nil
	}
	result.PhaseReached = PhaseDataLoad
	if maxPhase == PhaseDataLoad {
		return s.finish(result, domain.RunSuccess), nil
	}

	// Phase 2: drift analysis + threshold gate
	report, err := s.drift.Calculate(snapshot, target)
	if err != nil {
		return s.fail(result, PhaseDrift, err), nil
	}
	result.Drift = report
	result.PhaseReached = PhaseDrift

	exceeded, reasons := s.drift.ExceedsThreshold(report, s.cfg.ClassDriftThresholdPct, s.cfg.InstrumentDriftThresholdPct)
	if !exceeded {
		result.Reasons = []string{"drift below thresholds"}
		return s.finish(result, domain.RunNotNeeded), nil
	}
	result.Reasons = reasons
	if maxPhase == PhaseDrift {
		return s.finish(result, domain.RunSuccess), nil
	}

	// Phase 3: netting + strategy planning
	plan, err := s.buildPlan(ctx, snapshot, target)
	if err != nil {
		return s.fail(result, PhasePlanning, err), nil
	}
	result.Plan = plan
	result.PhaseReached = PhasePlanning

	if len(plan) == 0 {
		result.Reasons = append(result.Reasons, "no trades above minimum amount")
		return s.finish(result, domain.RunNotNeeded), nil
	}
	if maxPhase == PhasePlanning {
		return s.finish(result, domain.RunSuccess), nil
	}

	// Phase 4: validation
	validation := s.validator.Validate(snapshot, plan)
	result.Validation = &validation
	result.PhaseReached = PhaseValidation

	if !validation.IsValid {
		// A rejected plan never reaches the executor; no brokerage call occurs
		result.Reasons = append(result.Reasons, validation.Reasons...)
		return s.finish(result, domain.RunStopped), nil
	}
	if maxPhase == PhaseValidation {
		return s.finish(result, domain.RunSuccess), nil
	}

	// Phase 5: execution
	execReport := s.executor.Execute(ctx, accountID, snapshot, plan)
	result.SellResults = execReport.SellResults
	result.BuyResults = execReport.BuyResults
	result.PhaseReached = PhaseExecution

	if execReport.Stopped {
		result.Reasons = append(result.Reasons, execReport.StopReason)
		return s.finish(result, domain.RunStopped), nil
	}

	return s.finish(result, domain.RunSuccess), nil
}

// loadInputs fetches the immutable per-run inputs
func (s *Service) loadInputs(ctx context.Context, accountID string) (*domain.Snapshot, domain.TargetAllocation, error) {
	if s.snapshots == nil || s.targets == nil {
		return nil, nil, fmt.Errorf("snapshot and target sources are required")
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}
	if snapshot == nil || len(snapshot.Holdings) == 0 && snapshot.Cash == 0 {
		return nil, nil, fmt.Errorf("empty portfolio snapshot for account %s", accountID)
	}

	target, err := s.targets.GetTarget(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load target allocation: %w", err)
	}
	if len(target) == 0 {
		return nil, nil, fmt.Errorf("no target allocation configured for account %s", accountID)
	}

	return snapshot, target, nil
}

// buildPlan fetches prices for the union of targeted and held instruments,
// sizes the trades and assigns execution styles. Price fetch and sizing
// failures are hard errors - partial sizing is never allowed.
func (s *Service) buildPlan(ctx context.Context, snapshot *domain.Snapshot, target domain.TargetAllocation) ([]domain.ExecutionInstruction, error) {
	weights := target.InstrumentWeights()

	universe := make(map[string]bool, len(weights)+len(snapshot.Holdings))
	for id, w := range weights {
		if w != 0 {
			universe[id] = true
		}
	}
	current := make(map[string]int64, len(snapshot.Holdings))
	for _, h := range snapshot.Holdings {
		current[h.InstrumentID] = h.Quantity
		universe[h.InstrumentID] = true
	}

	ids := make([]string, 0, len(universe))
	for id := range universe {
		ids = append(ids, id)
	}

	prices, err := s.quotes.FetchAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	targetQty, err := s.sizer.TargetQuantities(snapshot.TotalValue, weights, prices)
	if err != nil {
		return nil, err
	}

	trades, err := s.sizer.NetTrades(current, targetQty, prices)
	if err != nil {
		return nil, err
	}
	trades = s.sizer.FilterMinimumTrade(trades, prices, s.cfg.MinTradeAmount)

	mctx := domain.MarketContext{Prices: prices, TotalEquity: snapshot.TotalValue}
	plan := s.planner.Plan(ctx, trades, mctx)
	return plan, nil
}

// fail finalizes a run that hit a hard input/data error
func (s *Service) fail(result *domain.RunResult, phase int, err error) *domain.RunResult {
	result.PhaseReached = phase
	result.Reasons = append(result.Reasons, err.Error())
	s.log.Error().
		Str("run_id", result.RunID).
		Int("phase", phase).
		Err(err).
		Msg("Rebalancing run failed")
	return s.finish(result, domain.RunError)
}

// finish stamps the terminal status
func (s *Service) finish(result *domain.RunResult, status domain.RunStatus) *domain.RunResult {
	result.Status = status
	result.FinishedAt = time.Now().UTC()
	s.log.Info().
		Str("run_id", result.RunID).
		Str("status", string(status)).
		Int("phase_reached", result.PhaseReached).
		Msg("Rebalancing run finished")
	return result
}

// record persists the run if a journal is configured
func (s *Service) record(result *domain.RunResult) {
	if s.journal == nil || result.Status == "" {
		return
	}
	if err := s.journal.RecordRun(result); err != nil {
		s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record run")
	}
}
