// Package execution places a validated plan against the brokerage in two
// strictly ordered phases: liquidate first with fill confirmation, then
// acquire. Buys are never submitted against an incomplete sell phase.
package execution

import (
	"context"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Config holds executor tunables
type Config struct {
	FillTimeout           time.Duration // sell-phase wall-clock deadline
	BuyOrderDelay         time.Duration // fixed delay before each buy submission
	HaltBuysOnSellFailure bool          // treat a FAILED sell submission like a timeout
}

// Report is the outcome of executing one plan
type Report struct {
	SellResults    []domain.OrderOutcome
	BuyResults     []domain.OrderOutcome
	AllSellsFilled bool   // every sell instruction reached FILLED
	Stopped        bool   // buy phase was skipped
	StopReason     string // populated when Stopped
}

// Executor submits orders and confirms sell fills before buying
type Executor struct {
	orders    domain.OrderGateway
	confirmer domain.FillConfirmer
	cfg       Config
	log       zerolog.Logger
}

// NewExecutor creates an order executor
func NewExecutor(orders domain.OrderGateway, confirmer domain.FillConfirmer, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		orders:    orders,
		confirmer: confirmer,
		cfg:       cfg,
		log:       log.With().Str("service", "execution").Logger(),
	}
}

// Execute runs the sell phase, confirms fills, and runs the buy phase only
// if the sell phase completed cleanly. Callers must pass the same snapshot
// the plan was validated against.
//
// Submission rejections are independent per instrument: one FAILED sell does
// not abort its siblings. A fill-confirmation timeout always stops the run;
// whether a FAILED submission also stops it is policy (HaltBuysOnSellFailure).
func (e *Executor) Execute(ctx context.Context, accountID string, snapshot *domain.Snapshot, plan []domain.ExecutionInstruction) *Report {
	report := &Report{}

	sells, buys := splitPlan(plan)

	report.SellResults = e.runSellPhase(ctx, accountID, snapshot, sells)

	anyFailed := false
	allConfirmed := true
	for _, outcome := range report.SellResults {
		switch outcome.Status {
		case domain.StatusFailed:
			anyFailed = true
		case domain.StatusFilled:
			// confirmed
		default:
			allConfirmed = false
		}
	}
	report.AllSellsFilled = allConfirmed && !anyFailed

	if !allConfirmed {
		report.Stopped = true
		report.StopReason = "sell phase incomplete: unconfirmed sell fills at timeout"
		e.log.Warn().Str("reason", report.StopReason).Msg("Skipping buy phase")
		return report
	}
	if anyFailed && e.cfg.HaltBuysOnSellFailure {
		report.Stopped = true
		report.StopReason = "sell phase incomplete: broker rejected one or more sell submissions"
		e.log.Warn().Str("reason", report.StopReason).Msg("Skipping buy phase")
		return report
	}

	report.BuyResults = e.runBuyPhase(ctx, buys)
	return report
}

// runSellPhase submits every sell and waits for fill confirmation.
// Confirmation is a single task per run: each cycle the confirmer re-fetches
// the holdings snapshot once and cross-checks every pending instruction,
// bounding brokerage read load to one call per interval regardless of plan
// size. The timeout is a hard wall-clock deadline, not a retry budget.
func (e *Executor) runSellPhase(ctx context.Context, accountID string, snapshot *domain.Snapshot, sells []domain.ExecutionInstruction) []domain.OrderOutcome {
	outcomes := make([]domain.OrderOutcome, 0, len(sells))
	targets := make(map[string]int64)

	for _, instr := range sells {
		current := snapshot.HoldingQuantity(instr.Trade.InstrumentID)
		targetAfter := current - instr.Trade.Quantity
		if targetAfter < 0 {
			targetAfter = 0
		}

		outcome := domain.OrderOutcome{
			InstrumentID: instr.Trade.InstrumentID,
			Side:         domain.SideSell,
			Quantity:     instr.Trade.Quantity,
		}

		ack, err := e.orders.SubmitSell(ctx, instr)
		if err != nil {
			e.log.Error().
				Err(err).
				Str("instrument", instr.Trade.InstrumentID).
				Int64("quantity", instr.Trade.Quantity).
				Msg("Sell submission rejected")
			outcome.Status = domain.StatusFailed
			outcome.Detail = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Status = domain.StatusPlaced
		outcome.OrderID = ack.OrderID
		outcome.Detail = ack.Detail
		outcomes = append(outcomes, outcome)
		targets[instr.Trade.InstrumentID] = targetAfter

		e.log.Info().
			Str("instrument", instr.Trade.InstrumentID).
			Int64("quantity", instr.Trade.Quantity).
			Int64("target_after", targetAfter).
			Str("order_id", ack.OrderID).
			Msg("Sell order placed")
	}

	if len(targets) == 0 {
		return outcomes
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.FillTimeout)
	defer cancel()

	filled, err := e.confirmer.ConfirmFills(confirmCtx, accountID, targets)
	if err != nil {
		e.log.Error().Err(err).Msg("Fill confirmation failed")
	}

	for i := range outcomes {
		if outcomes[i].Status != domain.StatusPlaced {
			continue
		}
		if filled[outcomes[i].InstrumentID] {
			outcomes[i].Status = domain.StatusFilled
		} else {
			outcomes[i].Status = domain.StatusTimedOut
			outcomes[i].Detail = "fill not confirmed within poll window"
		}
	}

	return outcomes
}

// runBuyPhase submits buys fire-and-confirm-acceptance only: no wait for
// fill. Each submission is preceded by a fixed delay - exceeding the
// brokerage requests-per-second ceiling produces hard rejections that must
// not be mistaken for trade failures.
func (e *Executor) runBuyPhase(ctx context.Context, buys []domain.ExecutionInstruction) []domain.OrderOutcome {
	outcomes := make([]domain.OrderOutcome, 0, len(buys))

	for _, instr := range buys {
		if err := sleepCtx(ctx, e.cfg.BuyOrderDelay); err != nil {
			e.log.Warn().Err(err).Msg("Buy phase interrupted")
			return outcomes
		}

		outcome := domain.OrderOutcome{
			InstrumentID: instr.Trade.InstrumentID,
			Side:         domain.SideBuy,
			Quantity:     instr.Trade.Quantity,
		}

		ack, err := e.orders.SubmitBuy(ctx, instr)
		if err != nil {
			e.log.Error().
				Err(err).
				Str("instrument", instr.Trade.InstrumentID).
				Int64("quantity", instr.Trade.Quantity).
				Msg("Buy submission rejected")
			outcome.Status = domain.StatusFailed
			outcome.Detail = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Status = domain.StatusPlaced
		outcome.OrderID = ack.OrderID
		outcome.Detail = ack.Detail
		outcomes = append(outcomes, outcome)

		e.log.Info().
			Str("instrument", instr.Trade.InstrumentID).
			Int64("quantity", instr.Trade.Quantity).
			Str("order_id", ack.OrderID).
			Msg("Buy order placed")
	}

	return outcomes
}

// splitPlan separates sell and buy instructions preserving order
func splitPlan(plan []domain.ExecutionInstruction) (sells, buys []domain.ExecutionInstruction) {
	for _, instr := range plan {
		if instr.Trade.Side == domain.SideSell {
			sells = append(sells, instr)
		} else {
			buys = append(buys, instr)
		}
	}
	return sells, buys
}

// sleepCtx sleeps for d unless the context is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
