// Package domain contains the value objects and port interfaces shared by the
// rebalancing pipeline. The domain layer is pure: no I/O, no infrastructure
// dependencies.
package domain

import "time"

// TradeSide is the direction of a trade
type TradeSide string

const (
	// SideBuy acquires shares
	SideBuy TradeSide = "BUY"
	// SideSell liquidates shares
	SideSell TradeSide = "SELL"
)

// OrderStyle is the broker order type used to execute an instruction
type OrderStyle string

const (
	// StyleMarket executes at the best available price
	StyleMarket OrderStyle = "MARKET"
	// StyleLimit executes at or better than a bounded price
	StyleLimit OrderStyle = "LIMIT"
)

// Price policies recognised by the planner. Raw oracle output is validated
// against these before it is allowed into an ExecutionInstruction.
const (
	PolicyMarket          = "market"
	PolicyAggressiveLimit = "aggressive_limit"
)

// Instruction sources. Fallback-tagged instructions were produced locally
// because the advisory oracle could not cover the trade.
const (
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)

// Holding is a single position inside a portfolio snapshot.
// Immutable for the duration of a run; owned by the brokerage.
type Holding struct {
	InstrumentID string  `json:"instrument_id"`
	Quantity     int64   `json:"quantity"`
	Valuation    float64 `json:"valuation"`
	AssetClass   string  `json:"asset_class"`
}

// Snapshot is the read-only view of an account's holdings and cash,
// captured once at the start of a run.
type Snapshot struct {
	AccountID  string    `json:"account_id"`
	Cash       float64   `json:"cash"`
	TotalValue float64   `json:"total_value"`
	Holdings   []Holding `json:"holdings"`
}

// HoldingQuantity returns the held quantity for an instrument, 0 if not held
func (s *Snapshot) HoldingQuantity(instrumentID string) int64 {
	for _, h := range s.Holdings {
		if h.InstrumentID == instrumentID {
			return h.Quantity
		}
	}
	return 0
}

// InstrumentWeight is the intra-class weight of one instrument
type InstrumentWeight struct {
	InstrumentID   string  `json:"instrument_id"`
	WeightFraction float64 `json:"weight_fraction"` // fraction of the class, 0..1
}

// ClassTarget is the target allocation of a single asset class
type ClassTarget struct {
	WeightPct   float64            `json:"weight_pct"` // percent of the whole portfolio
	Instruments []InstrumentWeight `json:"instruments"`
}

// TargetAllocation maps asset class -> target. Produced upstream, consumed
// here as an opaque weight map; immutable per run.
type TargetAllocation map[string]ClassTarget

// InstrumentWeights flattens the hierarchical allocation into global
// per-instrument weight fractions (class weight x intra-class fraction).
func (t TargetAllocation) InstrumentWeights() map[string]float64 {
	weights := make(map[string]float64)
	for _, class := range t {
		for _, iw := range class.Instruments {
			weights[iw.InstrumentID] += (class.WeightPct / 100.0) * iw.WeightFraction
		}
	}
	return weights
}

// InstrumentDrift is the drift of a single instrument measured against its
// global (whole-portfolio) target weight.
type InstrumentDrift struct {
	InstrumentID string  `json:"instrument_id"`
	TargetPct    float64 `json:"target_pct"`
	ActualPct    float64 `json:"actual_pct"`
	DriftPct     float64 `json:"drift_pct"`
}

// DriftReport holds class-level and instrument-level drift for one run.
// Derived fresh every run, never persisted by the core.
type DriftReport struct {
	ClassDrift  map[string]float64           `json:"class_drift"`  // asset class -> drift pct
	Instruments map[string][]InstrumentDrift `json:"instruments"`  // asset class -> instrument drifts
	TotalValue  float64                      `json:"total_value"`
}

// NetTrade is the single buy-or-sell delta required to move an instrument's
// held quantity to its target.
type NetTrade struct {
	InstrumentID    string    `json:"instrument_id"`
	Side            TradeSide `json:"side"`
	Quantity        int64     `json:"quantity"` // always > 0
	EstimatedAmount float64   `json:"estimated_amount"`
}

// ExecutionInstruction is a NetTrade annotated with an execution style.
// Immutable once validated.
type ExecutionInstruction struct {
	Trade       NetTrade   `json:"trade"`
	Style       OrderStyle `json:"style"`
	PricePolicy string     `json:"price_policy"`
	LimitPrice  float64    `json:"limit_price,omitempty"` // set when Style == StyleLimit
	Source      string     `json:"source"`                // "oracle" or "fallback"
}

// ValidationResult is the outcome of simulating a plan against the cash
// ledger. A plan with IsValid=false must never reach the executor.
type ValidationResult struct {
	IsValid            bool     `json:"is_valid"`
	Reasons            []string `json:"reasons,omitempty"`
	ProjectedCashAfter float64  `json:"projected_cash_after"`
}

// OrderStatus is the broker-side lifecycle state of a submitted instruction
type OrderStatus string

const (
	// StatusPlaced means the broker accepted the order
	StatusPlaced OrderStatus = "PLACED"
	// StatusFilled means the fill was confirmed
	StatusFilled OrderStatus = "FILLED"
	// StatusPartiallyFilled means some quantity executed before the window closed
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	// StatusFailed means the broker rejected the submission
	StatusFailed OrderStatus = "FAILED"
	// StatusTimedOut means the fill was not confirmed within the poll window
	StatusTimedOut OrderStatus = "TIMED_OUT"
)

// Terminal reports whether the status is a terminal fill state
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// OrderOutcome is the per-instruction execution result. Mutated by the
// executor's confirmation loop until terminal.
type OrderOutcome struct {
	InstrumentID string      `json:"instrument_id"`
	Side         TradeSide   `json:"side"`
	Quantity     int64       `json:"quantity"`
	Status       OrderStatus `json:"status"`
	OrderID      string      `json:"order_id,omitempty"`
	Detail       string      `json:"detail,omitempty"` // broker response or failure reason
}

// OrderAck is the broker's acknowledgement of an order submission
type OrderAck struct {
	OrderID string `json:"order_id"`
	Detail  string `json:"detail,omitempty"`
}

// RunStatus is the terminal state of a rebalancing run
type RunStatus string

const (
	// RunNotNeeded means drift stayed below both thresholds (or nothing to trade)
	RunNotNeeded RunStatus = "not_needed"
	// RunStopped means the run halted at a gate: validation rejection or
	// an incomplete sell phase
	RunStopped RunStatus = "stopped"
	// RunError means a hard input/data error aborted the run
	RunError RunStatus = "error"
	// RunSuccess means the run completed through its requested phases
	RunSuccess RunStatus = "success"
)

// RunResult is the typed outcome of a rebalancing run. Every terminal state
// carries enough detail to be actionable without log inspection.
type RunResult struct {
	RunID        string                 `json:"run_id"`
	AccountID    string                 `json:"account_id"`
	Status       RunStatus              `json:"status"`
	PhaseReached int                    `json:"phase_reached"`
	Reasons      []string               `json:"reasons,omitempty"`
	Drift        *DriftReport           `json:"drift,omitempty"`
	Plan         []ExecutionInstruction `json:"plan,omitempty"`
	Validation   *ValidationResult      `json:"validation,omitempty"`
	SellResults  []OrderOutcome         `json:"sell_results,omitempty"`
	BuyResults   []OrderOutcome         `json:"buy_results,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// MarketContext is the market state handed to the strategy planner and
// forwarded to the advisory oracle.
type MarketContext struct {
	Prices      map[string]float64 `json:"prices"` // instrument -> latest quote
	TotalEquity float64            `json:"total_equity"`
}

// ExecutionHint is the raw, untrusted per-trade suggestion returned by the
// advisory oracle. It is validated field by field at the planner boundary
// before it may become an ExecutionInstruction.
type ExecutionHint struct {
	InstrumentID string `json:"instrument_id"`
	OrderStyle   string `json:"order_style"`
	PricePolicy  string `json:"price_policy"`
}
