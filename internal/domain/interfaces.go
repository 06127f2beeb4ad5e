package domain

import "context"

// SnapshotSource provides the read-only portfolio view for an account.
// Implemented by the brokerage client; the core never mutates holdings state.
type SnapshotSource interface {
	// GetSnapshot returns holdings, cash and valuations for the account
	GetSnapshot(ctx context.Context, accountID string) (*Snapshot, error)
}

// TargetSource provides the target allocation for an account.
// The allocation is produced upstream; this core treats it as opaque.
type TargetSource interface {
	// GetTarget returns per-class weights and intra-class instrument fractions
	GetTarget(ctx context.Context, accountID string) (TargetAllocation, error)
}

// QuoteSource provides the latest price for a single instrument.
// A missing price is an error, never a zero price.
type QuoteSource interface {
	// GetPrice returns the latest quote for the instrument
	GetPrice(ctx context.Context, instrumentID string) (float64, error)
}

// OrderGateway submits orders to the brokerage. Wire-protocol details stay
// behind this interface; a submission error means the broker rejected the
// order, not that the run must abort.
type OrderGateway interface {
	// SubmitSell places a sell order for the instruction's trade
	SubmitSell(ctx context.Context, instr ExecutionInstruction) (*OrderAck, error)

	// SubmitBuy places a buy order for the instruction's trade
	SubmitBuy(ctx context.Context, instr ExecutionInstruction) (*OrderAck, error)
}

// AdvisoryOracle is the optional, unreliable execution-style advisor.
// Callers must treat any error, malformed hint or incomplete coverage as a
// signal to fall back to deterministic MARKET execution. Called at most once
// per run, never retried.
type AdvisoryOracle interface {
	// SuggestExecution returns per-trade execution hints
	SuggestExecution(ctx context.Context, trades []NetTrade, mctx MarketContext) ([]ExecutionHint, error)
}

// FillConfirmer blocks until every pending sell reaches its target held
// quantity or the context deadline expires. The returned map holds true for
// each instrument whose fill was confirmed; instruments absent or false at
// return are unconfirmed. An error is reserved for confirmer breakage, not
// for timeouts.
type FillConfirmer interface {
	// ConfirmFills waits for held quantities to drop to the per-instrument
	// targets. targets maps instrument -> expected quantity after the sell.
	ConfirmFills(ctx context.Context, accountID string, targets map[string]int64) (map[string]bool, error)
}
