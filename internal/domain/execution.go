package domain

import "time"

// ExecutionState is the two-leg state machine position.
type ExecutionState string

const (
	ExecCreated       ExecutionState = "created"
	ExecLeg1Submitted ExecutionState = "leg1_submitted"
	ExecLeg1Filled    ExecutionState = "leg1_filled"
	ExecLeg2Submitted ExecutionState = "leg2_submitted"
	ExecComplete      ExecutionState = "complete"

	// Terminal failure states. Leg1 failures carry no directional risk;
	// Leg2 failures leave the filled first leg unhedged.
	ExecLeg1TimedOut ExecutionState = "leg1_timed_out"
	ExecLeg1Failed   ExecutionState = "leg1_failed"
	ExecLeg2TimedOut ExecutionState = "leg2_timed_out"
	ExecLeg2Failed   ExecutionState = "leg2_failed"
)

// Unhedged reports whether the state represents open directional risk:
// Leg1 filled but Leg2 never did.
func (s ExecutionState) Unhedged() bool {
	return s == ExecLeg2TimedOut || s == ExecLeg2Failed
}

// Terminal reports whether the state machine has finished.
func (s ExecutionState) Terminal() bool {
	switch s {
	case ExecComplete, ExecLeg1TimedOut, ExecLeg1Failed, ExecLeg2TimedOut, ExecLeg2Failed:
		return true
	}
	return false
}

// ExecutionStatus is the caller-facing outcome classification.
type ExecutionStatus string

const (
	ExecutionSuccess        ExecutionStatus = "success"
	ExecutionRejected       ExecutionStatus = "rejected"        // capital or profitability gate refused
	ExecutionFailedClean    ExecutionStatus = "failed_clean"    // Leg1 never filled, no exposure
	ExecutionFailedUnhedged ExecutionStatus = "failed_unhedged" // Leg1 filled, Leg2 did not
)

// Execution records one two-leg run through the atomic executor.
type Execution struct {
	ID            string
	OpportunityID string
	Strategy      StrategyKind
	Leg1          Leg
	Leg2          Leg
	State         ExecutionState
	RealizedPnL   float64
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// ExecutionResult is returned by the engine's AuthorizeAndExecute. It
// carries enough detail to reconstruct the decision without replaying
// venue calls: which check failed, at which state.
type ExecutionResult struct {
	OpportunityID string
	Status        ExecutionStatus
	State         ExecutionState
	Reason        string // failed check or failure description
	Analysis      *ProfitabilityAnalysis
	Allocation    *CapitalAllocation
	Position      *Position
	Execution     *Execution
	PnLUSD        float64
}
