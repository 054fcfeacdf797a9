package model

// Stage is the position of a PendingSwap in the settlement sequence.
type Stage string

const (
	StageLiquidityCheck          Stage = "liquidity_check"
	StageApproving               Stage = "approving"
	StageAwaitingApprovalReceipt Stage = "awaiting_approval_receipt"
	StageSwapping                Stage = "swapping"
	StageAwaitingSwapReceipt     Stage = "awaiting_swap_receipt"
	StageReconciling             Stage = "reconciling"
	StageDone                    Stage = "done"
	StageFailed                  Stage = "failed"
)

// Terminal reports whether no further transition follows.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Submitted reports whether a mutating call may already be on its way to the relay.
func (s Stage) Submitted() bool {
	switch s {
	case StageLiquidityCheck, "":
		return false
	default:
		return true
	}
}

// Readiness is the state of a smart-account identity.
type Readiness string

const (
	ReadinessUninitialized Readiness = "uninitialized"
	ReadinessInitializing  Readiness = "initializing"
	ReadinessReady         Readiness = "ready"
	ReadinessErrored       Readiness = "errored"
)
