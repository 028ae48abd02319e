// Package execution defines the immutable execution record produced by
// each BlockRunner invocation.
package execution

import (
	"time"

	"github.com/forgevm/forge/internal/ids"
)

// Status is the final outcome of a block execution.
type Status struct {
	kind   statusKind
	reason string
}

type statusKind int

const (
	// Pending means the execution is queued but not yet started.
	Pending statusKind = iota
	// Running means the execution is currently inside a microVM.
	Running
	// Succeeded means the execution completed successfully.
	Succeeded
	// Failed means the execution terminated with an error.
	Failed
)

// NewPending, NewRunning, and NewSucceeded construct statuses with no
// associated data.
func NewPending() Status   { return Status{kind: Pending} }
func NewRunning() Status   { return Status{kind: Running} }
func NewSucceeded() Status { return Status{kind: Succeeded} }

// NewFailed constructs a Failed status carrying a human-readable reason.
func NewFailed(reason string) Status {
	return Status{kind: Failed, reason: reason}
}

// Kind reports which of Pending/Running/Succeeded/Failed this status is.
func (s Status) Kind() statusKind { return s.kind }

// Reason returns the failure reason. Only meaningful when Kind() ==
// Failed.
func (s Status) Reason() string { return s.reason }

func (s Status) String() string {
	switch s.kind {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed{" + s.reason + "}"
	default:
		return "Unknown"
	}
}

// Record is the immutable audit tuple produced by one BlockRunner
// invocation: ids, hashes, times, and final status. Once constructed, a
// Record is never mutated — the runner does not manufacture Failed
// records, it only returns Succeeded ones or propagates an error.
type Record struct {
	ID           ids.ExecutionID
	BlockID      ids.BlockID
	UserID       ids.UserID
	InputHash    ids.ContentHash
	OutputHash   ids.ContentHash
	StartedAt    time.Time
	Duration     time.Duration
	VMSnapshotID *ids.SnapshotID
	Status       Status
}

// New constructs a Record with a fresh execution id.
func New(blockID ids.BlockID, userID ids.UserID, inputHash, outputHash ids.ContentHash, startedAt time.Time, duration time.Duration, status Status) Record {
	return Record{
		ID:         ids.NewExecutionID(),
		BlockID:    blockID,
		UserID:     userID,
		InputHash:  inputHash,
		OutputHash: outputHash,
		StartedAt:  startedAt,
		Duration:   duration,
		Status:     status,
	}
}
