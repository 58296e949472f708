package state

import "fmt"

// Status represents the lifecycle status of a job record.
// Statuses form a small directed graph with explicit transition rules.
type Status string

// Job lifecycle statuses. These are the wire values clients see when
// polling, so they stay lowercase and stable.
const (
	// Queued: record created and persisted, execution not yet started.
	// This is the initial status assigned on submission.
	Queued Status = "queued"

	// Processing: the work function is running (or a retry of it is
	// pending). Progress ticks and retry scheduling both keep the job
	// in this status.
	Processing Status = "processing"

	// Completed: the work function resolved. Terminal.
	Completed Status = "completed"

	// Failed: the work function rejected and the retry budget is spent,
	// or the error was classified terminal. Terminal.
	Failed Status = "failed"
)

// IsTerminal returns true if no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// IsValid returns true if the status is a recognized job status.
func (s Status) IsValid() bool {
	switch s {
	case Queued, Processing, Completed, Failed:
		return true
	default:
		return false
	}
}

// Machine enforces status transition rules for job records.
// It is stateless; rules are hardcoded in methods.
type Machine struct{}

// NewMachine creates a new status machine instance.
func NewMachine() *Machine {
	return &Machine{}
}

// CanTransition checks if a status transition is allowed.
//
// processing -> processing is legal: both progress ticks and retry
// scheduling re-enter the same status on the same record.
func (m *Machine) CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}

	switch from {
	case Queued:
		return to == Processing

	case Processing:
		return to == Processing || to == Completed || to == Failed

	default:
		return false
	}
}

// ValidateTransition checks if a status transition is allowed.
// Returns nil if valid, or a descriptive error if invalid.
func (m *Machine) ValidateTransition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("invalid source status: %s", from)
	}
	if !to.IsValid() {
		return fmt.Errorf("invalid target status: %s", to)
	}

	if from.IsTerminal() {
		return fmt.Errorf("cannot transition from terminal status %s to %s", from, to)
	}

	if !m.CanTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}

	return nil
}
