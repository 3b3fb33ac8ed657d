package mutter

// Phase is the scheduler state of a Runtime.
type Phase int32

const (
	// PhaseIdle indicates no reads or writes are in progress.
	PhaseIdle Phase = iota

	// PhaseReads indicates observers are running or a read window is open.
	// Mutations are rejected.
	PhaseReads

	// PhaseWrites starts with the first mutation and ends at the deferred
	// flush, or starts and ends with an explicit batch.
	PhaseWrites
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReads:
		return "reads"
	case PhaseWrites:
		return "writes"
	default:
		return "unknown"
	}
}
