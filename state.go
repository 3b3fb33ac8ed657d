package mutter

// BindingState represents the current state of a Binding.
type BindingState int32

const (
	// BindingLoading indicates the Binding has not yet applied its source's
	// first change.
	BindingLoading BindingState = iota

	// BindingHealthy indicates every change in the last update was written
	// to the store.
	BindingHealthy

	// BindingDegraded indicates a change in the last update could not be
	// decoded or written. Paths it would have touched keep their prior values.
	BindingDegraded

	// BindingEmpty indicates no change has ever been applied successfully.
	// The Binding keeps watching for valid updates.
	BindingEmpty
)

// String returns the string representation of the state.
func (s BindingState) String() string {
	switch s {
	case BindingLoading:
		return "loading"
	case BindingHealthy:
		return "healthy"
	case BindingDegraded:
		return "degraded"
	case BindingEmpty:
		return "empty"
	default:
		return "unknown"
	}
}
