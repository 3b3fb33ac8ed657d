package mutter

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus,
// OpenTelemetry, StatsD, etc. Implement this interface to receive callbacks
// on key runtime events. Callbacks run on the runtime's thread and must not
// call back into the runtime.
type MetricsProvider interface {
	// OnFlush is called after a flush with the number of observers re-run
	// and the time spent.
	OnFlush(observers int, duration time.Duration)

	// OnMutation is called for every effective write. Op is "set",
	// "delete" or "splice".
	OnMutation(op string)

	// OnCopy is called whenever a node materializes a new snapshot copy.
	OnCopy()

	// OnImmutableWrite is called when a snapshot write is rejected.
	OnImmutableWrite()

	// OnBindingState is called when a Binding transitions between states.
	OnBindingState(from, to BindingState)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnFlush(_ int, _ time.Duration)   {}
func (NoOpMetricsProvider) OnMutation(_ string)              {}
func (NoOpMetricsProvider) OnCopy()                          {}
func (NoOpMetricsProvider) OnImmutableWrite()                {}
func (NoOpMetricsProvider) OnBindingState(_, _ BindingState) {}
