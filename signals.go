package mutter

import "github.com/zoobzio/capitan"

// Scheduler signals.
var (
	// BatchStarted is emitted when an explicit batch enters the writes phase.
	BatchStarted = capitan.NewSignal(
		"mutter.batch.started",
		"Explicit batch started",
	)

	// FlushCompleted is emitted after scheduled observers have re-run.
	FlushCompleted = capitan.NewSignal(
		"mutter.flush.completed",
		"Scheduled observers flushed",
	)

	// ActionFailed is emitted when a batch queued during a reads phase fails.
	ActionFailed = capitan.NewSignal(
		"mutter.action.failed",
		"Queued batch failed",
	)
)

// Observer signals.
var (
	// ObserverScheduled is emitted the first time an observer is scheduled
	// within a writes phase.
	ObserverScheduled = capitan.NewSignal(
		"mutter.observer.scheduled",
		"Observer scheduled for re-run",
	)

	// ObserverDisposed is emitted when an observer is disposed.
	ObserverDisposed = capitan.NewSignal(
		"mutter.observer.disposed",
		"Observer disposed",
	)
)

// SnapshotWriteRejected is emitted when a write or delete on a snapshot is
// rejected.
var SnapshotWriteRejected = capitan.NewSignal(
	"mutter.snapshot.write.rejected",
	"Snapshot write rejected",
)

// Binding lifecycle signals.
var (
	// BindingStarted is emitted when a Binding begins watching its source.
	BindingStarted = capitan.NewSignal(
		"mutter.binding.started",
		"Binding watching started",
	)

	// BindingStopped is emitted when a Binding stops watching.
	BindingStopped = capitan.NewSignal(
		"mutter.binding.stopped",
		"Binding watching stopped",
	)

	// BindingStateChanged is emitted when a Binding transitions between states.
	BindingStateChanged = capitan.NewSignal(
		"mutter.binding.state.changed",
		"Binding state transition",
	)
)

// Binding change processing signals.
var (
	// BindingChangeReceived is emitted when a change arrives from the source.
	BindingChangeReceived = capitan.NewSignal(
		"mutter.binding.change.received",
		"Change received from source",
	)

	// BindingDecodeFailed is emitted when a change can't be decoded.
	BindingDecodeFailed = capitan.NewSignal(
		"mutter.binding.decode.failed",
		"Change decode failed",
	)

	// BindingApplyFailed is emitted when a decoded change can't be written.
	BindingApplyFailed = capitan.NewSignal(
		"mutter.binding.apply.failed",
		"Change apply failed",
	)

	// BindingApplySucceeded is emitted when changes are written to the store.
	BindingApplySucceeded = capitan.NewSignal(
		"mutter.binding.apply.succeeded",
		"Changes applied",
	)
)
