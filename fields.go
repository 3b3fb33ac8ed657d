package mutter

import "github.com/zoobzio/capitan"

// Field keys for runtime events.
var (
	// KeyPath is the observable or node path involved.
	KeyPath = capitan.NewStringKey("path")

	// KeyObserver is the observer ID.
	KeyObserver = capitan.NewStringKey("observer")

	// KeyCount is the number of items processed, e.g. observers run in a flush.
	KeyCount = capitan.NewIntKey("count")

	// KeyPhase is the scheduler phase.
	KeyPhase = capitan.NewStringKey("phase")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")
)

// Field keys for Binding events.
var (
	// KeyStore is the ID of the store a Binding writes to.
	KeyStore = capitan.NewStringKey("store")

	// KeyState is the current state of the Binding.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeySourceType is the type name of the source implementation.
	KeySourceType = capitan.NewStringKey("source_type")
)
