package mutter

import "context"

// Change is one update from a Source. Path addresses the node to write,
// starting at the store root; an empty Path replaces the root itself. Raw is
// decoded with the Binding's codec unless Deleted is set.
type Change struct {
	Path    []string
	Raw     []byte
	Deleted bool
}

// Source observes an external system and emits updates on a channel. Each
// update is a set of changes written together in one batch.
// Implementations must emit the current contents immediately when Watch is
// called so the first update loads the store.
type Source interface {
	// Watch begins observing and returns a channel of updates. The channel
	// is closed when ctx is canceled or an unrecoverable error occurs.
	Watch(ctx context.Context) (<-chan []Change, error)
}
