package mutter

import "context"

// ChannelSource wraps an existing update channel as a Source. Useful for
// tests and feeds that already produce changes.
type ChannelSource struct {
	ch   <-chan []Change
	sync bool
}

// NewChannelSource creates a ChannelSource that forwards changes through an
// internal goroutine.
func NewChannelSource(ch <-chan []Change) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// NewSyncChannelSource creates a ChannelSource that hands out ch directly.
// Use with Binding.SyncMode for deterministic tests.
func NewSyncChannelSource(ch <-chan []Change) *ChannelSource {
	return &ChannelSource{ch: ch, sync: true}
}

// Watch implements Source.
func (s *ChannelSource) Watch(ctx context.Context) (<-chan []Change, error) {
	if s.sync {
		return s.ch, nil
	}

	out := make(chan []Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Document returns an update that replaces the whole root with raw.
func Document(raw []byte) []Change {
	return []Change{{Raw: raw}}
}
