// Package nats provides a mutter.Source for a NATS JetStream KV bucket
// using the native Watch API.
package nats

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zoobzio/mutter"
)

// Source watches the keys of a KV bucket under a prefix. Key tokens after
// the prefix become path segments: "app.flags.beta" with prefix "app"
// writes to flags.beta.
type Source struct {
	kv     jetstream.KeyValue
	prefix string
	mount  []string
}

// Option configures a Source.
type Option func(*Source)

// At mounts the keys under path instead of the store root.
func At(path ...string) Option {
	return func(s *Source) {
		s.mount = path
	}
}

// New creates a Source for keys under prefix. An empty prefix watches the
// whole bucket.
func New(kv jetstream.KeyValue, prefix string, opts ...Option) *Source {
	s := &Source{
		kv:     kv,
		prefix: strings.TrimSuffix(prefix, "."),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pattern returns the key pattern passed to Watch.
func (s *Source) Pattern() string {
	if s.prefix == "" {
		return ">"
	}
	return s.prefix + ".>"
}

// Path returns the store path for key, or false if key is outside the prefix.
func (s *Source) Path(key string) ([]string, bool) {
	rest := key
	if s.prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(key, s.prefix+".")
		if !ok || rest == "" {
			return nil, false
		}
	}
	path := make([]string, 0, len(s.mount)+strings.Count(rest, ".")+1)
	path = append(path, s.mount...)
	return append(path, strings.Split(rest, ".")...), true
}

// Watch begins watching and returns a channel of updates. The bucket's
// current values under the prefix are emitted together as the first update;
// afterwards each put, delete or purge is emitted as it happens.
func (s *Source) Watch(ctx context.Context) (<-chan []mutter.Change, error) {
	watcher, err := s.kv.Watch(ctx, s.Pattern())
	if err != nil {
		return nil, fmt.Errorf("failed to watch keys: %w", err)
	}

	out := make(chan []mutter.Change)

	go func() {
		defer close(out)
		defer watcher.Stop()

		// Values up to the first nil entry are the bucket's current state.
		var initial []mutter.Change
		if len(s.mount) > 0 {
			initial = append(initial, mutter.Change{Path: s.mount, Raw: []byte("{}")})
		}
		loading := true

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}

				if entry == nil {
					if !loading {
						continue
					}
					loading = false
					if initial == nil {
						initial = []mutter.Change{}
					}
					select {
					case out <- initial:
					case <-ctx.Done():
						return
					}
					continue
				}

				change, ok := s.change(entry)
				if !ok {
					continue
				}
				if loading {
					initial = append(initial, change)
					continue
				}

				select {
				case out <- []mutter.Change{change}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Source) change(entry jetstream.KeyValueEntry) (mutter.Change, bool) {
	path, ok := s.Path(entry.Key())
	if !ok {
		return mutter.Change{}, false
	}
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return mutter.Change{Path: path, Deleted: true}, true
	default:
		return mutter.Change{Path: path, Raw: entry.Value()}, true
	}
}

var _ mutter.Source = (*Source)(nil)
