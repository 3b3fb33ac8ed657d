package mutter

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Store holds the root node of one tree and hands out its two façades.
type Store struct {
	rt     *Runtime
	id     string
	prefix string
	root   *node

	listeners          []*listener
	listenersScheduled bool
}

type listener struct {
	fn func(*Snapshot)
}

// NewStore creates a Store owning a tree built from initial, which must be a
// map[string]any or a []any. A nil initial value creates an empty record.
func (rt *Runtime) NewStore(initial any) (*Store, error) {
	if initial == nil {
		initial = map[string]any{}
	}
	if !isContainer(initial) {
		return nil, structuralError("new store", "", fmt.Sprintf("state must be map[string]any or []any, got %T", initial))
	}
	s := &Store{
		rt:     rt,
		id:     uuid.NewString(),
		prefix: strconv.Itoa(rt.stores),
	}
	root, err := newNode(s, initial, "", nil)
	if err != nil {
		return nil, err
	}
	s.root = root
	rt.stores++
	return s, nil
}

// NewStoreFromBytes decodes raw with codec and creates a Store from the result.
func (rt *Runtime) NewStoreFromBytes(codec Codec, raw []byte) (*Store, error) {
	tree, err := DecodeTree(codec, raw)
	if err != nil {
		return nil, err
	}
	return rt.NewStore(tree)
}

// ID returns the store's unique identifier.
func (s *Store) ID() string {
	return s.id
}

// Runtime returns the runtime that owns the store.
func (s *Store) Runtime() *Runtime {
	return s.rt
}

// Mutable returns the writable handle on the root.
func (s *Store) Mutable() *Mutable {
	return s.root.mutable
}

// Snapshot returns the current immutable root copy. The global version is
// re-minted so later writes copy instead of touching what was handed out.
func (s *Store) Snapshot() *Snapshot {
	s.rt.version++
	return s.root.copy
}

// Batch runs fn against the root in an explicit batch. See Runtime.Batch.
func (s *Store) Batch(fn func(*Mutable) error) error {
	return s.rt.Batch(func() error {
		return fn(s.root.mutable)
	})
}

// Subscribe registers fn to receive the fresh root snapshot once after every
// turn in which the tree changed. fn runs in an untracked read window.
// Returns a function that removes the subscription.
func (s *Store) Subscribe(fn func(*Snapshot)) func() {
	l := &listener{fn: fn}
	s.listeners = append(s.listeners, l)
	// Listeners are scheduled when a write copies, so the next write must.
	s.rt.version++
	return func() {
		for i, existing := range s.listeners {
			if existing == l {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) scheduleListeners() {
	if s.listenersScheduled || len(s.listeners) == 0 {
		return
	}
	s.listenersScheduled = true
	s.rt.host.Defer(s.notifyListeners)
}

func (s *Store) notifyListeners() {
	s.listenersScheduled = false
	listeners := append([]*listener(nil), s.listeners...)
	err := s.rt.Untracked(func() {
		snap := s.Snapshot()
		for _, l := range listeners {
			l.fn(snap)
		}
	})
	if err != nil {
		s.rt.logger.Error("mutter: store listeners failed", slog.String("store", s.id), slog.Any("error", err))
	}
}
