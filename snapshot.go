package mutter

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Snapshot is an immutable, structurally shared view of a node as of the
// last write the reader could have observed. Reads register dependencies on
// the active observer exactly like Mutable reads; writes are rejected.
//
// Container children are returned as *Snapshot. Untouched subtrees are the
// same *Snapshot across versions.
type Snapshot struct {
	node   *node
	record map[string]any
	list   []any
}

// Path returns the dot-separated identifier of this container.
func (s *Snapshot) Path() string {
	return s.node.path
}

// IsList reports whether the container is a list.
func (s *Snapshot) IsList() bool {
	return s.node.kind == kindList
}

// Lookup returns the value at key, or nil when absent. It fails when the
// read happens outside a tracking window and the runtime requires one.
func (s *Snapshot) Lookup(key string) (any, error) {
	n := s.node
	if n.kind == kindList {
		if err := n.runtime().reportAccess(keysObservable(n.path)); err != nil {
			return nil, err
		}
		i, ok := parseIndex(key)
		if !ok || i >= len(s.list) {
			return nil, nil
		}
		return s.list[i], nil
	}
	if err := n.runtime().reportAccess(keyObservable(n.path, key)); err != nil {
		return nil, err
	}
	return s.record[key], nil
}

// Get is like Lookup but panics with the *Error on an access violation.
func (s *Snapshot) Get(key string) any {
	v, err := s.Lookup(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Index returns the element at i of a list, or nil when out of range.
func (s *Snapshot) Index(i int) any {
	return s.Get(strconv.Itoa(i))
}

// Has reports whether key exists.
func (s *Snapshot) Has(key string) bool {
	n := s.node
	if n.kind == kindList {
		must(n.runtime().reportAccess(keysObservable(n.path)))
		i, ok := parseIndex(key)
		return ok && i < len(s.list)
	}
	must(n.runtime().reportAccess(keyObservable(n.path, key)))
	_, ok := s.record[key]
	return ok
}

// Keys returns the keys of a record in sorted order, or the indices of a list.
func (s *Snapshot) Keys() []string {
	n := s.node
	must(n.runtime().reportAccess(keysObservable(n.path)))
	if n.kind == kindList {
		keys := make([]string, len(s.list))
		for i := range s.list {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	keys := make([]string, 0, len(s.record))
	for k := range s.record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys or elements.
func (s *Snapshot) Len() int {
	n := s.node
	must(n.runtime().reportAccess(keysObservable(n.path)))
	if n.kind == kindList {
		return len(s.list)
	}
	return len(s.record)
}

// Set is rejected: snapshots are immutable. The attempt is flagged and the
// snapshot is left untouched.
func (s *Snapshot) Set(key string, _ any) error {
	return s.node.runtime().rejectImmutable("set", keyObservable(s.node.path, key))
}

// Delete is rejected: snapshots are immutable. The attempt is flagged and the
// snapshot is left untouched.
func (s *Snapshot) Delete(key string) error {
	return s.node.runtime().rejectImmutable("delete", keyObservable(s.node.path, key))
}

// Plain returns a deep copy of the snapshot as plain Go data and depends on
// the whole subtree.
func (s *Snapshot) Plain() any {
	v, err := s.plain()
	if err != nil {
		panic(err)
	}
	return v
}

func (s *Snapshot) plain() (any, error) {
	if err := s.node.runtime().reportAccess(subtreeObservable(s.node.path)); err != nil {
		return nil, err
	}
	return s.export(), nil
}

func (s *Snapshot) export() any {
	if s.node.kind == kindList {
		out := make([]any, len(s.list))
		for i, v := range s.list {
			out[i] = exportSnapshotValue(v)
		}
		return out
	}
	out := make(map[string]any, len(s.record))
	for k, v := range s.record {
		out[k] = exportSnapshotValue(v)
	}
	return out
}

func exportSnapshotValue(v any) any {
	if child, ok := v.(*Snapshot); ok {
		return child.export()
	}
	return v
}

// MarshalJSON encodes the snapshot as plain JSON.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	v, err := s.plain()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// MarshalYAML encodes the snapshot as plain YAML.
func (s *Snapshot) MarshalYAML() (any, error) {
	return s.plain()
}

// put writes into the copy container. Only valid while the copy's version is
// current, i.e. before any reader could have seen it.
func (s *Snapshot) put(key string, v any) {
	if s.node.kind == kindList {
		i, _ := parseIndex(key)
		s.list[i] = v
		return
	}
	s.record[key] = v
}

// Unwrap returns the raw container behind a snapshot (map[string]any or
// []any, children still *Snapshot) and depends on the whole subtree, so the
// caller is rescheduled on any deep change. The container must not be
// modified.
func Unwrap(s *Snapshot) any {
	n := s.node
	must(n.runtime().reportAccess(subtreeObservable(n.path)))
	if n.kind == kindList {
		return s.list
	}
	return s.record
}

// Same reports whether a and b are the same copy. Unchanged subtrees keep
// their copy across versions.
func Same(a, b *Snapshot) bool {
	return a == b
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
