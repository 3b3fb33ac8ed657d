package mutter

import (
	"maps"
	"reflect"
	"strconv"
)

type kind uint8

const (
	kindRecord kind = iota
	kindList
)

// node wraps one subtree. Container children in the backing value are *node;
// the copy holds their *Snapshot at the same key.
type node struct {
	store  *Store
	parent *node // back pointer for copy propagation only
	key    string
	path   string
	kind   kind

	record map[string]any
	list   []any

	version  uint64
	copy     *Snapshot
	mutable  *Mutable
	detached bool
}

// newNode wraps value, which must be a supported container, eagerly wrapping
// every nested container the same way.
func newNode(store *Store, value any, key string, parent *node) (*node, error) {
	n := &node{
		store:   store,
		parent:  parent,
		key:     key,
		version: store.rt.version,
	}
	if parent == nil {
		n.path = store.prefix
	} else {
		n.path = parent.path + "." + escapeKey(key)
	}

	switch v := value.(type) {
	case map[string]any:
		n.kind = kindRecord
		n.record = make(map[string]any, len(v))
		snap := make(map[string]any, len(v))
		for k, child := range v {
			stored, copied, err := n.wrap("set", k, child)
			if err != nil {
				return nil, err
			}
			n.record[k] = stored
			snap[k] = copied
		}
		n.copy = &Snapshot{node: n, record: snap}
	case []any:
		n.kind = kindList
		n.list = make([]any, len(v))
		snap := make([]any, len(v))
		for i, child := range v {
			stored, copied, err := n.wrap("set", strconv.Itoa(i), child)
			if err != nil {
				return nil, err
			}
			n.list[i] = stored
			snap[i] = copied
		}
		n.copy = &Snapshot{node: n, list: snap}
	default:
		return nil, structuralError("wrap", n.path, "value must be map[string]any or []any")
	}
	n.mutable = &Mutable{node: n}
	return n, nil
}

// wrap converts value into its backing and copy representations.
func (n *node) wrap(op, key string, value any) (stored, copied any, err error) {
	if isTracked(value) {
		return nil, nil, structuralError(op, string(keyObservable(n.path, key)),
			"value must not be an existing node; state must be a tree, graphs are not supported")
	}
	if !isContainer(value) {
		return value, value, nil
	}
	child, err := newNode(n.store, value, key, n)
	if err != nil {
		return nil, nil, err
	}
	return child, child.copy, nil
}

func (n *node) runtime() *Runtime {
	return n.store.rt
}

// getCopy returns the copy that writes of the current version go to,
// duplicating the previous one first when it may already have been handed out.
func (n *node) getCopy() *Snapshot {
	rt := n.runtime()
	if n.version == rt.version {
		return n.copy
	}

	n.store.scheduleListeners()
	_ = rt.reportChange(subtreeObservable(n.path)) //nolint:errcheck // writes phase already entered
	if rt.metrics != nil {
		rt.metrics.OnCopy()
	}

	prev := n.copy
	next := &Snapshot{node: n}
	if n.kind == kindList {
		next.list = append(make([]any, 0, len(prev.list)), prev.list...)
	} else {
		next.record = maps.Clone(prev.record)
	}
	n.copy = next
	n.version = rt.version

	if n.parent != nil {
		n.parent.getCopy().put(n.key, next)
	}
	return next
}

func (n *node) checkWritable(op, key string) error {
	if n.detached {
		return structuralError(op, string(keyObservable(n.path, key)), "node was removed from its tree")
	}
	return nil
}

func (n *node) length() int {
	if n.kind == kindList {
		return len(n.list)
	}
	return len(n.record)
}

// export returns a deep plain copy of the backing value.
func (n *node) export() any {
	if n.kind == kindList {
		out := make([]any, len(n.list))
		for i, v := range n.list {
			out[i] = exportValue(v)
		}
		return out
	}
	out := make(map[string]any, len(n.record))
	for k, v := range n.record {
		out[k] = exportValue(v)
	}
	return out
}

func exportValue(v any) any {
	if child, ok := v.(*node); ok {
		return child.export()
	}
	return v
}

// detach marks a replaced or deleted subtree so stale handles can't write
// into copies that are no longer reachable.
func detach(v any) {
	n, ok := v.(*node)
	if !ok {
		return
	}
	n.detached = true
	for _, child := range n.record {
		detach(child)
	}
	for _, child := range n.list {
		detach(child)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func isTracked(v any) bool {
	switch v.(type) {
	case *Mutable, *Snapshot, *node:
		return true
	default:
		return false
	}
}

// sameScalar reports whether assigning next over prev would change nothing.
// Values holding uncomparable dynamic contents are never the same.
func sameScalar(prev, next any) (same bool) {
	if _, ok := prev.(*node); ok {
		return false
	}
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	t := reflect.TypeOf(prev)
	if t != reflect.TypeOf(next) || !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return reflect.ValueOf(prev).Equal(reflect.ValueOf(next))
}

func parseIndex(key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || strconv.Itoa(i) != key {
		return 0, false
	}
	return i, true
}
