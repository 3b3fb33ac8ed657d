package mutter

import (
	"slices"
	"sort"
	"strconv"
)

// Mutable is the writable handle over a node's backing value. Reads inside a
// tracking window register dependencies; writes record change notifications
// and copy-on-write the snapshot chain up to the root.
//
// Container children are returned as *Mutable. Keys of lists are decimal
// indices.
type Mutable struct {
	node *node
}

// Path returns the dot-separated identifier of this container.
func (m *Mutable) Path() string {
	return m.node.path
}

// IsList reports whether the container is a list.
func (m *Mutable) IsList() bool {
	return m.node.kind == kindList
}

// Get returns the value at key, or nil when absent.
func (m *Mutable) Get(key string) any {
	n := m.node
	if n.kind == kindList {
		n.runtime().trackRead(keysObservable(n.path))
		i, ok := parseIndex(key)
		if !ok || i >= len(n.list) {
			return nil
		}
		return exposeMutable(n.list[i])
	}
	n.runtime().trackRead(keyObservable(n.path, key))
	return exposeMutable(n.record[key])
}

// Index returns the element at i of a list, or nil when out of range.
func (m *Mutable) Index(i int) any {
	return m.Get(strconv.Itoa(i))
}

// Has reports whether key exists.
func (m *Mutable) Has(key string) bool {
	n := m.node
	if n.kind == kindList {
		n.runtime().trackRead(keysObservable(n.path))
		i, ok := parseIndex(key)
		return ok && i < len(n.list)
	}
	n.runtime().trackRead(keyObservable(n.path, key))
	_, ok := n.record[key]
	return ok
}

// Keys returns the keys of a record in sorted order, or the indices of a list.
func (m *Mutable) Keys() []string {
	n := m.node
	n.runtime().trackRead(keysObservable(n.path))
	return backingKeys(n)
}

// Len returns the number of keys or elements.
func (m *Mutable) Len() int {
	n := m.node
	n.runtime().trackRead(keysObservable(n.path))
	return n.length()
}

// Plain returns a deep copy of the container as plain Go data. Inside a
// tracking window it depends on the whole subtree.
func (m *Mutable) Plain() any {
	n := m.node
	n.runtime().trackRead(subtreeObservable(n.path))
	return n.export()
}

// Set assigns value at key. Containers (map[string]any, []any) are wrapped
// into new nodes; existing nodes are rejected since state must stay a tree.
func (m *Mutable) Set(key string, value any) error {
	n := m.node
	if err := n.checkWritable("set", key); err != nil {
		return err
	}
	if n.kind == kindList {
		i, ok := parseIndex(key)
		if !ok {
			return structuralError("set", string(keyObservable(n.path, key)), "list keys must be indices")
		}
		return m.SetIndex(i, value)
	}

	prev, hasKey := n.record[key]
	if hasKey && sameScalar(prev, value) {
		return nil
	}
	rt := n.runtime()
	if err := rt.prepareWrite("set"); err != nil {
		return err
	}
	stored, copied, err := n.wrap("set", key, value)
	if err != nil {
		return err
	}
	cp := n.getCopy()
	detach(prev)
	n.record[key] = stored
	cp.record[key] = copied

	if !hasKey {
		_ = rt.reportChange(keysObservable(n.path)) //nolint:errcheck // writes phase entered above
	}
	_ = rt.reportChange(keyObservable(n.path, key)) //nolint:errcheck // writes phase entered above
	rt.recordMutation("set")
	return nil
}

// SetIndex assigns value at index i of a list. i may equal Len to append.
func (m *Mutable) SetIndex(i int, value any) error {
	n := m.node
	key := strconv.Itoa(i)
	if err := n.checkWritable("set", key); err != nil {
		return err
	}
	if n.kind != kindList {
		return m.Set(key, value)
	}
	if i < 0 || i > len(n.list) {
		return structuralError("set", string(keyObservable(n.path, key)), "index out of range; lists are dense")
	}
	if i < len(n.list) && sameScalar(n.list[i], value) {
		return nil
	}
	rt := n.runtime()
	if err := rt.prepareWrite("set"); err != nil {
		return err
	}
	stored, copied, err := n.wrap("set", key, value)
	if err != nil {
		return err
	}
	cp := n.getCopy()
	if i == len(n.list) {
		n.list = append(n.list, stored)
		cp.list = append(cp.list, copied)
	} else {
		detach(n.list[i])
		n.list[i] = stored
		cp.list[i] = copied
	}

	// Elements aren't addressable by position, only the key set reports.
	_ = rt.reportChange(keysObservable(n.path)) //nolint:errcheck // writes phase entered above
	rt.recordMutation("set")
	return nil
}

// Append adds values to the end of a list.
func (m *Mutable) Append(values ...any) error {
	n := m.node
	if n.kind != kindList {
		return structuralError("append", n.path, "container is not a list")
	}
	for _, v := range values {
		if err := m.SetIndex(len(n.list), v); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op. Only the last
// element of a list can be deleted; use Splice for anything else.
func (m *Mutable) Delete(key string) error {
	n := m.node
	if err := n.checkWritable("delete", key); err != nil {
		return err
	}
	rt := n.runtime()
	if rt.phase == PhaseReads {
		return rt.mutationInReads("delete")
	}

	if n.kind == kindList {
		i, ok := parseIndex(key)
		if !ok || i >= len(n.list) {
			return nil
		}
		if i != len(n.list)-1 {
			return structuralError("delete", string(keyObservable(n.path, key)), "lists are dense; use Splice to remove interior elements")
		}
		return m.Splice(i, 1)
	}

	prev, ok := n.record[key]
	if !ok {
		return nil
	}
	if err := rt.prepareWrite("delete"); err != nil {
		return err
	}
	cp := n.getCopy()
	detach(prev)
	delete(n.record, key)
	delete(cp.record, key)

	_ = rt.reportChange(keysObservable(n.path))     //nolint:errcheck // writes phase entered above
	_ = rt.reportChange(keyObservable(n.path, key)) //nolint:errcheck // writes phase entered above
	rt.recordMutation("delete")
	return nil
}

// Splice removes deleteCount elements of a list starting at start and inserts
// items in their place. Elements after the edit are rebuilt as new nodes at
// their new indices.
func (m *Mutable) Splice(start, deleteCount int, items ...any) error {
	n := m.node
	if err := n.checkWritable("splice", strconv.Itoa(start)); err != nil {
		return err
	}
	if n.kind != kindList {
		return structuralError("splice", n.path, "container is not a list")
	}
	if start < 0 || start > len(n.list) || deleteCount < 0 || start+deleteCount > len(n.list) {
		return structuralError("splice", n.path, "range out of bounds")
	}
	if deleteCount == 0 && len(items) == 0 {
		return nil
	}
	rt := n.runtime()
	if err := rt.prepareWrite("splice"); err != nil {
		return err
	}

	tail := n.list[start+deleteCount:]
	values := make([]any, 0, len(items)+len(tail))
	values = append(values, items...)
	for _, v := range tail {
		values = append(values, exportValue(v))
	}
	stored := make([]any, len(values))
	copied := make([]any, len(values))
	for i, v := range values {
		s, c, err := n.wrap("splice", strconv.Itoa(start+i), v)
		if err != nil {
			return err
		}
		stored[i] = s
		copied[i] = c
	}

	cp := n.getCopy()
	for _, v := range n.list[start:] {
		detach(v)
	}
	n.list = append(slices.Clip(n.list[:start]), stored...)
	cp.list = append(slices.Clip(cp.list[:start]), copied...)

	_ = rt.reportChange(keysObservable(n.path)) //nolint:errcheck // writes phase entered above
	rt.recordMutation("splice")
	return nil
}

// Replace makes the container equal to value, which must be a container of
// the same kind. Only keys whose values differ are written, so observers of
// unchanged keys are not rescheduled.
func (m *Mutable) Replace(value any) error {
	n := m.node
	if err := n.checkWritable("replace", ""); err != nil {
		return err
	}
	if isTracked(value) {
		return structuralError("replace", n.path, "value must not be an existing node; state must be a tree, graphs are not supported")
	}
	switch v := value.(type) {
	case map[string]any:
		if n.kind != kindRecord {
			return structuralError("replace", n.path, "cannot replace a list with a record")
		}
		return m.replaceRecord(v)
	case []any:
		if n.kind != kindList {
			return structuralError("replace", n.path, "cannot replace a record with a list")
		}
		return m.replaceList(v)
	default:
		return structuralError("replace", n.path, "value must be map[string]any or []any")
	}
}

func (m *Mutable) replaceRecord(value map[string]any) error {
	n := m.node
	for _, k := range backingKeys(n) {
		if _, ok := value[k]; !ok {
			if err := m.Delete(k); err != nil {
				return err
			}
		}
	}
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.replaceAt(k, n.record[k], value[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mutable) replaceList(value []any) error {
	n := m.node
	shared := min(len(n.list), len(value))
	for i := 0; i < shared; i++ {
		if err := m.replaceAt(strconv.Itoa(i), n.list[i], value[i]); err != nil {
			return err
		}
	}
	if len(value) > len(n.list) {
		return m.Append(value[len(n.list):]...)
	}
	if len(value) < len(n.list) {
		return m.Splice(len(value), len(n.list)-len(value))
	}
	return nil
}

func (m *Mutable) replaceAt(key string, current, next any) error {
	if child, ok := current.(*node); ok && sameKind(child, next) {
		return child.mutable.Replace(next)
	}
	return m.Set(key, next)
}

func sameKind(n *node, v any) bool {
	switch v.(type) {
	case map[string]any:
		return n.kind == kindRecord
	case []any:
		return n.kind == kindList
	default:
		return false
	}
}

func exposeMutable(v any) any {
	if child, ok := v.(*node); ok {
		return child.mutable
	}
	return v
}

func backingKeys(n *node) []string {
	if n.kind == kindList {
		keys := make([]string, len(n.list))
		for i := range n.list {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	keys := make([]string, 0, len(n.record))
	for k := range n.record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
