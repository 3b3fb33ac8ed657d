package mutter

import (
	"errors"
	"testing"
)

func TestNewStore_Errors(t *testing.T) {
	rt := NewRuntime(NewQueue())

	tests := []struct {
		name    string
		initial any
	}{
		{"scalar", 42},
		{"string", "state"},
		{"typed map", map[string]int{"a": 1}},
		{"aliased child", map[string]any{"s": &Snapshot{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rt.NewStore(tt.initial); !errors.Is(err, ErrStructural) {
				t.Errorf("expected structural error, got %v", err)
			}
		})
	}

	store, err := rt.NewStore(nil)
	if err != nil {
		t.Fatalf("NewStore(nil) failed: %v", err)
	}
	if store.Mutable().IsList() || store.Mutable().Len() != 0 {
		t.Error("expected nil initial value to create an empty record")
	}
	if store.Mutable().Path() != "0" {
		t.Errorf("expected failed stores not to consume a prefix, got %q", store.Mutable().Path())
	}
}

func TestNewStoreFromBytes(t *testing.T) {
	rt := NewRuntime(NewQueue()).RequireObserver(false)

	store, err := rt.NewStoreFromBytes(YAMLCodec{}, []byte("todos:\n  - title: write\n    done: false\n"))
	if err != nil {
		t.Fatalf("NewStoreFromBytes failed: %v", err)
	}
	todos := store.Snapshot().Get("todos").(*Snapshot)
	first := todos.Index(0).(*Snapshot)
	if first.Get("title") != "write" {
		t.Errorf("expected 'write', got %v", first.Get("title"))
	}

	if _, err := rt.NewStoreFromBytes(JSONCodec{}, []byte(`"scalar"`)); !errors.Is(err, ErrStructural) {
		t.Errorf("expected structural error, got %v", err)
	}
	if _, err := rt.NewStoreFromBytes(JSONCodec{}, []byte(`{`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestStore_Subscribe(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"a": 1})

	var seen []any
	unsubscribe := store.Subscribe(func(s *Snapshot) {
		seen = append(seen, s.Get("a"))
	})

	mustSet(t, store.Mutable(), "a", 2)
	mustSet(t, store.Mutable(), "a", 3)
	q.Drain()
	if len(seen) != 1 || seen[0] != 3 {
		t.Errorf("expected one notification with 3, got %v", seen)
	}

	if err := store.Batch(func(m *Mutable) error { return m.Set("a", 4) }); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	q.Drain()
	if len(seen) != 2 || seen[1] != 4 {
		t.Errorf("expected notification after batch, got %v", seen)
	}

	unsubscribe()
	mustSet(t, store.Mutable(), "a", 5)
	q.Drain()
	if len(seen) != 2 {
		t.Errorf("expected no notification after unsubscribe, got %v", seen)
	}
	if rt.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %s", rt.Phase())
	}
}

func TestStore_SubscribeIgnoresNoops(t *testing.T) {
	_, q, store := newTestStore(t, map[string]any{"a": 1})

	calls := 0
	store.Subscribe(func(*Snapshot) { calls++ })

	mustSet(t, store.Mutable(), "a", 1)
	if err := store.Mutable().Delete("missing"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	q.Drain()
	if calls != 0 {
		t.Errorf("expected no notification for unchanged tree, got %d", calls)
	}
}
