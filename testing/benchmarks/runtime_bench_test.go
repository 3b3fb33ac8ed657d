package benchmarks

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/zoobzio/mutter"
)

func newStore(b *testing.B, initial any) (*mutter.Runtime, *mutter.Queue, *mutter.Store) {
	b.Helper()
	q := mutter.NewQueue()
	rt := mutter.NewRuntime(q)
	store, err := rt.NewStore(initial)
	if err != nil {
		b.Fatalf("NewStore() error = %v", err)
	}
	return rt, q, store
}

func wideTree(n int) map[string]any {
	tree := make(map[string]any, n)
	for i := 0; i < n; i++ {
		tree["k"+strconv.Itoa(i)] = map[string]any{"value": i}
	}
	return tree
}

func BenchmarkMutable_SetScalar(b *testing.B) {
	_, q, store := newStore(b, map[string]any{"n": 0})
	root := store.Mutable()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := root.Set("n", i+1); err != nil {
			b.Fatal(err)
		}
	}
	q.Drain()
}

func BenchmarkSnapshotThenWrite(b *testing.B) {
	for _, size := range []int{10, 1000} {
		b.Run(fmt.Sprintf("siblings=%d", size), func(b *testing.B) {
			_, q, store := newStore(b, wideTree(size))
			leaf := store.Mutable().Get("k0").(*mutter.Mutable)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = store.Snapshot()
				if err := leaf.Set("value", i+1); err != nil {
					b.Fatal(err)
				}
			}
			q.Drain()
		})
	}
}

func BenchmarkFlush(b *testing.B) {
	for _, observers := range []int{1, 100} {
		b.Run(fmt.Sprintf("observers=%d", observers), func(b *testing.B) {
			rt, _, store := newStore(b, map[string]any{"n": 0})
			for i := 0; i < observers; i++ {
				if _, err := mutter.Observe(rt, func(*mutter.Observer) {
					_ = store.Snapshot().Get("n")
				}); err != nil {
					b.Fatal(err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				err := store.Batch(func(m *mutter.Mutable) error {
					return m.Set("n", i+1)
				})
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkBinding_Process(b *testing.B) {
	_, _, store := newStore(b, nil)
	ch := make(chan []mutter.Change, b.N+1)
	ch <- mutter.Document([]byte(`{"value": 0, "name": "initial"}`))
	for i := 1; i <= b.N; i++ {
		ch <- mutter.Document([]byte(fmt.Sprintf(`{"value": %d, "name": "test"}`, i)))
	}

	binding := mutter.Bind(store, mutter.NewSyncChannelSource(ch)).SyncMode()
	ctx := context.Background()
	if err := binding.Start(ctx); err != nil {
		b.Fatalf("Start() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binding.Process(ctx)
	}
}
