package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/mutter"
	"github.com/zoobzio/mutter/pkg/file"
	mtesting "github.com/zoobzio/mutter/testing"
)

// loopRuntime starts a Loop host and returns a runtime on it. The loop
// stops when the test ends.
func loopRuntime(t *testing.T) (*mutter.Loop, *mutter.Runtime, context.Context) {
	t.Helper()
	loop := mutter.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(cancel)
	return loop, mutter.NewRuntime(loop), ctx
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

// values collects what an observer saw, safe to read from the test goroutine.
type values struct {
	mu   sync.Mutex
	seen []any
}

func (v *values) add(x any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, x)
}

func (v *values) last() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.seen) == 0 {
		return nil
	}
	return v.seen[len(v.seen)-1]
}

func (v *values) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

func TestFileBinding_ReloadsObservers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "port: 8080\nhost: localhost\n")

	loop, rt, ctx := loopRuntime(t)

	var (
		store    *mutter.Store
		binding  *mutter.Binding
		startErr error
		ports    values
		hosts    values
	)
	err := loop.Do(ctx, func() {
		store, startErr = rt.NewStore(nil)
		if startErr != nil {
			return
		}
		binding = mutter.Bind(store, file.New(path)).Debounce(10 * time.Millisecond)
		if startErr = binding.Start(ctx); startErr != nil {
			return
		}
		_, startErr = mutter.Observe(rt, func(*mutter.Observer) {
			ports.add(store.Snapshot().Get("port"))
		})
		if startErr != nil {
			return
		}
		_, startErr = mutter.Observe(rt, func(*mutter.Observer) {
			hosts.add(store.Snapshot().Get("host"))
		})
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if startErr != nil {
		t.Fatalf("setup failed: %v", startErr)
	}
	mtesting.RequireState(t, binding, mutter.BindingHealthy)
	if ports.last() != 8080 {
		t.Fatalf("expected 8080, got %v", ports.last())
	}

	writeFile(t, path, "port: 9090\nhost: localhost\n")

	if !mtesting.WaitFor(t, 2*time.Second, func() bool { return ports.last() == 9090 }) {
		t.Fatalf("expected port to reload to 9090, got %v", ports.last())
	}
	if hosts.len() != 1 {
		t.Errorf("expected host observer not to re-run, got %d runs", hosts.len())
	}
}

func TestFileBinding_InvalidDocumentDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	writeFile(t, path, `{"enabled": true}`)

	loop, rt, ctx := loopRuntime(t)

	var (
		store    *mutter.Store
		binding  *mutter.Binding
		startErr error
	)
	err := loop.Do(ctx, func() {
		store, startErr = rt.NewStore(nil)
		if startErr != nil {
			return
		}
		binding = mutter.Bind(store, file.New(path)).
			Codec(mutter.JSONCodec{}).
			Debounce(10 * time.Millisecond).
			ErrorHistorySize(3)
		startErr = binding.Start(ctx)
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if startErr != nil {
		t.Fatalf("setup failed: %v", startErr)
	}

	writeFile(t, path, `{"enabled": `)
	if !mtesting.WaitForState(t, binding, mutter.BindingDegraded, 2*time.Second) {
		t.Fatalf("expected degraded, got %s", binding.State())
	}
	if len(binding.ErrorHistory()) == 0 {
		t.Error("expected error history to record the failure")
	}

	var enabled any
	if err := loop.Do(ctx, func() {
		_ = rt.Untracked(func() { enabled = store.Snapshot().Get("enabled") })
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if enabled != true {
		t.Errorf("expected last good value to be kept, got %v", enabled)
	}

	writeFile(t, path, `{"enabled": false}`)
	if !mtesting.WaitForState(t, binding, mutter.BindingHealthy, 2*time.Second) {
		t.Fatalf("expected recovery to healthy, got %s", binding.State())
	}
}

func TestFileBinding_MountedDocuments(t *testing.T) {
	dir := t.TempDir()
	flags := filepath.Join(dir, "flags.yaml")
	limits := filepath.Join(dir, "limits.yaml")
	writeFile(t, flags, "beta: true\n")
	writeFile(t, limits, "rps: 100\n")

	loop, rt, ctx := loopRuntime(t)
	rt.RequireObserver(false)

	var (
		store    *mutter.Store
		startErr error
	)
	err := loop.Do(ctx, func() {
		store, startErr = rt.NewStore(nil)
		if startErr != nil {
			return
		}
		if startErr = mutter.Bind(store, file.New(flags, file.At("flags"))).Start(ctx); startErr != nil {
			return
		}
		startErr = mutter.Bind(store, file.New(limits, file.At("limits"))).Start(ctx)
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if startErr != nil {
		t.Fatalf("setup failed: %v", startErr)
	}

	var beta, rps any
	if err := loop.Do(ctx, func() {
		snap := store.Snapshot()
		beta = snap.Get("flags").(*mutter.Snapshot).Get("beta")
		rps = snap.Get("limits").(*mutter.Snapshot).Get("rps")
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if beta != true || rps != 100 {
		t.Errorf("expected both documents mounted, got beta=%v rps=%v", beta, rps)
	}
}
