// Package testing provides test utilities and helpers for mutter runtimes,
// stores and bindings.
package testing

import (
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/mutter"
)

// Harness bundles a runtime with the deterministic host and clock it runs on.
type Harness struct {
	Runtime *mutter.Runtime
	Queue   *mutter.Queue
	Clock   *clockz.FakeClock
}

// NewHarness creates a runtime on a Queue host and a fake clock. Strict
// mode stays on, as in production.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	q := mutter.NewQueue()
	clock := clockz.NewFakeClock()
	return &Harness{
		Runtime: mutter.NewRuntime(q).Clock(clock),
		Queue:   q,
		Clock:   clock,
	}
}

// NewStore creates a store on the harness runtime, failing the test on error.
func (h *Harness) NewStore(t *testing.T, initial any) *mutter.Store {
	t.Helper()
	store, err := h.Runtime.NewStore(initial)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

// Flush runs every deferred and posted task.
func (h *Harness) Flush() int {
	return h.Queue.Drain()
}

// Recorder observes a computation and keeps every value it produced.
type Recorder struct {
	mu       sync.Mutex
	values   []any
	observer *mutter.Observer
}

// Record starts observing fn. The first run happens immediately.
func Record(t *testing.T, rt *mutter.Runtime, fn func() any) *Recorder {
	t.Helper()
	r := &Recorder{}
	o, err := mutter.Observe(rt, func(*mutter.Observer) {
		v := fn()
		r.mu.Lock()
		r.values = append(r.values, v)
		r.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	r.observer = o
	t.Cleanup(o.Dispose)
	return r
}

// Runs returns how many times the computation has run.
func (r *Recorder) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Values returns every recorded value, oldest first.
func (r *Recorder) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values...)
}

// Last returns the most recent value.
func (r *Recorder) Last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil
	}
	return r.values[len(r.values)-1]
}

// Observer returns the underlying observer.
func (r *Recorder) Observer() *mutter.Observer {
	return r.observer
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the binding reaches the expected state or timeout occurs.
func WaitForState(t *testing.T, b *mutter.Binding, expected mutter.BindingState, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return b.State() == expected
	})
}

// RequireState fails the test immediately if the binding is not in the expected state.
func RequireState(t *testing.T, b *mutter.Binding, expected mutter.BindingState) {
	t.Helper()
	if got := b.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireKind fails the test unless err is a mutter error of the given kind.
func RequireKind(t *testing.T, err error, kind mutter.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !mutter.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// NewTestBinding creates a sync-mode binding fed by a buffered channel.
// Returns the binding and the channel for sending updates.
func NewTestBinding(t *testing.T, store *mutter.Store) (*mutter.Binding, chan<- []mutter.Change) {
	t.Helper()
	ch := make(chan []mutter.Change, 10)
	b := mutter.Bind(store, mutter.NewSyncChannelSource(ch)).SyncMode()
	return b, ch
}
