package mutter

import (
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestObserver_TrackingRequiresReads(t *testing.T) {
	rt := NewRuntime(NewQueue())
	o := rt.NewObserver(nil)

	if err := o.BeginTracking(); !IsKind(err, KindPhase) {
		t.Errorf("expected phase error outside reads, got %v", err)
	}
	if err := o.EndTracking(); !IsKind(err, KindPhase) {
		t.Errorf("expected phase error ending without beginning, got %v", err)
	}
	if o.Tracking() {
		t.Error("expected observer not to be tracking")
	}
}

func TestObserver_NestedTrackingFails(t *testing.T) {
	rt := NewRuntime(NewQueue())
	other := rt.NewObserver(nil)

	var nested error
	if _, err := Observe(rt, func(o *Observer) {
		if !o.Tracking() {
			t.Error("expected observer to be tracking inside its callback")
		}
		nested = other.BeginTracking()
	}); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !IsKind(nested, KindPhase) {
		t.Errorf("expected phase error for nested tracking, got %v", nested)
	}
}

func TestObserver_ManualTracking(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"a": 1})

	runs := 0
	var o *Observer
	o = rt.NewObserver(func(*Observer) {
		runs++
		if err := o.BeginTracking(); err != nil {
			t.Errorf("BeginTracking failed: %v", err)
			return
		}
		_ = store.Snapshot().Get("a")
		if err := o.EndTracking(); err != nil {
			t.Errorf("EndTracking failed: %v", err)
		}
	})
	if err := rt.Track(o, func() { _ = store.Snapshot().Get("a") }); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	mustSet(t, store.Mutable(), "a", 2)
	q.Drain()
	if runs != 1 {
		t.Errorf("expected callback to run once, got %d", runs)
	}
	if !reflect.DeepEqual(o.Observables(), []Observable{"0.a"}) {
		t.Errorf("expected [0.a], got %v", o.Observables())
	}
}

func TestObserver_DropsStaleDependencies(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"flag": true, "a": 1, "b": 1})

	runs := 0
	o, err := Observe(rt, func(*Observer) {
		runs++
		snap := store.Snapshot()
		if snap.Get("flag") == true {
			_ = snap.Get("a")
		} else {
			_ = snap.Get("b")
		}
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !reflect.DeepEqual(o.Observables(), []Observable{"0.a", "0.flag"}) {
		t.Errorf("expected [0.a 0.flag], got %v", o.Observables())
	}

	mustSet(t, store.Mutable(), "flag", false)
	q.Drain()
	if !reflect.DeepEqual(o.Observables(), []Observable{"0.b", "0.flag"}) {
		t.Errorf("expected [0.b 0.flag], got %v", o.Observables())
	}
	if got := rt.Observers("0.a"); len(got) != 0 {
		t.Errorf("expected stale dependency to be unsubscribed, got %d observers", len(got))
	}

	mustSet(t, store.Mutable(), "a", 2)
	q.Drain()
	if runs != 2 {
		t.Errorf("expected stale dependency not to re-run, got %d runs", runs)
	}
}

func TestObserver_MutableReadsTrack(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"a": 1})

	runs := 0
	if _, err := Observe(rt, func(*Observer) {
		_ = store.Mutable().Get("a")
		runs++
	}); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	mustSet(t, store.Mutable(), "a", 2)
	q.Drain()
	if runs != 2 {
		t.Errorf("expected mutable read to register a dependency, got %d runs", runs)
	}
}

func TestObserver_FlushOrder(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"a": 1, "b": 1})

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		if _, err := Observe(rt, func(*Observer) {
			snap := store.Snapshot()
			_ = snap.Get("a")
			_ = snap.Get("b")
			order = append(order, name)
		}); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	order = nil

	mustSet(t, store.Mutable(), "b", 2)
	mustSet(t, store.Mutable(), "a", 2)
	q.Drain()

	if !reflect.DeepEqual(order, []string{"first", "second", "third"}) {
		t.Errorf("expected each observer once in creation order, got %v", order)
	}
}

func TestObserver_Dispose(t *testing.T) {
	rt, q, store := newTestStore(t, map[string]any{"a": 1})

	runs := 0
	o, err := Observe(rt, func(*Observer) {
		_ = store.Snapshot().Get("a")
		runs++
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if rt.Subscriptions() != 1 {
		t.Errorf("expected 1 subscription, got %d", rt.Subscriptions())
	}

	mustSet(t, store.Mutable(), "a", 2)
	o.Dispose()
	o.Dispose()
	q.Drain()

	if runs != 1 {
		t.Errorf("expected scheduled disposed observer to be skipped, got %d runs", runs)
	}
	if !o.Disposed() {
		t.Error("expected observer to be disposed")
	}
	if rt.Subscriptions() != 0 {
		t.Errorf("expected no subscriptions, got %d", rt.Subscriptions())
	}
	if len(o.Observables()) != 0 {
		t.Errorf("expected no observables, got %v", o.Observables())
	}

	_ = rt.Untracked(func() {
		if err := o.BeginTracking(); !IsKind(err, KindPhase) {
			t.Errorf("expected disposed observer to refuse tracking, got %v", err)
		}
	})
}

func waitPending(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for q.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for posted task")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestObserver_ScheduleDispose(t *testing.T) {
	q := NewQueue()
	clock := clockz.NewFakeClock()
	rt := NewRuntime(q).Clock(clock).DisposeDelay(500 * time.Millisecond)
	o := rt.NewObserver(nil)

	o.ScheduleDispose()
	clock.Advance(499 * time.Millisecond)
	clock.BlockUntilReady()
	if q.Pending() != 0 || o.Disposed() {
		t.Fatal("expected observer to survive until the delay elapses")
	}

	clock.Advance(time.Millisecond)
	clock.BlockUntilReady()
	waitPending(t, q)
	q.Drain()

	if !o.Disposed() {
		t.Error("expected observer to be disposed after the delay")
	}
}

func TestObserver_CancelDispose(t *testing.T) {
	q := NewQueue()
	clock := clockz.NewFakeClock()
	rt := NewRuntime(q).Clock(clock)
	o := rt.NewObserver(nil)

	o.ScheduleDispose()
	o.CancelDispose()
	clock.Advance(DefaultDisposeDelay)
	clock.BlockUntilReady()
	time.Sleep(10 * time.Millisecond)
	q.Drain()

	if o.Disposed() {
		t.Error("expected canceled disposal not to dispose")
	}
}

func TestObserver_CancelAfterTimerFired(t *testing.T) {
	q := NewQueue()
	clock := clockz.NewFakeClock()
	rt := NewRuntime(q).Clock(clock)
	o := rt.NewObserver(nil)

	o.ScheduleDispose()
	clock.Advance(DefaultDisposeDelay)
	clock.BlockUntilReady()
	waitPending(t, q)

	o.CancelDispose()
	q.Drain()

	if o.Disposed() {
		t.Error("expected disposal posted before cancel to be ignored")
	}
}
