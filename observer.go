package mutter

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// Observer is a re-runnable computation with a tracked dependency set. Its
// callback is invoked at most once per flush when any observable read during
// its last tracking window changes.
//
// The callback owns tracking: it calls BeginTracking/EndTracking (or
// Runtime.Track) around the reads that should become dependencies.
type Observer struct {
	rt       *Runtime
	id       string
	seq      uint64
	callback func(*Observer)

	observables map[Observable]struct{}
	pending     map[Observable]struct{}
	disposed    bool

	disposeGen  uint64
	disposeStop chan struct{}
}

// NewObserver creates a detached observer. It starts depending on state the
// first time it tracks.
func (rt *Runtime) NewObserver(callback func(*Observer)) *Observer {
	rt.observers++
	return &Observer{
		rt:          rt,
		id:          uuid.NewString(),
		seq:         rt.observers,
		callback:    callback,
		observables: make(map[Observable]struct{}),
	}
}

// ID returns the observer's unique identifier.
func (o *Observer) ID() string {
	return o.id
}

// Disposed reports whether the observer has been disposed.
func (o *Observer) Disposed() bool {
	return o.disposed
}

// Tracking reports whether the observer's tracking window is open.
func (o *Observer) Tracking() bool {
	return o.pending != nil
}

// Observables returns the committed dependency set in sorted order.
func (o *Observer) Observables() []Observable {
	out := make([]Observable, 0, len(o.observables))
	for obs := range o.observables {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BeginTracking opens the tracking window. It requires a reads phase and no
// other observer tracking.
func (o *Observer) BeginTracking() error {
	rt := o.rt
	if o.disposed {
		return phaseError("begin tracking", "observer is disposed")
	}
	if rt.observer != nil {
		return phaseError("begin tracking", "another observer is already tracking")
	}
	if rt.phase != PhaseReads {
		return phaseError("begin tracking", "can't begin tracking when not in reads phase")
	}
	o.pending = make(map[Observable]struct{})
	rt.observer = o
	return nil
}

// EndTracking closes the tracking window and commits what was read. Anything
// read last time but not this time is unsubscribed.
func (o *Observer) EndTracking() error {
	rt := o.rt
	if rt.observer != o {
		return phaseError("end tracking", "not tracking; EndTracking must be paired with BeginTracking")
	}
	// Reads remove from the committed set as they go, so what is left here
	// was not read this time.
	for obs := range o.observables {
		rt.registry.remove(obs, o)
	}
	o.observables = o.pending
	o.pending = nil
	rt.observer = nil
	return nil
}

func (o *Observer) track(obs Observable) {
	o.pending[obs] = struct{}{}
	delete(o.observables, obs)
	o.rt.registry.add(obs, o)
}

// Dispose unsubscribes the observer from everything and makes it inert. A
// disposed observer that is already scheduled is skipped at flush.
func (o *Observer) Dispose() {
	if o.disposed {
		return
	}
	o.CancelDispose()
	rt := o.rt
	for obs := range o.observables {
		rt.registry.remove(obs, o)
	}
	for obs := range o.pending {
		rt.registry.remove(obs, o)
	}
	if rt.observer == o {
		rt.observer = nil
	}
	o.observables = make(map[Observable]struct{})
	o.pending = nil
	o.disposed = true
	capitan.Emit(context.Background(), ObserverDisposed, KeyObserver.Field(o.id))
}

// ScheduleDispose disposes the observer after the runtime's dispose delay
// unless CancelDispose is called first. Disposal itself is posted back onto
// the host so it runs on the runtime's thread.
func (o *Observer) ScheduleDispose() {
	o.CancelDispose()
	gen := o.disposeGen
	stop := make(chan struct{})
	o.disposeStop = stop
	timer := o.rt.clock.NewTimer(o.rt.disposeDelay)
	go func() {
		select {
		case <-timer.C():
			o.rt.host.Post(func() {
				if o.disposeGen == gen {
					o.Dispose()
				}
			})
		case <-stop:
			timer.Stop()
		}
	}()
}

// CancelDispose cancels a pending ScheduleDispose.
func (o *Observer) CancelDispose() {
	o.disposeGen++
	if o.disposeStop != nil {
		close(o.disposeStop)
		o.disposeStop = nil
	}
}
