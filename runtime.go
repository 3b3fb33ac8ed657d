package mutter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDisposeDelay is how long an observer scheduled for disposal waits
// before it is disposed.
const DefaultDisposeDelay = time.Second

// Runtime serializes all access to the stores it owns. It is the phase state
// machine (idle, reads, writes), the dependency registry, and the flush
// scheduler. A Runtime is not safe for concurrent use: every call must happen
// on the host's thread of control.
type Runtime struct {
	host            Host
	clock           clockz.Clock
	logger          *slog.Logger
	loggerSet       bool
	metrics         MetricsProvider
	requireObserver bool
	disposeDelay    time.Duration

	phase          Phase
	version        uint64
	observer       *Observer
	untracked      int
	flushScheduled bool

	scheduled    []*Observer
	scheduledSet map[*Observer]struct{}
	actions      []func() error

	registry  *registry
	stores    int
	observers uint64
}

// NewRuntime creates a Runtime that defers flushes onto host.
//
// Instance configuration uses chainable methods:
//
//	rt := mutter.NewRuntime(mutter.NewQueue()).
//	    RequireObserver(false).
//	    DisposeDelay(500 * time.Millisecond)
func NewRuntime(host Host) *Runtime {
	return &Runtime{
		host:            host,
		clock:           clockz.RealClock,
		logger:          slog.Default(),
		requireObserver: true,
		disposeDelay:    DefaultDisposeDelay,
		version:         1,
		scheduledSet:    make(map[*Observer]struct{}),
		registry:        newRegistry(),
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// RequireObserver sets whether snapshot reads outside any tracking window
// fail with ErrAccessOutsideTracking. Default: true.
func (rt *Runtime) RequireObserver(required bool) *Runtime {
	rt.requireObserver = required
	return rt
}

// Clock sets the clock used for observer disposal timers.
// Use clockz.FakeClock for deterministic tests.
func (rt *Runtime) Clock(clock clockz.Clock) *Runtime {
	rt.clock = clock
	return rt
}

// DisposeDelay sets how long ScheduleDispose waits. Default: 1s.
func (rt *Runtime) DisposeDelay(d time.Duration) *Runtime {
	rt.disposeDelay = d
	return rt
}

// Logger sets the structured logger. Default: slog.Default().
// An injected logger is kept by Configure.
func (rt *Runtime) Logger(logger *slog.Logger) *Runtime {
	rt.logger = logger
	rt.loggerSet = true
	return rt
}

// Metrics sets a metrics provider for observability integration.
func (rt *Runtime) Metrics(provider MetricsProvider) *Runtime {
	rt.metrics = provider
	return rt
}

// Configure applies a validated Config. LogLevel replaces the default logger
// with a stderr text logger at that level unless one was set with Logger.
func (rt *Runtime) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	rt.requireObserver = cfg.RequireObserver
	if cfg.DisposeDelay > 0 {
		rt.disposeDelay = cfg.DisposeDelay
	}
	if cfg.LogLevel != "" && !rt.loggerSet {
		rt.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	}
	return nil
}

// Phase returns the current scheduler phase.
func (rt *Runtime) Phase() Phase {
	return rt.phase
}

// Version returns the global version token. It is re-minted at the start of
// every read phase and whenever a snapshot is handed out; only equality is
// meaningful.
func (rt *Runtime) Version() uint64 {
	return rt.version
}

// Observers returns the observers currently depending on obs.
func (rt *Runtime) Observers(obs Observable) []*Observer {
	return rt.registry.observers(obs)
}

// Subscriptions returns the number of observables with at least one observer.
func (rt *Runtime) Subscriptions() int {
	return rt.registry.len()
}

// -----------------------------------------------------------------------------
// Batches
// -----------------------------------------------------------------------------

// Batch runs fn with all its mutations coalesced into a single writes phase
// and flushes scheduled observers synchronously when fn returns, even if fn
// fails or panics.
//
// Batch can't be nested and can't be mixed with auto-batched mutations still
// waiting for their deferred flush. Called while observers run (reads phase),
// fn is queued instead and runs in a new batch right after the reads phase
// ends, in submission order; its error is logged rather than returned.
func (rt *Runtime) Batch(fn func() error) error {
	switch rt.phase {
	case PhaseWrites:
		return phaseError("batch", "already in writes phase; don't nest batches and keep all mutations in a single batch")
	case PhaseReads:
		rt.actions = append(rt.actions, fn)
		return nil
	}
	return rt.batch(fn)
}

func (rt *Runtime) batch(fn func() error) (err error) {
	if err := rt.beginWrites(false); err != nil {
		return err
	}
	capitan.Emit(context.Background(), BatchStarted, KeyPhase.Field(rt.phase.String()))
	defer func() {
		if endErr := rt.endWrites(); err == nil {
			err = endErr
		}
	}()
	return fn()
}

// write runs fn in the current writes phase, or in a new batch when idle.
// Unlike Batch it never queues: writing during reads is an error.
func (rt *Runtime) write(op string, fn func() error) error {
	switch rt.phase {
	case PhaseWrites:
		return fn()
	case PhaseReads:
		return rt.mutationInReads(op)
	}
	return rt.batch(fn)
}

// Untracked opens a read window in which snapshots can be read without an
// observer, even when one is required. Nothing read inside is registered.
func (rt *Runtime) Untracked(fn func()) error {
	entered := false
	if rt.phase == PhaseIdle {
		if err := rt.beginReads(); err != nil {
			return err
		}
		entered = true
	}
	prev := rt.observer
	rt.observer = nil
	rt.untracked++
	defer func() {
		rt.untracked--
		rt.observer = prev
		if entered {
			rt.endReadsLogged()
		}
	}()
	fn()
	return nil
}

// Track runs fn inside o's tracking window, entering a read phase first when
// the runtime is idle.
func (rt *Runtime) Track(o *Observer, fn func()) error {
	entered := false
	switch rt.phase {
	case PhaseIdle:
		if err := rt.beginReads(); err != nil {
			return err
		}
		entered = true
	case PhaseWrites:
		return phaseError("track", "can't track during writes phase")
	}
	if err := o.BeginTracking(); err != nil {
		if entered {
			rt.endReadsLogged()
		}
		return err
	}
	defer func() {
		if err := o.EndTracking(); err != nil {
			rt.logger.Error("mutter: end tracking failed", slog.String("observer", o.id), slog.Any("error", err))
		}
		if entered {
			rt.endReadsLogged()
		}
	}()
	fn()
	return nil
}

// -----------------------------------------------------------------------------
// Phase Transitions
// -----------------------------------------------------------------------------

func (rt *Runtime) beginWrites(deferFlush bool) error {
	if rt.phase != PhaseIdle {
		return phaseError("begin writes", "can't begin writes when not idle")
	}
	rt.phase = PhaseWrites
	rt.logger.Debug("mutter: begin writes", slog.Bool("deferred", deferFlush))
	if deferFlush && !rt.flushScheduled {
		rt.flushScheduled = true
		rt.host.Defer(rt.deferredFlush)
	}
	return nil
}

func (rt *Runtime) deferredFlush() {
	rt.flushScheduled = false
	if err := rt.endWrites(); err != nil {
		rt.logger.Error("mutter: deferred flush failed", slog.Any("error", err))
	}
}

func (rt *Runtime) endWrites() error {
	if rt.phase != PhaseWrites {
		return phaseError("end writes", "can't end writes when not in writes phase")
	}
	rt.phase = PhaseIdle
	rt.logger.Debug("mutter: end writes", slog.Int("scheduled", len(rt.scheduled)))
	if len(rt.scheduled) == 0 {
		return nil
	}
	return rt.flush()
}

// flush re-runs every scheduled observer exactly once inside a new read phase.
func (rt *Runtime) flush() (err error) {
	start := rt.clock.Now()
	if err := rt.beginReads(); err != nil {
		return err
	}
	ran := 0
	defer func() {
		capitan.Emit(context.Background(), FlushCompleted, KeyPhase.Field(rt.phase.String()), KeyCount.Field(ran))
		if rt.metrics != nil {
			rt.metrics.OnFlush(ran, rt.clock.Since(start))
		}
		if endErr := rt.endReads(); err == nil {
			err = endErr
		}
	}()
	for len(rt.scheduled) > 0 {
		o := rt.scheduled[0]
		rt.scheduled = rt.scheduled[1:]
		delete(rt.scheduledSet, o)
		if o.disposed || o.callback == nil {
			continue
		}
		ran++
		o.callback(o)
	}
	return nil
}

func (rt *Runtime) beginReads() error {
	if rt.phase != PhaseIdle {
		return phaseError("begin reads", "can't begin reads when not idle")
	}
	rt.phase = PhaseReads
	rt.version++
	rt.logger.Debug("mutter: begin reads", slog.Uint64("version", rt.version))
	return nil
}

func (rt *Runtime) endReads() error {
	if rt.phase != PhaseReads {
		return phaseError("end reads", "can't end reads when not in reads phase")
	}
	rt.phase = PhaseIdle
	rt.logger.Debug("mutter: end reads", slog.Int("actions", len(rt.actions)))
	if len(rt.actions) == 0 {
		return nil
	}
	actions := rt.actions
	rt.actions = nil
	return rt.batch(func() error {
		for _, action := range actions {
			if err := action(); err != nil {
				rt.logger.Error("mutter: queued action failed", slog.Any("error", err))
				capitan.Emit(context.Background(), ActionFailed, KeyError.Field(err.Error()))
			}
		}
		return nil
	})
}

func (rt *Runtime) endReadsLogged() {
	if err := rt.endReads(); err != nil {
		rt.logger.Error("mutter: end reads failed", slog.Any("error", err))
	}
}

// -----------------------------------------------------------------------------
// Access and Change Reporting
// -----------------------------------------------------------------------------

// trackRead registers obs for the tracking observer, if any.
func (rt *Runtime) trackRead(obs Observable) {
	if rt.observer != nil {
		rt.observer.track(obs)
	}
}

// reportAccess is trackRead for snapshot reads, which must happen inside a
// tracking window when an observer is required.
func (rt *Runtime) reportAccess(obs Observable) error {
	if rt.observer == nil {
		if rt.requireObserver && rt.untracked == 0 {
			return &Error{
				Kind: KindAccess,
				Op:   "read",
				Path: string(obs),
				Msg:  "accessed outside observer; read inside an observer or an Untracked window",
			}
		}
		return nil
	}
	rt.observer.track(obs)
	return nil
}

// prepareWrite enters the writes phase, scheduling the deferred flush when
// the mutation isn't part of an explicit batch.
func (rt *Runtime) prepareWrite(op string) error {
	switch rt.phase {
	case PhaseReads:
		return rt.mutationInReads(op)
	case PhaseIdle:
		return rt.beginWrites(true)
	}
	return nil
}

func (rt *Runtime) mutationInReads(op string) error {
	return phaseError(op, "can't mutate during reads; mutating state in observers is forbidden, use Batch to schedule an update")
}

// reportChange schedules every observer depending on obs.
func (rt *Runtime) reportChange(obs Observable) error {
	if err := rt.prepareWrite("change"); err != nil {
		return err
	}
	for _, o := range rt.registry.observers(obs) {
		rt.schedule(o)
	}
	return nil
}

func (rt *Runtime) schedule(o *Observer) {
	if _, ok := rt.scheduledSet[o]; ok {
		return
	}
	rt.scheduledSet[o] = struct{}{}
	rt.scheduled = append(rt.scheduled, o)
	capitan.Emit(context.Background(), ObserverScheduled, KeyObserver.Field(o.id))
}

func (rt *Runtime) rejectImmutable(op string, obs Observable) error {
	rt.logger.Warn("mutter: cannot modify snapshot; snapshots are immutable",
		slog.String("op", op),
		slog.String("path", string(obs)),
	)
	capitan.Emit(context.Background(), SnapshotWriteRejected, KeyPath.Field(string(obs)))
	if rt.metrics != nil {
		rt.metrics.OnImmutableWrite()
	}
	return &Error{Kind: KindImmutable, Op: op, Path: string(obs), Msg: "snapshots are immutable"}
}

func (rt *Runtime) recordMutation(op string) {
	if rt.metrics != nil {
		rt.metrics.OnMutation(op)
	}
}
