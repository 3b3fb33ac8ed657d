package mutter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for change processing.
const DefaultDebounce = 100 * time.Millisecond

// Binding keeps a Store in step with a Source. Each update is decoded and
// written in a single batch, so observers see all of it at once and re-run
// only where values actually differ.
//
// Writes happen on the runtime's thread: Start must be called there, and
// changes that arrive later are posted to the runtime's host.
type Binding struct {
	store          *Store
	source         Source
	codec          Codec
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	onStop         func(BindingState)

	state        atomic.Int32
	applied      atomic.Bool
	lastError    atomic.Pointer[error]
	errorHistory *errorRing

	mu      sync.Mutex
	started bool

	// For sync mode: channel to receive updates
	changes <-chan []Change
}

// update is a change with its decoded value.
type update struct {
	Change
	value any
	err   error
}

// Bind creates a Binding that writes changes from source into store.
//
// Instance configuration uses chainable methods before calling Start():
//
//	b := mutter.Bind(store, file.New("state.yaml")).
//	    Codec(mutter.YAMLCodec{}).
//	    Debounce(50 * time.Millisecond)
func Bind(store *Store, source Source) *Binding {
	b := &Binding{
		store:    store,
		source:   source,
		debounce: DefaultDebounce,
		clock:    store.rt.clock,
	}
	b.state.Store(int32(BindingLoading))
	return b
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Codec sets the codec for decoding change payloads. By default payloads
// starting with '{' or '[' are read as JSON and anything else as YAML.
// Must be called before Start().
func (b *Binding) Codec(codec Codec) *Binding {
	b.codec = codec
	return b
}

// Debounce sets how long to wait for more changes before writing. Changes
// to the same path within the window are coalesced, keeping the latest.
// Default: 100ms. Must be called before Start().
func (b *Binding) Debounce(d time.Duration) *Binding {
	b.debounce = d
	return b
}

// StartupTimeout sets the maximum duration to wait for the source's first
// change. Default: no timeout. Must be called before Start().
func (b *Binding) StartupTimeout(d time.Duration) *Binding {
	b.startupTimeout = d
	return b
}

// SyncMode enables synchronous processing for testing. Changes are only
// processed by explicit Process calls, without debouncing or goroutines.
// Must be called before Start().
func (b *Binding) SyncMode() *Binding {
	b.syncMode = true
	return b
}

// Clock sets the clock used for debouncing and the startup timeout.
// Default: the runtime's clock. Must be called before Start().
func (b *Binding) Clock(clock clockz.Clock) *Binding {
	b.clock = clock
	return b
}

// OnStop sets a callback invoked with the final state when watching stops.
// Must be called before Start().
func (b *Binding) OnStop(fn func(BindingState)) *Binding {
	b.onStop = fn
	return b
}

// ErrorHistorySize sets the number of recent errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (b *Binding) ErrorHistorySize(n int) *Binding {
	b.errorHistory = newErrorRing(n)
	return b
}

// Store returns the bound store.
func (b *Binding) Store() *Store {
	return b.store
}

// State returns the current state of the Binding.
func (b *Binding) State() BindingState {
	return BindingState(b.state.Load())
}

// LastError returns the last error encountered, or nil after a fully
// successful update.
func (b *Binding) LastError() error {
	ptr := b.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent errors, oldest first. Returns nil unless
// ErrorHistorySize was set.
func (b *Binding) ErrorHistory() []BindingError {
	return b.errorHistory.all()
}

// Start begins watching. It blocks until the source's first change has been
// written (or has failed), then keeps watching in the background.
//
// If the first change fails, Start returns the error but keeps watching for
// valid updates. In sync mode, use Process to handle subsequent changes.
//
// Start can only be called once, from the runtime's thread.
func (b *Binding) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("binding already started")
	}
	b.started = true
	b.mu.Unlock()

	capitan.Emit(ctx, BindingStarted,
		KeyStore.Field(b.store.id),
		KeySourceType.Field(fmt.Sprintf("%T", b.source)),
		KeyDebounce.Field(b.debounce),
	)

	updates, err := b.source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	startupCtx := ctx
	if b.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = b.clock.WithTimeout(ctx, b.startupTimeout)
		defer cancel()
	}

	var initialErr error
	select {
	case <-startupCtx.Done():
		if b.startupTimeout > 0 && errors.Is(startupCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("startup timeout: source did not emit within %v", b.startupTimeout)
		}
		return startupCtx.Err()
	case changes, ok := <-updates:
		if !ok {
			return fmt.Errorf("source closed before emitting initial update")
		}
		b.received(ctx, changes)
		initialErr = b.apply(ctx, b.decode(changes))
	}

	if b.syncMode {
		b.changes = updates
		return initialErr
	}

	go b.watch(ctx, updates)

	return initialErr
}

// Process reads and writes the next update from the source. It is only
// available in sync mode and must be called from the runtime's thread.
// Returns false if no update is available or the channel is closed.
func (b *Binding) Process(ctx context.Context) bool {
	if !b.syncMode {
		return false
	}

	select {
	case changes, ok := <-b.changes:
		if !ok {
			return false
		}
		b.received(ctx, changes)
		_ = b.apply(ctx, b.decode(changes)) //nolint:errcheck // Errors stored via setError
		return true
	default:
		return false
	}
}

func (b *Binding) received(ctx context.Context, changes []Change) {
	for _, c := range changes {
		capitan.Emit(ctx, BindingChangeReceived, KeyPath.Field(joinPath(c.Path)))
	}
}

func (b *Binding) decode(changes []Change) []update {
	out := make([]update, len(changes))
	for i, c := range changes {
		out[i].Change = c
		if c.Deleted {
			continue
		}
		out[i].value, out[i].err = DecodeValue(b.codecFor(c.Raw), c.Raw)
	}
	return out
}

func (b *Binding) codecFor(raw []byte) Codec {
	if b.codec != nil {
		return b.codec
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return JSONCodec{}
	}
	return YAMLCodec{}
}

// apply writes decoded updates in one batch. Updates that fail are skipped;
// the others are still written.
func (b *Binding) apply(ctx context.Context, updates []update) error {
	rt := b.store.rt
	oldState := b.State()
	var failed []error

	for _, u := range updates {
		if u.err != nil {
			failed = append(failed, b.fail(ctx, true, u.Path, u.err))
		}
	}

	applied := 0
	err := rt.write("bind", func() error {
		for _, u := range updates {
			if u.err != nil {
				continue
			}
			if err := b.write(u); err != nil {
				failed = append(failed, b.fail(ctx, false, u.Path, err))
				continue
			}
			applied++
		}
		return nil
	})
	if err != nil {
		failed = append(failed, b.fail(ctx, false, nil, err))
	}

	if applied > 0 {
		b.applied.Store(true)
		capitan.Emit(ctx, BindingApplySucceeded, KeyCount.Field(applied))
	}
	if len(failed) > 0 {
		b.transitionState(ctx, oldState, b.failureState())
		return fmt.Errorf("apply failed: %w", errors.Join(failed...))
	}

	b.lastError.Store(nil)
	b.errorHistory.clear()
	b.transitionState(ctx, oldState, BindingHealthy)
	return nil
}

// write applies one update at its path, creating missing records on the way.
func (b *Binding) write(u update) error {
	root := b.store.Mutable()
	if len(u.Path) == 0 {
		if u.Deleted {
			if root.IsList() {
				return root.Replace([]any{})
			}
			return root.Replace(map[string]any{})
		}
		return root.Replace(u.value)
	}

	parent := root
	for i, seg := range u.Path[:len(u.Path)-1] {
		switch next := parent.Get(seg).(type) {
		case *Mutable:
			parent = next
		case nil:
			if u.Deleted {
				return nil
			}
			if err := parent.Set(seg, map[string]any{}); err != nil {
				return err
			}
			parent = parent.Get(seg).(*Mutable)
		default:
			return structuralError("bind", joinPath(u.Path[:i+1]), "path runs through a scalar")
		}
	}

	key := u.Path[len(u.Path)-1]
	if u.Deleted {
		return parent.Delete(key)
	}
	if child, ok := parent.Get(key).(*Mutable); ok && sameKind(child.node, u.value) {
		return child.Replace(u.value)
	}
	return parent.Set(key, u.value)
}

func (b *Binding) fail(ctx context.Context, decoding bool, path []string, err error) error {
	be := BindingError{Path: path, At: b.clock.Now(), Err: err}
	b.setError(be)
	b.store.rt.logger.Error("mutter: binding update failed",
		slog.String("store", b.store.id),
		slog.String("path", joinPath(path)),
		slog.Any("error", err),
	)
	signal := BindingApplyFailed
	if decoding {
		signal = BindingDecodeFailed
	}
	capitan.Emit(ctx, signal,
		KeyPath.Field(joinPath(path)),
		KeyError.Field(err.Error()),
	)
	return be
}

// failureState returns the appropriate failure state based on whether
// anything has ever been applied.
func (b *Binding) failureState() BindingState {
	if !b.applied.Load() {
		return BindingEmpty
	}
	return BindingDegraded
}

// transitionState updates the state and emits a state change event if changed.
func (b *Binding) transitionState(ctx context.Context, oldState, newState BindingState) {
	if oldState == newState {
		return
	}
	b.state.Store(int32(newState))
	capitan.Emit(ctx, BindingStateChanged,
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if m := b.store.rt.metrics; m != nil {
		m.OnBindingState(oldState, newState)
	}
}

func (b *Binding) setError(err error) {
	e := err
	b.lastError.Store(&e)
	if be, ok := err.(BindingError); ok {
		b.errorHistory.push(be)
	}
}

// watch collects changes off the runtime's thread, decodes them once the
// debounce window closes, and posts the write to the host.
func (b *Binding) watch(ctx context.Context, updates <-chan []Change) {
	defer func() {
		finalState := b.State()
		capitan.Emit(ctx, BindingStopped,
			KeyState.Field(finalState.String()),
		)
		if b.onStop != nil {
			b.onStop(finalState)
		}
	}()

	var (
		timer   clockz.Timer
		pending []Change
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		updates := b.decode(pending)
		pending = nil
		b.store.rt.host.Post(func() {
			_ = b.apply(ctx, updates) //nolint:errcheck // Errors stored via setError
		})
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case changes, ok := <-updates:
			if !ok {
				flush()
				return
			}

			b.received(ctx, changes)
			for _, c := range changes {
				pending = coalesce(pending, c)
			}

			if b.debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = b.clock.NewTimer(b.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(b.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}

// coalesce appends c, dropping an earlier pending change to the same path so
// the latest one is written in arrival order.
func coalesce(pending []Change, c Change) []Change {
	for i, p := range pending {
		if slices.Equal(p.Path, c.Path) {
			pending = slices.Delete(pending, i, i+1)
			break
		}
	}
	return append(pending, c)
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}
