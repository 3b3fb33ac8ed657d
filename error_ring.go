package mutter

import (
	"strings"
	"sync"
	"time"
)

// BindingError records one change a Binding failed to decode or write.
type BindingError struct {
	Path []string
	At   time.Time
	Err  error
}

// Error implements the error interface.
func (e BindingError) Error() string {
	if len(e.Path) == 0 {
		return "root: " + e.Err.Error()
	}
	return strings.Join(e.Path, ".") + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e BindingError) Unwrap() error {
	return e.Err
}

// errorRing keeps the most recent binding errors. The runtime thread writes
// to it while any goroutine may read.
type errorRing struct {
	mu      sync.RWMutex
	entries []BindingError
	next    int
	full    bool
}

// newErrorRing returns nil, a disabled ring, when size is not positive.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{entries: make([]BindingError, size)}
}

func (r *errorRing) push(e BindingError) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.next = 0
	r.full = false
}

// all returns the stored errors, oldest first.
func (r *errorRing) all() []BindingError {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		if r.next == 0 {
			return nil
		}
		return append([]BindingError(nil), r.entries[:r.next]...)
	}
	out := make([]BindingError, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}
