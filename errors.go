package mutter

import (
	"errors"
	"fmt"
)

// Kind classifies runtime misuse.
type Kind int

const (
	// KindStructural reports a violation of the tree shape: aliasing an
	// existing node, a non-tree store root, or writing through a detached node.
	KindStructural Kind = iota

	// KindPhase reports an operation attempted in the wrong scheduler phase.
	KindPhase

	// KindAccess reports a snapshot read outside any tracking window while
	// the runtime requires an observer.
	KindAccess

	// KindImmutable reports a write or delete against a snapshot. It is the
	// only non-fatal kind: the operation is rejected and flagged.
	KindImmutable
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindPhase:
		return "phase"
	case KindAccess:
		return "access"
	case KindImmutable:
		return "immutable"
	default:
		return "unknown"
	}
}

var (
	// ErrStructural is matched by every structural violation.
	ErrStructural = errors.New("mutter: state must be a tree, not a graph")

	// ErrPhase is matched by every phase violation.
	ErrPhase = errors.New("mutter: operation not allowed in current phase")

	// ErrAccessOutsideTracking is matched when a snapshot is read with no
	// active observer and the runtime requires one.
	ErrAccessOutsideTracking = errors.New("mutter: observable accessed outside observer")

	// ErrImmutable is matched when a snapshot write is rejected.
	ErrImmutable = errors.New("mutter: snapshots are immutable")
)

// Error describes a single misuse of the runtime.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("mutter: %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("mutter: %s %q: %s", e.Op, e.Path, e.Msg)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindStructural:
		return ErrStructural
	case KindPhase:
		return ErrPhase
	case KindAccess:
		return ErrAccessOutsideTracking
	case KindImmutable:
		return ErrImmutable
	default:
		return nil
	}
}

func structuralError(op, path, msg string) *Error {
	return &Error{Kind: KindStructural, Op: op, Path: path, Msg: msg}
}

func phaseError(op, msg string) *Error {
	return &Error{Kind: KindPhase, Op: op, Msg: msg}
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
