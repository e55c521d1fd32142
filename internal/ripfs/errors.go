// Package ripfs holds the types shared by the image store and the zip
// device: an error-kind taxonomy and the scratch filesystem contract
// that both cores are written against.
package ripfs

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies a failure the way the host's filesystem device
// error codes do; it is a taxonomy, not a replacement for Go's error
// values, so every Error still wraps an underlying cause where one
// exists.
type Kind int

const (
	_ Kind = iota
	OutOfMemory
	IOError
	CorruptArchive
	Unsupported
	InvalidArgument
	NotFound
	AccessDenied
	Interrupted
	Internal
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "out of memory"
	case IOError:
		return "I/O error"
	case CorruptArchive:
		return "corrupt archive"
	case Unsupported:
		return "unsupported"
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case AccessDenied:
		return "access denied"
	case Interrupted:
		return "interrupted"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned across package boundaries
// in this module. Op names the failing operation (e.g. "reload",
// "find_end_cdir") for log messages; Err, if non-nil, is the
// underlying cause and participates in xerrors.Is/As via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error. A nil err is fine for kinds that are
// self-explanatory (NotFound, AccessDenied).
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// Internal otherwise — a wrapped stdlib/io error reaching a caller
// that only understands this taxonomy should still surface as a
// kind, not panic a type switch.
func KindOf(err error) Kind {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
