// Package accerr implements the error taxonomy from spec.md §7 as a
// single errors.Is/errors.As-comparable kind, instead of a scattered set
// of package-level sentinel errors. The underlying components still use
// the standard library errors package the way the teacher repo does
// (plain errors.New/fmt.Errorf sentinels) — accerr only adds a Kind so
// callers can branch on error category across package boundaries.
package accerr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure, per spec.md §7.
type Kind int

const (
	// Unknown is the zero value; a real error always carries a real Kind.
	Unknown Kind = iota
	// OutOfOrder: MMR append called with the wrong leaf index, or an
	// event sequence violates monotonicity.
	OutOfOrder
	// Invariant: a post-condition was violated (missing payload after a
	// sweep, duplicate leaf, peak-count overflow, ...).
	Invariant
	// CidMismatch: block bytes don't rehash to their claimed CID.
	CidMismatch
	// NotFound: a block or log wasn't present.
	NotFound
	// Cancelled: an operation was aborted by its cancellation signal.
	Cancelled
	// Transport: a transient network/IO failure, after the throttled
	// wrapper's retries are exhausted.
	Transport
	// ConfigError: an endpoint was unreachable or misconfigured at
	// start-up.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case OutOfOrder:
		return "out_of_order"
	case Invariant:
		return "invariant"
	case CidMismatch:
		return "cid_mismatch"
	case NotFound:
		return "not_found"
	case Cancelled:
		return "cancelled"
	case Transport:
		return "transport"
	case ConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the operation that produced it
// and its Kind, so a caller can do:
//
//	if accerr.KindOf(err) == accerr.NotFound { ... }
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, walking the chain via errors.As.
// Returns Unknown if neither err nor anything in its chain is an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
