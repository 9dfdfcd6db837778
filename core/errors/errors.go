// Package errors classifies the failures returned by the marketplace core so
// that transports can map them to status codes without string matching.
package errors

import stderrors "errors"

// Kind groups errors by the reason an operation was rejected.
type Kind uint8

const (
	// KindUnknown marks errors that did not originate from the core.
	KindUnknown Kind = iota
	// KindValidation marks malformed input: zero price, zero hash, bps out of range.
	KindValidation
	// KindAuthorization marks callers lacking rights for the operation.
	KindAuthorization
	// KindConflict marks requests that clash with current state.
	KindConflict
	// KindResource marks insufficient funds or payment.
	KindResource
	// KindNotFound marks references to unknown entities.
	KindNotFound
	// KindUnavailable marks transient refusals: lock timeouts, paused modules,
	// payment rail failures. Callers may retry.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a categorised sentinel error.
type Error struct {
	kind Kind
	msg  string
}

// New returns a sentinel error of the supplied kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind reports the category of the error.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the category of the first categorised error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var categorised *Error
	if stderrors.As(err, &categorised) {
		return categorised.kind
	}
	return KindUnknown
}

// Is reports whether err belongs to the supplied category.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
