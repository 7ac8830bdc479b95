// Package errs defines the error kinds shared by every layer of the store.
//
// Each kind is a sentinel. Concrete failures are reported as *Error values
// that match their kind with errors.Is, so callers can branch on the kind
// without caring which layer produced it:
//
//	if errors.Is(err, errs.ErrConflict) {
//		// re-read the stream tip and retry
//	}
//
// Underlying I/O errors are never replaced; they are wrapped with %w and stay
// reachable through errors.Is / errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.
var (
	// ErrNotFound: an object or reference does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity: bytes at a content-addressed path no longer hash to the requested ID.
	ErrIntegrity = errors.New("integrity error")

	// ErrInvalidReference: a referenced ID is missing or decodes to the wrong variant.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidName: a stream name failed path-safety validation.
	ErrInvalidName = errors.New("invalid name")

	// ErrConflict: a compare-and-swap precondition failed.
	ErrConflict = errors.New("conflict")

	// ErrForbidden: the request is well-formed but breaks a business rule.
	ErrForbidden = errors.New("forbidden")

	// ErrLockContention: the mutation target is already locked.
	ErrLockContention = errors.New("lock contention")

	// ErrAmbiguous: an ID prefix matches more than one object.
	ErrAmbiguous = errors.New("ambiguous prefix")

	// ErrExists: the stream or repository being created already exists.
	ErrExists = errors.New("already exists")

	// ErrInvalidObject: an object field failed validation.
	ErrInvalidObject = errors.New("invalid object")
)

var kinds = []error{
	ErrNotFound,
	ErrIntegrity,
	ErrInvalidReference,
	ErrInvalidName,
	ErrConflict,
	ErrForbidden,
	ErrLockContention,
	ErrAmbiguous,
	ErrExists,
	ErrInvalidObject,
}

// Error is a typed store failure.
type Error struct {
	// Kind is one of the sentinel kinds above.
	Kind error

	// Op names the failing operation ("odb.read", "refs.advance", ...).
	Op string

	// Subject identifies what the operation was acting on (ID, stream name, path).
	Subject string

	// Field names the offending object field for reference/validation failures.
	Field string

	// Message is a human-readable detail.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Subject != "" {
		fmt.Fprintf(&b, " %q", e.Subject)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error of the given kind.
func New(kind error, op, subject, message string) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Message: message}
}

// Wrap creates an *Error of the given kind around a cause.
func Wrap(kind error, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// InvalidReference reports a bad cross-object reference on a named field.
func InvalidReference(op, field, id, message string) *Error {
	return &Error{Kind: ErrInvalidReference, Op: op, Subject: id, Field: field, Message: message}
}

// KindOf returns the sentinel kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Code returns a stable upper-case code for err's kind, used by the CLI's
// JSON output. Errors without a kind map to "IO".
func Code(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrIntegrity:
		return "INTEGRITY"
	case ErrInvalidReference:
		return "INVALID_REFERENCE"
	case ErrInvalidName:
		return "INVALID_NAME"
	case ErrConflict:
		return "CONFLICT"
	case ErrForbidden:
		return "FORBIDDEN"
	case ErrLockContention:
		return "LOCK_CONTENTION"
	case ErrAmbiguous:
		return "AMBIGUOUS"
	case ErrExists:
		return "EXISTS"
	case ErrInvalidObject:
		return "INVALID_OBJECT"
	default:
		return "IO"
	}
}
