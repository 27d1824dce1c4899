package issues

import (
	"errors"
	"fmt"
)

// Kind classifies a failed issue operation.
type Kind int

const (
	// KindValidation covers bad input: missing required fields, a missing or
	// malformed _id, or an unusable project name.
	KindValidation Kind = iota + 1
	// KindNotFound means the target does not exist.
	KindNotFound
	// KindStore is any failure reported by the document store.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrMissingID     = errors.New("missing _id")
	ErrNoSuchIssue   = errors.New("issue not found")
)

// Error is returned by every Service operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 if err did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
