package btree

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is returned by Insert when the key already exists.
	// Per the core's failure semantics this is a fatal condition for the
	// calling operation, not retryable.
	ErrDuplicateKey = errors.New("btree: duplicate key")
	// ErrKeyNotFound is returned by Update and Delete when the key is absent.
	ErrKeyNotFound = errors.New("btree: key not found")

	// ErrInvariantViolation signals a structural invariant broke: n > B, a
	// negative count, an unexpected node kind, a double free, or an
	// off-by-one in the slotted layout. Callers should treat this as fatal;
	// see panicInvariant.
	ErrInvariantViolation = errors.New("btree: invariant violation")

	// ErrRecordTooLarge is returned when a single record cannot fit in an
	// otherwise-empty page, even after overflow chaining would apply.
	ErrRecordTooLarge = errors.New("btree: record too large for page")

	// ErrSchemaMismatch names an on-disk tree header that differs from what
	// a caller expected. No function in this package returns it: Open takes
	// no expected header and accepts whatever page 0 holds.
	ErrSchemaMismatch = errors.New("btree: schema mismatch")

	// ErrInvalidBranchingFactor is returned by Create for B outside [2, 2048].
	ErrInvalidBranchingFactor = errors.New("btree: branching factor must be in [2, 2048]")
)

// panicInvariant is the core's only fatal-error path: an invariant breach
// is a programmer/corruption bug, not a recoverable condition, so it
// panics with a descriptive message rather than returning an error. The
// caller or test harness decides whether to recover.
func panicInvariant(format string, args ...interface{}) {
	panic(fmt.Sprintf("%s: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)))
}
