// Package errkind defines the substrate-neutral error kinds services and
// backends translate into, per the boundary contract between the
// persistence layer and the domain services.
package errkind

import "errors"

// The seven error kinds. Backends and services wrap these with context via
// fmt.Errorf("...: %w", Kind) so callers can test with errors.Is.
var (
	// NotFound means an entity lookup failed.
	NotFound = errors.New("not found")

	// Conflict means an optimistic-concurrency check failed: an mcount
	// mismatch on move apply, or a duplicate unique constraint.
	Conflict = errors.New("conflict")

	// IllegalMove means a move failed local validation.
	IllegalMove = errors.New("illegal move")

	// IllegalState means the operation is not allowed in the entity's
	// current state.
	IllegalState = errors.New("illegal state")

	// Forbidden means the caller is not authorized for the operation.
	Forbidden = errors.New("forbidden")

	// BackendFailure wraps an underlying substrate error so service code
	// never sees a pgx- or mongo-specific error type.
	BackendFailure = errors.New("backend failure")

	// DeadlineExceeded is the kind reserved for the nightly pipeline's
	// deadline; no code path in this module returns it.
	DeadlineExceeded = errors.New("deadline exceeded")
)
