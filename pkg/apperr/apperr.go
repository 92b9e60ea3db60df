// Package apperr defines the sentinel errors shared by the registry, the
// contract engine and the interaction surface. Callers match with errors.Is
// and add context with fmt.Errorf("...: %w", ...).
package apperr

import "errors"

var (
	// ErrNotFound reports an unknown organization or contract id. User-visible, non-fatal.
	ErrNotFound = errors.New("not found")
	// ErrLimitExceeded reports that the per-guild organization cap has been reached.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrPermissionDenied reports a failed authorization check.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidInput reports malformed actor input (non-numeric id, non-positive duration).
	ErrInvalidInput = errors.New("invalid input")
	// ErrExternal reports a failed chat-platform call. Caught and logged, never
	// allowed to crash the engine.
	ErrExternal = errors.New("external call failed")
)
