// Package errors provides the domain error types for judgeroute.
//
// Sentinel errors describe broad conditions and are checked with errors.Is.
// The typed errors (MalformedIDError, FetchError, InvalidOverrideError) carry
// the details an operator needs and unwrap to the matching sentinel.
//
// Usage:
//
//	import jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
//
//	if jrerrors.IsValidation(err) {
//	    // skip the record, keep the batch going
//	}
package errors

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrNotFound indicates the requested run or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// MalformedIDError is returned when a process identifier cannot be sliced
// into a CNJ number. It is fatal for that record only.
type MalformedIDError struct {
	Raw    string
	Reason string
}

func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("malformed process id %q: %s", e.Raw, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *MalformedIDError) Unwrap() error {
	return ErrValidation
}

// InvalidOverrideError is returned when a manual override targets a record
// whose outcome does not accept one. Batch state is left unchanged.
type InvalidOverrideError struct {
	Index   int
	Current string
}

func (e *InvalidOverrideError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("invalid override at index %d", e.Index)
	}
	return fmt.Sprintf("invalid override at index %d: outcome is %s", e.Index, e.Current)
}

func (e *InvalidOverrideError) Unwrap() error {
	return ErrInvalidState
}
