package relocate

import "github.com/pkg/errors"

// ErrAlreadyStarted is returned when the relocate lock is already held for
// the initiator call. The relocate lock is independent of the transfer lock.
var ErrAlreadyStarted = errors.New("relocate already started for this call")

// ErrNoSuchRelocate is returned when the referenced relocate does not exist.
var ErrNoSuchRelocate = errors.New("no such relocate")

// CreationError describes why a relocate could not be created.
type CreationError struct {
	Reason string
}

func (e *CreationError) Error() string {
	return "relocate creation error: " + e.Reason
}

// CompletionError is returned when the relocate's current state does not
// accept a complete request.
type CompletionError struct {
	Reason string
}

func (e *CompletionError) Error() string {
	return "relocate completion error: " + e.Reason
}

// CancellationError is returned when the relocate's current state does not
// accept a cancel request.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	return "relocate cancellation error: " + e.Reason
}
