package transfer

import "github.com/pkg/errors"

// ErrAlreadyStarted is returned when the operation lock is already held for
// the initiator call.
var ErrAlreadyStarted = errors.New("transfer already started for this call")

// ErrNoSuchTransfer is returned when the referenced transfer does not exist.
var ErrNoSuchTransfer = errors.New("no such transfer")

// CreationError describes why a transfer could not be created (missing leg,
// unknown destination, invalid flow).
type CreationError struct {
	Reason string
}

func (e *CreationError) Error() string {
	return "transfer creation error: " + e.Reason
}

// CompletionError is returned when the transfer's current state does not
// accept a complete request.
type CompletionError struct {
	Reason string
}

func (e *CompletionError) Error() string {
	return "transfer completion error: " + e.Reason
}

// CancellationError is returned when the transfer's current state does not
// accept a cancel request.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	return "transfer cancellation error: " + e.Reason
}
