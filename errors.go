package rtsync

import (
	"errors"
	"fmt"
)

// Result codes returned by kernel services. A nil error means the
// operation succeeded.
var (
	// ErrParam reports a nil object or structurally invalid
	// arguments.
	ErrParam = errors.New("rtsync: invalid parameter")

	// ErrInvalidObject reports an object that was never created,
	// has been deleted, or is corrupted.
	ErrInvalidObject = errors.New("rtsync: invalid object")

	// ErrTimeout reports that a wait expired, including the
	// zero-timeout "would block" case.
	ErrTimeout = errors.New("rtsync: timeout")

	// ErrOverflow reports a signal on a semaphore that is already
	// at its maximum count with nobody waiting.
	ErrOverflow = errors.New("rtsync: overflow")

	// ErrDeleted is the wait result of a task whose object was
	// deleted while it was blocked on it.
	ErrDeleted = errors.New("rtsync: object deleted")

	// ErrDeadlock is returned by Run when tasks are blocked and
	// nothing is left that could wake them.
	ErrDeadlock = errors.New("rtsync: all tasks are blocked")
)

// ContractViolation is the panic value raised when a kernel service
// is called from the wrong context, e.g. a task service from inside
// an interrupt handler. It is a bug in the caller, not a runtime
// condition, and is never returned as an error.
type ContractViolation struct {
	Op     string
	Reason string
}

func (v *ContractViolation) Error() string {
	return fmt.Sprintf("rtsync: %s: %s", v.Op, v.Reason)
}
