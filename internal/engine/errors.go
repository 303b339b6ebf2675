package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// controller's or dispatcher's current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("controller is shut down")

	// ErrHardStop is recorded on the Result of an item abandoned by Stop.
	ErrHardStop = errors.New("lane terminated by hard stop")
)

type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// CleanError wraps a per-file failure. It only ever travels inside a crashed
// Result.
type CleanError struct {
	Input string
	Err   error
}

func (e *CleanError) Error() string {
	return fmt.Sprintf("clean %s: %v", e.Input, e.Err)
}

func (e *CleanError) Unwrap() error {
	return e.Err
}
