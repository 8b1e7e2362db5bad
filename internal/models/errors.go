package models

import (
	"errors"
	"fmt"
)

// Sentinel errors let the transport layer map reconciliation failures to
// status codes without string matching.
var (
	ErrNotFound          = errors.New("trip not found")
	ErrInvalidState      = errors.New("trip is terminal and accepts no further checkpoints")
	ErrIllegalTransition = errors.New("illegal trip state transition")
	ErrInvalidLocation   = errors.New("gps location out of range")
	ErrInvalidRoute      = errors.New("route has no usable total distance")
	ErrInvalidPercentage = errors.New("percentage outside [0,100]")
	ErrConnectivity      = errors.New("reconciliation service unreachable")
)

// TransitionError records the rejected edge. errors.Is matches it against
// ErrIllegalTransition.
type TransitionError struct {
	From TripState
	To   TripState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
