package state

import "github.com/example/trip-progress/internal/models"

// legal holds the directed edges of the trip lifecycle. Delay entry/exit is
// driven by the monitoring sweep and resumed progress, not by a dedicated
// checkpoint type.
var legal = map[models.TripState][]models.TripState{
	models.StateScheduled: {models.StateEnRoute, models.StateCancelled},
	models.StatePending:   {models.StateEnRoute, models.StateCancelled},
	models.StateEnRoute:   {models.StateDelayed, models.StateCompleted, models.StateCancelled},
	models.StateDelayed:   {models.StateEnRoute, models.StateCompleted, models.StateCancelled},
	models.StateCompleted: nil,
	models.StateCancelled: nil,
}

// CanTransition reports whether the edge from -> to is legal. Staying put is
// always allowed.
func CanTransition(from, to models.TripState) bool {
	if from == to {
		return true
	}
	for _, next := range legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Step validates the edge and returns the resulting state, or a
// TransitionError that leaves the trip untouched.
func Step(from, to models.TripState) (models.TripState, error) {
	if !CanTransition(from, to) {
		return from, &models.TransitionError{From: from, To: to}
	}
	return to, nil
}
