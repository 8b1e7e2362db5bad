package estimate

import (
	"fmt"
	"time"

	"github.com/example/trip-progress/internal/models"
)

// ByTime interpolates a completion percentage over the planned window,
// clamped to [0,100]. Deterministic, no side effects.
func ByTime(now, plannedDeparture, plannedArrival time.Time) float64 {
	if !now.After(plannedDeparture) {
		return 0
	}
	if !now.Before(plannedArrival) {
		return 100
	}
	window := plannedArrival.Sub(plannedDeparture)
	if window <= 0 {
		return 100
	}
	return clamp(100 * float64(now.Sub(plannedDeparture)) / float64(window))
}

// ByDistance converts distance traveled against total route distance into a
// percentage. A missing or non-positive total distance is an ErrInvalidRoute.
func ByDistance(traveledMeters, totalMeters float64) (float64, error) {
	if totalMeters <= 0 {
		return 0, fmt.Errorf("total distance %.1f: %w", totalMeters, models.ErrInvalidRoute)
	}
	if traveledMeters < 0 {
		traveledMeters = 0
	}
	return clamp(100 * traveledMeters / totalMeters), nil
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
