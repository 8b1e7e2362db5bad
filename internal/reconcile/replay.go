package reconcile

import "github.com/example/trip-progress/internal/models"

// Replay folds a trip's checkpoint log from zero and returns the progress and
// status it produces. For any trip the result must match the stored head;
// used by audits and tests to verify replay determinism.
func Replay(initial models.TripState, records []models.CheckpointRecord) (float64, models.TripState) {
	progress := 0.0
	status := initial
	for _, rec := range records {
		if rec.ResultingProgress > progress {
			progress = rec.ResultingProgress
		}
		status = rec.ResultingStatus
	}
	return progress, status
}
