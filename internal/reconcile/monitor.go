package reconcile

import (
	"context"
	"time"

	"github.com/example/trip-progress/internal/models"
	"github.com/example/trip-progress/internal/observability"
	"github.com/example/trip-progress/internal/state"
)

// SweepDelays flips en_curso trips whose planned arrival has passed while
// progress sits below 100 into retrasado. The flip is a monitoring condition,
// not a checkpoint: no sequence number is consumed. Returns the number of
// trips flipped.
func (s *Service) SweepDelays(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.ActiveTripIDs(ctx)
	if err != nil {
		return 0, err
	}
	flipped := 0
	for _, id := range ids {
		l := s.lockFor(id)
		l.Lock()
		trip, err := s.store.GetTrip(ctx, id)
		if err != nil {
			l.Unlock()
			continue
		}
		if trip.Status == models.StateEnRoute && now.After(trip.PlannedArrival) && trip.Progress < 100 {
			next, err := state.Step(trip.Status, models.StateDelayed)
			if err == nil {
				trip.Status = next
				trip.LastUpdated = now
				if err := s.store.UpdateTrip(ctx, trip); err == nil {
					flipped++
					observability.TripsDelayed.Inc()
					s.logger.Info("trip marked delayed", "trip_id", id, "progress", trip.Progress)
					if s.Cache != nil {
						_ = s.Cache.Set(ctx, snapshotOf(trip))
					}
				}
			}
		}
		l.Unlock()
	}
	return flipped, nil
}

// MonitorDelays runs SweepDelays on a fixed interval until ctx is cancelled.
func (s *Service) MonitorDelays(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if _, err := s.SweepDelays(ctx, now); err != nil {
				s.logger.Warn("delay sweep failed", "error", err)
			}
		}
	}
}

// Stats feeds the real-time-metrics probe.
type Stats struct {
	ActiveTrips         int   `json:"active_trips"`
	CheckpointsApplied  int64 `json:"checkpoints_applied"`
	CheckpointsRejected int64 `json:"checkpoints_rejected"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ids, err := s.store.ActiveTripIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ActiveTrips:         len(ids),
		CheckpointsApplied:  s.applied.Load(),
		CheckpointsRejected: s.rejected.Load(),
	}, nil
}
