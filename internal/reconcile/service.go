package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/trip-progress/internal/estimate"
	"github.com/example/trip-progress/internal/geo"
	"github.com/example/trip-progress/internal/ingest"
	"github.com/example/trip-progress/internal/models"
	"github.com/example/trip-progress/internal/notify"
	"github.com/example/trip-progress/internal/observability"
	"github.com/example/trip-progress/internal/route"
	"github.com/example/trip-progress/internal/state"
	"github.com/example/trip-progress/internal/storage"
)

// SnapshotCache mirrors accepted snapshots into a fast read layer and serves
// them back when primary storage is unavailable.
type SnapshotCache interface {
	Set(ctx context.Context, snap models.Snapshot) error
	Get(ctx context.Context, tripID string) (models.Snapshot, bool)
}

// Service is the authoritative merge point for trip progress. Apply is
// serialized per trip id so sequence assignment and precedence rules are
// race-free; different trips proceed in parallel.
type Service struct {
	// optional collaborators, all best-effort on the write path
	Routes   *route.Resolver
	Producer *ingest.KafkaProducer
	Cache    SnapshotCache
	Notifier notify.Notifier

	store  storage.TripStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	applied  atomic.Int64
	rejected atomic.Int64
}

func NewService(store storage.TripStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(tripID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tripID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tripID] = l
	}
	return l
}

// Create registers a scheduled trip on behalf of the external scheduler.
func (s *Service) Create(ctx context.Context, t *models.Trip) (models.Snapshot, error) {
	if t.ID == "" {
		return models.Snapshot{}, fmt.Errorf("trip id required")
	}
	if t.Status == "" {
		t.Status = models.StateScheduled
	}
	if !t.Status.Initial() {
		return models.Snapshot{}, fmt.Errorf("trip must start in an initial state, got %s", t.Status)
	}
	if !t.PlannedArrival.After(t.PlannedDeparture) {
		return models.Snapshot{}, fmt.Errorf("planned arrival must follow planned departure")
	}
	t.Progress = 0
	t.ProgressMethod = models.MethodBackend
	t.Checkpoints = nil
	t.LastUpdated = s.now()
	if err := s.store.CreateTrip(ctx, t); err != nil {
		return models.Snapshot{}, err
	}
	return snapshotOf(t), nil
}

// Apply runs a checkpoint request through precedence, monotonicity and the
// state machine, appends the record and returns the new snapshot atomically.
func (s *Service) Apply(ctx context.Context, tripID string, req models.CheckpointRequest) (models.Snapshot, error) {
	l := s.lockFor(tripID)
	l.Lock()
	defer l.Unlock()

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if trip.Status.Terminal() {
		s.reject("terminal")
		return models.Snapshot{}, fmt.Errorf("trip %s is %s: %w", tripID, trip.Status, models.ErrInvalidState)
	}

	now := s.now()
	cand, ignored, err := s.candidate(ctx, trip, req, now)
	if err != nil {
		s.reject(reasonFor(err))
		return models.Snapshot{}, err
	}
	if ignored {
		// lower-precedence source; current snapshot stands, no sequence consumed
		return snapshotOf(trip), nil
	}

	// monotonicity: regressive readings are kept for audit but never move
	// progress backward
	if cand < trip.Progress {
		cand = trip.Progress
	}
	if cand > 100 {
		cand = 100
	}

	next, err := state.Step(trip.Status, s.targetStatus(trip, req, cand))
	if err != nil {
		s.reject("illegal_transition")
		return models.Snapshot{}, err
	}
	if next == models.StateCompleted {
		cand = 100
	}

	rec := models.CheckpointRecord{
		Sequence:          len(trip.Checkpoints) + 1,
		Source:            req.Source,
		GPS:               req.GPS,
		Manual:            req.Manual,
		ResultingProgress: cand,
		ResultingStatus:   next,
		Timestamp:         now,
	}
	completed := next == models.StateCompleted && trip.Status != models.StateCompleted

	trip.Checkpoints = append(trip.Checkpoints, rec)
	trip.Progress = cand
	trip.Status = next
	trip.ProgressMethod = methodFor(req.Source)
	trip.LastUpdated = now

	if err := s.store.ApplyCheckpoint(ctx, trip, rec); err != nil {
		return models.Snapshot{}, err
	}

	snap := snapshotOf(trip)
	s.applied.Add(1)
	observability.CheckpointsAccepted.WithLabelValues(string(req.Source)).Inc()
	if completed {
		observability.TripsCompleted.Inc()
	}
	s.fanout(ctx, tripID, rec, snap)
	return snap, nil
}

// candidate computes the percentage the incoming request argues for.
// ignored=true means the request lost on precedence and must not consume a
// sequence number.
func (s *Service) candidate(ctx context.Context, trip *models.Trip, req models.CheckpointRequest, now time.Time) (cand float64, ignored bool, err error) {
	switch req.Source {
	case models.SourceManual:
		if req.Manual == nil {
			return 0, false, fmt.Errorf("manual checkpoint without payload")
		}
		switch req.Manual.Action {
		case models.ActionStart:
			return 10, false, nil
		case models.ActionComplete:
			return 100, false, nil
		case models.ActionCancel:
			return trip.Progress, false, nil
		case models.ActionProgress:
			if req.Manual.Target == nil {
				return 0, false, fmt.Errorf("progress action without target: %w", models.ErrInvalidPercentage)
			}
			if *req.Manual.Target < 0 || *req.Manual.Target > 100 {
				return 0, false, fmt.Errorf("target %.2f: %w", *req.Manual.Target, models.ErrInvalidPercentage)
			}
			return *req.Manual.Target, false, nil
		default:
			return 0, false, fmt.Errorf("unknown manual action %q", req.Manual.Action)
		}

	case models.SourceGPS:
		if req.GPS == nil {
			return 0, false, fmt.Errorf("gps checkpoint without payload: %w", models.ErrInvalidLocation)
		}
		if !geo.ValidCoord(req.GPS.Lat, req.GPS.Lng) {
			return 0, false, fmt.Errorf("lat=%.4f lng=%.4f: %w", req.GPS.Lat, req.GPS.Lng, models.ErrInvalidLocation)
		}
		total, err := s.Routes.TotalDistance(ctx, trip.Route)
		if err != nil {
			return 0, false, err
		}
		points := append(trip.GPSHistory(), models.Coord{Lat: req.GPS.Lat, Lng: req.GPS.Lng})
		traveled := geo.CumulativeDistance(points)
		pct, err := estimate.ByDistance(traveled, total)
		return pct, false, err

	case models.SourceTimeBased:
		// once gps tracking starts it is trusted for the remainder of the
		// trip; time-based polls also never start a trip on their own, and
		// an operator's explicit progress target stands until a
		// higher-precedence source supersedes it
		if trip.HasGPSHistory() || trip.ManualOverride() {
			return 0, true, nil
		}
		if trip.Status != models.StateEnRoute && trip.Status != models.StateDelayed {
			return 0, true, nil
		}
		return estimate.ByTime(now, trip.PlannedDeparture, trip.PlannedArrival), false, nil

	default:
		return 0, false, fmt.Errorf("unknown checkpoint source %q", req.Source)
	}
}

func (s *Service) targetStatus(trip *models.Trip, req models.CheckpointRequest, cand float64) models.TripState {
	if req.Source == models.SourceManual {
		switch req.Manual.Action {
		case models.ActionCancel:
			return models.StateCancelled
		case models.ActionComplete:
			return models.StateCompleted
		case models.ActionStart:
			if trip.Status.Initial() {
				return models.StateEnRoute
			}
			return trip.Status
		}
	}
	if cand >= 100 {
		return models.StateCompleted
	}
	if req.Source == models.SourceGPS && trip.Status.Initial() {
		// first gps checkpoint begins the trip
		return models.StateEnRoute
	}
	if trip.Status == models.StateDelayed && cand > trip.Progress {
		// resumed progress lifts the delay flag
		return models.StateEnRoute
	}
	return trip.Status
}

// Snapshot returns the current authoritative view. Reads are safe alongside
// a pending Apply: the store hands out whole-trip copies. When primary
// storage is down the last mirrored snapshot is served instead; unknown
// trips still report ErrNotFound.
func (s *Service) Snapshot(ctx context.Context, tripID string) (models.Snapshot, error) {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		if s.Cache != nil && !errors.Is(err, models.ErrNotFound) {
			if snap, ok := s.Cache.Get(ctx, tripID); ok {
				s.logger.Warn("serving snapshot from cache, primary store unavailable", "trip_id", tripID, "error", err)
				return snap, nil
			}
		}
		return models.Snapshot{}, err
	}
	return snapshotOf(trip), nil
}

func (s *Service) fanout(ctx context.Context, tripID string, rec models.CheckpointRecord, snap models.Snapshot) {
	if s.Producer != nil {
		if err := s.Producer.PublishCheckpoint(tripID, rec, snap); err != nil {
			s.logger.Warn("kafka publish failed", "trip_id", tripID, "error", err)
		}
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, snap); err != nil {
			s.logger.Warn("snapshot cache update failed", "trip_id", tripID, "error", err)
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.Publish(tripID, snap); err != nil {
			s.logger.Warn("snapshot notify failed", "trip_id", tripID, "error", err)
		}
	}
}

func (s *Service) reject(reason string) {
	s.rejected.Add(1)
	observability.CheckpointsRejected.WithLabelValues(reason).Inc()
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidLocation):
		return "invalid_location"
	case errors.Is(err, models.ErrInvalidRoute):
		return "invalid_route"
	case errors.Is(err, models.ErrInvalidPercentage):
		return "invalid_percentage"
	default:
		return "invalid_request"
	}
}

func methodFor(src models.CheckpointSource) models.ProgressMethod {
	switch src {
	case models.SourceManual:
		return models.MethodManual
	case models.SourceGPS:
		return models.MethodGPS
	default:
		return models.MethodTimeBased
	}
}

func snapshotOf(t *models.Trip) models.Snapshot {
	last := 0
	if n := len(t.Checkpoints); n > 0 {
		last = t.Checkpoints[n-1].Sequence
	}
	return models.Snapshot{
		TripID:           t.ID,
		Status:           t.Status,
		Progress:         t.Progress,
		ProgressMethod:   t.ProgressMethod,
		LastSequence:     last,
		CheckpointCount:  len(t.Checkpoints),
		PlannedDeparture: t.PlannedDeparture,
		PlannedArrival:   t.PlannedArrival,
		LastUpdated:      t.LastUpdated,
	}
}
