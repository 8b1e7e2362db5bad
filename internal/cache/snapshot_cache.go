package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-progress/internal/models"
)

// SnapshotCache keeps the latest authoritative snapshot per trip in Redis so
// read-heavy pollers do not have to touch primary storage.
type SnapshotCache struct {
	client *redis.Client
	prefix string
}

func NewSnapshotCache(addr, password, prefix string) *SnapshotCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if prefix == "" {
		prefix = "trip:snapshot:"
	}
	return &SnapshotCache{client: c, prefix: prefix}
}

func (s *SnapshotCache) key(tripID string) string { return s.prefix + tripID }

func (s *SnapshotCache) Set(ctx context.Context, snap models.Snapshot) error {
	return s.client.HSet(ctx, s.key(snap.TripID), map[string]interface{}{
		"status":            string(snap.Status),
		"progress":          strconv.FormatFloat(snap.Progress, 'f', -1, 64),
		"progress_method":   string(snap.ProgressMethod),
		"last_sequence":     strconv.Itoa(snap.LastSequence),
		"checkpoint_count":  strconv.Itoa(snap.CheckpointCount),
		"planned_departure": snap.PlannedDeparture.Format(time.RFC3339Nano),
		"planned_arrival":   snap.PlannedArrival.Format(time.RFC3339Nano),
		"last_updated":      snap.LastUpdated.Format(time.RFC3339Nano),
	}).Err()
}

func (s *SnapshotCache) Get(ctx context.Context, tripID string) (models.Snapshot, bool) {
	m, err := s.client.HGetAll(ctx, s.key(tripID)).Result()
	if err != nil || len(m) == 0 {
		return models.Snapshot{}, false
	}
	snap := models.Snapshot{
		TripID:         tripID,
		Status:         models.TripState(m["status"]),
		ProgressMethod: models.ProgressMethod(m["progress_method"]),
	}
	if v, ok := m["progress"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			snap.Progress = f
		}
	}
	if v, ok := m["last_sequence"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			snap.LastSequence = n
		}
	}
	if v, ok := m["checkpoint_count"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			snap.CheckpointCount = n
		}
	}
	if v, ok := m["planned_departure"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.PlannedDeparture = t
		}
	}
	if v, ok := m["planned_arrival"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.PlannedArrival = t
		}
	}
	if v, ok := m["last_updated"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.LastUpdated = t
		}
	}
	return snap, true
}

func (s *SnapshotCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SnapshotCache) Close() error { return s.client.Close() }
