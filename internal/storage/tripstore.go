package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/trip-progress/internal/models"
)

// TripStore defines persistence operations for trips and their checkpoint logs.
type TripStore interface {
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	// UpdateTrip persists the trip head (progress, status, method, lastUpdated).
	UpdateTrip(ctx context.Context, t *models.Trip) error
	// ApplyCheckpoint persists one accepted record together with the trip
	// head it produced. Both land or neither does.
	ApplyCheckpoint(ctx context.Context, t *models.Trip, rec models.CheckpointRecord) error
	// ActiveTripIDs lists trips in a non-terminal state, for the delay sweep.
	ActiveTripIDs(ctx context.Context) ([]string, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*models.Trip)}
}

func (m *MemoryStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trips[t.ID]; exists {
		return fmt.Errorf("trip %s already exists", t.ID)
	}
	m.trips[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, fmt.Errorf("trip %s: %w", id, models.ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *MemoryStore) UpdateTrip(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; !ok {
		return fmt.Errorf("trip %s: %w", t.ID, models.ErrNotFound)
	}
	// whole-trip swap keeps concurrent readers on a consistent copy
	m.trips[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) ApplyCheckpoint(ctx context.Context, t *models.Trip, rec models.CheckpointRecord) error {
	// the record travels inside the trip's checkpoint log; the whole-trip
	// swap makes head and log land together
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; !ok {
		return fmt.Errorf("trip %s: %w", t.ID, models.ErrNotFound)
	}
	m.trips[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) ActiveTripIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.trips))
	for id, t := range m.trips {
		if !t.Status.Terminal() {
			out = append(out, id)
		}
	}
	return out, nil
}
