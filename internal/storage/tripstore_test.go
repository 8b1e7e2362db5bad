package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-progress/internal/models"
)

func sampleTrip(id string) *models.Trip {
	return &models.Trip{
		ID:               id,
		Status:           models.StateScheduled,
		PlannedDeparture: time.Now(),
		PlannedArrival:   time.Now().Add(2 * time.Hour),
		LastUpdated:      time.Now(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.CreateTrip(ctx, sampleTrip("a")); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateTrip(ctx, sampleTrip("a")); err == nil {
		t.Fatal("duplicate create must fail")
	}

	got, err := m.GetTrip(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	// returned copies never alias the stored trip
	got.Status = models.StateCancelled
	got.Checkpoints = append(got.Checkpoints, models.CheckpointRecord{Sequence: 1})
	fresh, err := m.GetTrip(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Status != models.StateScheduled || len(fresh.Checkpoints) != 0 {
		t.Fatal("store handed out an aliased trip")
	}

	if _, err := m.GetTrip(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateTrip(ctx, sampleTrip("missing")); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreApplyCheckpoint(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.CreateTrip(ctx, sampleTrip("a")); err != nil {
		t.Fatal(err)
	}
	trip, err := m.GetTrip(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	rec := models.CheckpointRecord{Sequence: 1, Source: models.SourceManual, ResultingProgress: 10, ResultingStatus: models.StateEnRoute}
	trip.Checkpoints = append(trip.Checkpoints, rec)
	trip.Progress = 10
	trip.Status = models.StateEnRoute
	if err := m.ApplyCheckpoint(ctx, trip, rec); err != nil {
		t.Fatal(err)
	}

	// head and log land together
	got, err := m.GetTrip(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 10 || got.Status != models.StateEnRoute {
		t.Fatalf("head not updated: %+v", got)
	}
	if len(got.Checkpoints) != 1 || got.Checkpoints[0].Sequence != 1 {
		t.Fatalf("log not updated: %+v", got.Checkpoints)
	}

	missing := sampleTrip("missing")
	if err := m.ApplyCheckpoint(ctx, missing, rec); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreActiveTripIDs(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	running := sampleTrip("running")
	running.Status = models.StateEnRoute
	done := sampleTrip("done")
	done.Status = models.StateCompleted
	if err := m.CreateTrip(ctx, running); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateTrip(ctx, done); err != nil {
		t.Fatal(err)
	}

	ids, err := m.ActiveTripIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "running" {
		t.Fatalf("expected [running], got %v", ids)
	}
}
