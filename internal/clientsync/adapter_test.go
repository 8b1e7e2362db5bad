package clientsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-progress/internal/models"
)

var (
	dep = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	arr = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

// fakeAPI implements API for tests; failNext controls how many calls fail.
type fakeAPI struct {
	snap     models.Snapshot
	failNext int
	fetches  int
	actions  int
}

func (f *fakeAPI) fail() bool {
	if f.failNext > 0 {
		f.failNext--
		return true
	}
	return false
}

func (f *fakeAPI) FetchSnapshot(ctx context.Context, tripID string) (models.Snapshot, error) {
	f.fetches++
	if f.fail() {
		return models.Snapshot{}, errors.New("connection refused")
	}
	return f.snap, nil
}

func (f *fakeAPI) SendManualAction(ctx context.Context, tripID string, action models.ManualAction, target *float64, observations string) (models.Snapshot, error) {
	f.actions++
	if f.fail() {
		return models.Snapshot{}, errors.New("connection refused")
	}
	out := f.snap
	out.ProgressMethod = models.MethodManual
	if target != nil {
		out.Progress = *target
	}
	f.snap = out
	return out, nil
}

func (f *fakeAPI) SendLocation(ctx context.Context, tripID string, lat, lng float64, speedKmh *float64) (models.Snapshot, error) {
	if f.fail() {
		return models.Snapshot{}, errors.New("connection refused")
	}
	return f.snap, nil
}

func (f *fakeAPI) Ping(ctx context.Context) error {
	if f.fail() {
		return errors.New("connection refused")
	}
	return nil
}

func baseSnap() models.Snapshot {
	return models.Snapshot{
		TripID:           "t1",
		Status:           models.StateEnRoute,
		Progress:         40,
		ProgressMethod:   models.MethodGPS,
		PlannedDeparture: dep,
		PlannedArrival:   arr,
	}
}

func TestConnectedView(t *testing.T) {
	api := &fakeAPI{snap: baseSnap()}
	a := NewAdapter(api, "t1", WithClock(func() time.Time { return dep.Add(time.Hour) }))
	a.PollOnce(context.Background())

	v := a.Current()
	if !v.Connected || v.Simulated {
		t.Fatalf("expected connected authoritative view, got %+v", v)
	}
	if v.Snapshot.Progress != 40 {
		t.Fatalf("expected 40, got %f", v.Snapshot.Progress)
	}
}

func TestDegradedModeSimulatesForward(t *testing.T) {
	api := &fakeAPI{snap: baseSnap()}
	now := dep.Add(30 * time.Minute) // authoritative 40% is ahead of the clock
	a := NewAdapter(api, "t1", WithClock(func() time.Time { return now }))
	a.PollOnce(context.Background())

	// three consecutive poll failures
	api.failNext = 3
	for i := 0; i < 3; i++ {
		a.PollOnce(context.Background())
	}
	v := a.Current()
	if v.Connected {
		t.Fatal("expected degraded mode")
	}
	if v.ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 failures, got %d", v.ConsecutiveFailures)
	}
	if !v.Simulated {
		t.Fatal("degraded view must be tagged simulated")
	}
	// local simulation never goes below the last authoritative value
	if v.Snapshot.Progress < 40 {
		t.Fatalf("simulated %f below authoritative 40", v.Snapshot.Progress)
	}

	// clock advances past the midpoint: simulation moves forward
	now = dep.Add(90 * time.Minute)
	v = a.Current()
	if v.Snapshot.Progress != 75 {
		t.Fatalf("expected 75, got %f", v.Snapshot.Progress)
	}
}

func TestReconnectReplacesSimulationWholesale(t *testing.T) {
	api := &fakeAPI{snap: baseSnap()}
	a := NewAdapter(api, "t1", WithClock(func() time.Time { return arr.Add(-time.Minute) }))
	a.PollOnce(context.Background())

	api.failNext = 2
	a.PollOnce(context.Background())
	a.PollOnce(context.Background())
	if v := a.Current(); !v.Simulated || v.Snapshot.Progress <= 40 {
		t.Fatalf("expected advanced simulation, got %+v", v)
	}

	// server recovered with authoritative 55%: it wins even though the local
	// simulation had raced ahead
	api.snap.Progress = 55
	a.PollOnce(context.Background())
	v := a.Current()
	if !v.Connected || v.Simulated {
		t.Fatalf("expected authoritative view after reconnect, got %+v", v)
	}
	if v.Snapshot.Progress != 55 {
		t.Fatalf("expected server truth 55, got %f", v.Snapshot.Progress)
	}
}

func TestManualActionWhileDegraded(t *testing.T) {
	api := &fakeAPI{snap: baseSnap(), failNext: 1}
	a := NewAdapter(api, "t1")
	a.PollOnce(context.Background())

	_, err := a.RequestManualAction(context.Background(), models.ActionComplete, nil, "")
	if !errors.Is(err, models.ErrConnectivity) {
		t.Fatalf("expected ErrConnectivity, got %v", err)
	}
	if api.actions != 0 {
		t.Fatal("degraded adapter must not call the API")
	}
}

func TestManualActionOptimisticUpdate(t *testing.T) {
	api := &fakeAPI{snap: baseSnap()}
	a := NewAdapter(api, "t1", WithClock(func() time.Time { return dep.Add(time.Hour) }))
	a.PollOnce(context.Background())

	target := 70.0
	snap, err := a.RequestManualAction(context.Background(), models.ActionProgress, &target, "ajuste")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Progress != 70 || snap.ProgressMethod != models.MethodManual {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	// cache reflects the action immediately, without waiting for a poll
	if v := a.Current(); v.Snapshot.Progress != 70 {
		t.Fatalf("expected optimistic 70, got %f", v.Snapshot.Progress)
	}
}

func TestNoSimulationForTerminalTrip(t *testing.T) {
	snap := baseSnap()
	snap.Status = models.StateCompleted
	snap.Progress = 100
	api := &fakeAPI{snap: snap}
	a := NewAdapter(api, "t1", WithClock(func() time.Time { return arr.Add(time.Hour) }))
	a.PollOnce(context.Background())

	api.failNext = 1
	a.PollOnce(context.Background())
	v := a.Current()
	if v.Simulated {
		t.Fatal("terminal trips must not be simulated")
	}
	if v.Snapshot.Progress != 100 {
		t.Fatalf("expected frozen 100, got %f", v.Snapshot.Progress)
	}
}
