package route

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-progress/internal/models"
)

type fakeClient struct {
	dist  float64
	err   error
	calls int
}

func (f *fakeClient) DistanceMeters(ctx context.Context, from, to models.Coord) (float64, error) {
	f.calls++
	return f.dist, f.err
}

func routeWith(total float64) models.Route {
	return models.Route{
		Origin:              models.Waypoint{Coord: models.Coord{Lat: 1, Lng: 1}},
		Destination:         models.Waypoint{Coord: models.Coord{Lat: 2, Lng: 2}},
		TotalDistanceMeters: total,
	}
}

func TestResolverPrefersTripDistance(t *testing.T) {
	f := &fakeClient{dist: 999}
	r := &Resolver{Client: f}
	d, err := r.TotalDistance(context.Background(), routeWith(5000))
	if err != nil {
		t.Fatal(err)
	}
	if d != 5000 || f.calls != 0 {
		t.Fatalf("expected trip's own distance, got %f (calls=%d)", d, f.calls)
	}
}

func TestResolverFallsBackToClientAndCaches(t *testing.T) {
	f := &fakeClient{dist: 75_000}
	r := &Resolver{Client: f, Cache: NewCache(time.Minute)}
	for i := 0; i < 3; i++ {
		d, err := r.TotalDistance(context.Background(), routeWith(0))
		if err != nil {
			t.Fatal(err)
		}
		if d != 75_000 {
			t.Fatalf("expected 75000, got %f", d)
		}
	}
	if f.calls != 1 {
		t.Fatalf("expected a single lookup, got %d", f.calls)
	}
}

func TestResolverErrors(t *testing.T) {
	var nilResolver *Resolver
	if _, err := nilResolver.TotalDistance(context.Background(), routeWith(0)); !errors.Is(err, models.ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}

	f := &fakeClient{err: errors.New("osrm down")}
	r := &Resolver{Client: f}
	if _, err := r.TotalDistance(context.Background(), routeWith(0)); !errors.Is(err, models.ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}
