package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/trip-progress/internal/models"
)

// DistanceClient is the interface used by the resolver to look up route
// distances when a trip was created without one.
type DistanceClient interface {
	DistanceMeters(ctx context.Context, from, to models.Coord) (float64, error)
}

// Cache is a tiny in-memory cache for distance lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Resolver answers "how long is this trip's route" for distance-based
// progress estimation, falling back to an external routing engine when the
// trip itself carries no total distance.
type Resolver struct {
	Client DistanceClient // optional
	Cache  *Cache         // optional
}

// TotalDistance returns the route length in meters, or ErrInvalidRoute when
// nothing can supply one.
func (r *Resolver) TotalDistance(ctx context.Context, rt models.Route) (float64, error) {
	if rt.TotalDistanceMeters > 0 {
		return rt.TotalDistanceMeters, nil
	}
	if r == nil || r.Client == nil {
		return 0, fmt.Errorf("no distance client configured: %w", models.ErrInvalidRoute)
	}
	from, to := rt.Origin.Coord, rt.Destination.Coord
	if r.Cache != nil {
		if v, ok := r.Cache.Get(from, to); ok {
			return v, nil
		}
	}
	d, err := r.Client.DistanceMeters(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("route distance lookup: %w", models.ErrInvalidRoute)
	}
	if d <= 0 {
		return 0, fmt.Errorf("zero-length route: %w", models.ErrInvalidRoute)
	}
	if r.Cache != nil {
		r.Cache.Set(from, to, d)
	}
	return d, nil
}
