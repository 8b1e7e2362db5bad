package clientsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-progress/internal/estimate"
	"github.com/example/trip-progress/internal/models"
)

// View is what the adapter hands its consumer: the best-effort snapshot plus
// the connectivity state needed to interpret it. Simulated views are local
// time-based estimates and must never be confused with authoritative data.
type View struct {
	Snapshot            models.Snapshot
	Connected           bool
	Simulated           bool
	ConsecutiveFailures int
}

// Adapter polls the reconciliation service for one trip and degrades to
// local time-based estimation while the service is unreachable. Server truth
// always wins on reconnect: the next successful poll replaces any local
// simulation wholesale.
type Adapter struct {
	api      API
	tripID   string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	last      models.Snapshot
	haveSnap  bool
	connected bool
	failures  int

	stop     chan struct{}
	stopOnce sync.Once
}

type Option func(*Adapter)

func WithInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func NewAdapter(api API, tripID string, opts ...Option) *Adapter {
	a := &Adapter{
		api:      api,
		tripID:   tripID,
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run blocks, polling until ctx is cancelled or Close is called. An initial
// liveness probe decides whether to start connected or already degraded.
func (a *Adapter) Run(ctx context.Context) {
	if err := a.api.Ping(ctx); err != nil {
		a.recordFailure(err)
	} else {
		a.pollOnce(ctx)
	}

	tick := time.NewTicker(a.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-tick.C:
			a.pollOnce(ctx)
		}
	}
}

// PollOnce performs a single poll cycle; exposed so callers driving their own
// timer (or tests) can use the adapter without Run.
func (a *Adapter) PollOnce(ctx context.Context) {
	a.pollOnce(ctx)
}

func (a *Adapter) pollOnce(ctx context.Context) {
	snap, err := a.api.FetchSnapshot(ctx, a.tripID)
	if err != nil {
		a.recordFailure(err)
		return
	}
	a.mu.Lock()
	// authoritative snapshot replaces any local simulation wholesale
	a.last = snap
	a.haveSnap = true
	a.connected = true
	a.failures = 0
	a.mu.Unlock()
}

func (a *Adapter) recordFailure(err error) {
	a.mu.Lock()
	a.failures++
	wasConnected := a.connected
	a.connected = false
	failures := a.failures
	a.mu.Unlock()
	if wasConnected || failures == 1 {
		a.logger.Warn("poll failed, entering degraded mode", "trip_id", a.tripID, "error", err)
	}
}

// Current returns the freshest view. While degraded it runs the time-based
// estimator locally against the last known planned window so consumers still
// observe forward progress instead of a frozen value.
func (a *Adapter) Current() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := View{Snapshot: a.last, Connected: a.connected, ConsecutiveFailures: a.failures}
	if a.connected || !a.haveSnap || a.last.Status.Terminal() {
		return v
	}
	pct := estimate.ByTime(a.now(), a.last.PlannedDeparture, a.last.PlannedArrival)
	if pct < a.last.Progress {
		pct = a.last.Progress
	}
	v.Snapshot.Progress = pct
	v.Simulated = true
	return v
}

// RequestManualAction forwards an operator action when connected. While
// degraded it refuses with ErrConnectivity instead of dropping the action
// silently.
func (a *Adapter) RequestManualAction(ctx context.Context, action models.ManualAction, target *float64, observations string) (models.Snapshot, error) {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return models.Snapshot{}, fmt.Errorf("manual action %s while degraded: %w", action, models.ErrConnectivity)
	}
	snap, err := a.api.SendManualAction(ctx, a.tripID, action, target, observations)
	if err != nil {
		if !isDomainError(err) {
			a.recordFailure(err)
		}
		return models.Snapshot{}, err
	}
	a.optimisticUpdate(snap)
	return snap, nil
}

// ReportLocation forwards a GPS reading when connected, with the same
// degraded-mode refusal as manual actions.
func (a *Adapter) ReportLocation(ctx context.Context, lat, lng float64, speedKmh *float64) (models.Snapshot, error) {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return models.Snapshot{}, fmt.Errorf("location report while degraded: %w", models.ErrConnectivity)
	}
	snap, err := a.api.SendLocation(ctx, a.tripID, lat, lng, speedKmh)
	if err != nil {
		if !isDomainError(err) {
			a.recordFailure(err)
		}
		return models.Snapshot{}, err
	}
	a.optimisticUpdate(snap)
	return snap, nil
}

// optimisticUpdate refreshes the local cache immediately after a successful
// action; the next authoritative poll overwrites it if they disagree.
func (a *Adapter) optimisticUpdate(snap models.Snapshot) {
	a.mu.Lock()
	a.last = snap
	a.haveSnap = true
	a.connected = true
	a.failures = 0
	a.mu.Unlock()
}

// Close stops the polling loop; any in-flight request completes or times out
// naturally.
func (a *Adapter) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func isDomainError(err error) bool {
	for _, target := range []error{models.ErrNotFound, models.ErrInvalidState, models.ErrIllegalTransition, models.ErrInvalidLocation, models.ErrInvalidRoute, models.ErrInvalidPercentage} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
