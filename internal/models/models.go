package models

import "time"

// TripState is the lifecycle state of a trip. The wire values keep the
// Spanish names used by the fleet backend.
type TripState string

const (
	StateScheduled TripState = "programado"
	StatePending   TripState = "pendiente"
	StateEnRoute   TripState = "en_curso"
	StateDelayed   TripState = "retrasado"
	StateCompleted TripState = "completado"
	StateCancelled TripState = "cancelado"
)

// Initial reports whether s is a valid entry state for a new trip.
func (s TripState) Initial() bool {
	return s == StateScheduled || s == StatePending
}

// Terminal reports whether the trip accepts no further checkpoints.
func (s TripState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// ProgressMethod tags which source last determined the authoritative progress.
type ProgressMethod string

const (
	MethodTimeBased ProgressMethod = "time_based"
	MethodGPS       ProgressMethod = "gps_tracking"
	MethodManual    ProgressMethod = "manual"
	MethodBackend   ProgressMethod = "backend_calculated"
)

// CheckpointSource identifies who produced a checkpoint request.
type CheckpointSource string

const (
	SourceManual    CheckpointSource = "manual"
	SourceGPS       CheckpointSource = "gps"
	SourceTimeBased CheckpointSource = "time_based"
)

// ManualAction is an operator intervention carried by a manual checkpoint.
type ManualAction string

const (
	ActionStart    ManualAction = "start"
	ActionProgress ManualAction = "progress"
	ActionComplete ManualAction = "complete"
	ActionCancel   ManualAction = "cancel"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Waypoint is an origin/destination descriptor.
type Waypoint struct {
	Name  string `json:"name"`
	Coord Coord  `json:"coord"`
}

// Route is immutable once the trip starts. TotalDistanceMeters of 0 means
// unknown; GPS-based estimation then needs an external distance resolver.
type Route struct {
	Origin              Waypoint `json:"origin"`
	Destination         Waypoint `json:"destination"`
	TotalDistanceMeters float64  `json:"total_distance_meters"`
}

// GPSPayload is the body of a gps checkpoint.
type GPSPayload struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	SpeedKmh *float64 `json:"velocidad,omitempty"`
}

// ManualPayload is the body of a manual checkpoint.
type ManualPayload struct {
	Action       ManualAction `json:"action"`
	Target       *float64     `json:"target,omitempty"` // explicit percentage for ActionProgress
	Observations string       `json:"observations,omitempty"`
}

// CheckpointRecord is an immutable fact once appended. Sequence is assigned
// by the reconciliation service at acceptance time and strictly increases by
// one per accepted record.
type CheckpointRecord struct {
	Sequence          int              `json:"sequence"`
	Source            CheckpointSource `json:"source"`
	GPS               *GPSPayload      `json:"gps,omitempty"`
	Manual            *ManualPayload   `json:"manual,omitempty"`
	ResultingProgress float64          `json:"resulting_progress"`
	ResultingStatus   TripState        `json:"resulting_status"`
	Timestamp         time.Time        `json:"timestamp"` // server receipt time
}

// Trip is the entity under tracking. It is mutated exclusively through the
// reconciliation service and becomes immutable once terminal.
type Trip struct {
	ID               string             `json:"id"`
	Status           TripState          `json:"status"`
	PlannedDeparture time.Time          `json:"planned_departure"`
	PlannedArrival   time.Time          `json:"planned_arrival"`
	Route            Route              `json:"route"`
	Progress         float64            `json:"progress"`
	ProgressMethod   ProgressMethod     `json:"progress_method"`
	Checkpoints      []CheckpointRecord `json:"checkpoints"`
	LastUpdated      time.Time          `json:"last_updated"`
}

// GPSHistory returns the coordinates of all gps checkpoints in sequence order.
func (t *Trip) GPSHistory() []Coord {
	var out []Coord
	for _, c := range t.Checkpoints {
		if c.Source == SourceGPS && c.GPS != nil {
			out = append(out, Coord{Lat: c.GPS.Lat, Lng: c.GPS.Lng})
		}
	}
	return out
}

// HasGPSHistory reports whether at least one gps checkpoint was accepted.
// Once true, gps estimates are trusted over the time-based fallback for the
// remainder of the trip.
func (t *Trip) HasGPSHistory() bool {
	for _, c := range t.Checkpoints {
		if c.Source == SourceGPS {
			return true
		}
	}
	return false
}

// ManualOverride reports whether the most recent checkpoint pinned progress
// to an explicit operator target. While it stands, time-based polls must not
// recompute progress over the pinned value.
func (t *Trip) ManualOverride() bool {
	n := len(t.Checkpoints)
	if n == 0 {
		return false
	}
	last := t.Checkpoints[n-1]
	return last.Source == SourceManual && last.Manual != nil && last.Manual.Action == ActionProgress
}

// Clone returns a deep copy so callers never alias the stored checkpoint log.
func (t *Trip) Clone() *Trip {
	cp := *t
	cp.Checkpoints = make([]CheckpointRecord, len(t.Checkpoints))
	copy(cp.Checkpoints, t.Checkpoints)
	return &cp
}

// CheckpointRequest is the input to ReconciliationService.Apply. Exactly one
// payload matching Source must be set.
type CheckpointRequest struct {
	Source CheckpointSource `json:"source"`
	GPS    *GPSPayload      `json:"gps,omitempty"`
	Manual *ManualPayload   `json:"manual,omitempty"`
}

// Snapshot is the current authoritative view of a trip, returned atomically
// from the reconciliation service.
type Snapshot struct {
	TripID           string         `json:"trip_id"`
	Status           TripState      `json:"status"`
	Progress         float64        `json:"progreso"`
	ProgressMethod   ProgressMethod `json:"progress_method"`
	LastSequence     int            `json:"last_sequence"`
	CheckpointCount  int            `json:"checkpoint_count"`
	PlannedDeparture time.Time      `json:"planned_departure"`
	PlannedArrival   time.Time      `json:"planned_arrival"`
	LastUpdated      time.Time      `json:"last_updated"`
}
