package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-progress/internal/models"
	"github.com/example/trip-progress/internal/notify"
	"github.com/example/trip-progress/internal/reconcile"
)

type Server struct {
	Reconciler *reconcile.Service
	WSReg      *notify.WSRegistry

	logger   *slog.Logger
	validate *validator.Validate
	mux      *mux.Router
	started  time.Time
}

func NewServer(svc *reconcile.Service, wsreg *notify.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Reconciler: svc,
		WSReg:      wsreg,
		logger:     logger,
		validate:   validator.New(),
		mux:        mux.NewRouter(),
		started:    time.Now(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	// the metrics probe must be registered before the {id} routes so it is
	// not captured as a trip id
	s.mux.HandleFunc("/trips/real-time-metrics", s.handleRealTimeMetrics).Methods("GET")
	s.mux.HandleFunc("/trips", s.handleCreateTrip).Methods("POST")
	s.mux.HandleFunc("/trips/{id}", s.handleGetTrip).Methods("GET")
	s.mux.HandleFunc("/trips/{id}/progress", s.handleManualProgress).Methods("POST")
	s.mux.HandleFunc("/trips/{id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/trips/{id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/trips/{id}/location", s.handleLocation).Methods("PATCH")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/trips/{trip_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createTripRequest struct {
	ID                  string    `json:"id"`
	PlannedDeparture    time.Time `json:"planned_departure" validate:"required"`
	PlannedArrival      time.Time `json:"planned_arrival" validate:"required"`
	OriginName          string    `json:"origin_name"`
	OriginLat           float64   `json:"origin_lat" validate:"gte=-90,lte=90"`
	OriginLng           float64   `json:"origin_lng" validate:"gte=-180,lte=180"`
	DestinationName     string    `json:"destination_name"`
	DestinationLat      float64   `json:"destination_lat" validate:"gte=-90,lte=90"`
	DestinationLng      float64   `json:"destination_lng" validate:"gte=-180,lte=180"`
	TotalDistanceMeters float64   `json:"total_distance_meters" validate:"gte=0"`
	Pending             bool      `json:"pending"` // entry state pendiente instead of programado
}

type progressRequest struct {
	Percentage   float64 `json:"percentage" validate:"gte=0,lte=100"`
	Observations string  `json:"observations"`
}

type observationsRequest struct {
	Observations string `json:"observations"`
}

type locationRequest struct {
	Lat      float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lng      float64  `json:"lng" validate:"gte=-180,lte=180"`
	SpeedKmh *float64 `json:"velocidad,omitempty"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = newID()
	}
	status := models.StateScheduled
	if req.Pending {
		status = models.StatePending
	}
	trip := &models.Trip{
		ID:               req.ID,
		Status:           status,
		PlannedDeparture: req.PlannedDeparture,
		PlannedArrival:   req.PlannedArrival,
		Route: models.Route{
			Origin:              models.Waypoint{Name: req.OriginName, Coord: models.Coord{Lat: req.OriginLat, Lng: req.OriginLng}},
			Destination:         models.Waypoint{Name: req.DestinationName, Coord: models.Coord{Lat: req.DestinationLat, Lng: req.DestinationLng}},
			TotalDistanceMeters: req.TotalDistanceMeters,
		},
	}
	snap, err := s.Reconciler.Create(r.Context(), trip)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, snap)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.Reconciler.Snapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snap)
}

func (s *Server) handleManualProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req progressRequest
	if !s.decode(w, r, &req) {
		return
	}
	pct := req.Percentage
	snap, err := s.Reconciler.Apply(r.Context(), id, models.CheckpointRequest{
		Source: models.SourceManual,
		Manual: &models.ManualPayload{Action: models.ActionProgress, Target: &pct, Observations: req.Observations},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snap)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req observationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.Reconciler.Apply(r.Context(), id, models.CheckpointRequest{
		Source: models.SourceManual,
		Manual: &models.ManualPayload{Action: models.ActionComplete, Observations: req.Observations},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req observationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.Reconciler.Apply(r.Context(), id, models.CheckpointRequest{
		Source: models.SourceManual,
		Manual: &models.ManualPayload{Action: models.ActionCancel, Observations: req.Observations},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snap)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req locationRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.Reconciler.Apply(r.Context(), id, models.CheckpointRequest{
		Source: models.SourceGPS,
		GPS:    &models.GPSPayload{Lat: req.Lat, Lng: req.Lng, SpeedKmh: req.SpeedKmh},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]any{"progreso": snap.Progress, "status": snap.Status, "snapshot": snap})
}

func (s *Server) handleRealTimeMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Reconciler.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"stats":          stats,
	})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.WSReg == nil {
		http.Error(w, "websocket streaming disabled", http.StatusNotImplemented)
		return
	}
	vars := mux.Vars(r)
	id := vars["trip_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

// envelope is the {success, data|message} shape shared by all endpoints.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrIllegalTransition):
		s.writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidLocation), errors.Is(err, models.ErrInvalidRoute), errors.Is(err, models.ErrInvalidPercentage):
		s.writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
