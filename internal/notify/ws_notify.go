package notify

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trip-progress/internal/models"
)

// Notifier pushes authoritative snapshots to interested parties. Delivery is
// best-effort; reconciliation never depends on it.
type Notifier interface {
	Publish(tripID string, snap models.Snapshot) error
}

// WSSession represents one connected snapshot subscriber.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(snap)
}

// WSRegistry holds snapshot subscriber sessions per trip.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string][]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string][]*WSSession)} }

func (r *WSRegistry) Add(tripID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[tripID] = append(r.sessions[tripID], &WSSession{conn: conn})
}

// Publish sends the snapshot to every subscriber of the trip, dropping
// sessions whose connection has gone away.
func (r *WSRegistry) Publish(tripID string, snap models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alive := r.sessions[tripID][:0]
	for _, s := range r.sessions[tripID] {
		if err := s.Send(snap); err != nil {
			log.Printf("ws send error for trip %s: %v", tripID, err)
			_ = s.conn.Close()
			continue
		}
		alive = append(alive, s)
	}
	r.sessions[tripID] = alive
	return nil
}
