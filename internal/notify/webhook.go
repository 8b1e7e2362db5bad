package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/trip-progress/internal/models"
)

// WebhookNotifier posts snapshots to an external collaborator (scheduling,
// mapping) as JSON.
type WebhookNotifier struct {
	Endpoint string
	Client   *http.Client
}

func NewWebhookNotifier(endpoint string) *WebhookNotifier {
	return &WebhookNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (n *WebhookNotifier) Publish(tripID string, snap models.Snapshot) error {
	b, _ := json.Marshal(map[string]interface{}{"trip_id": tripID, "snapshot": snap})
	resp, err := n.Client.Post(n.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a snapshot out to several notifiers, returning the first error
// after attempting all of them.
type Multi []Notifier

func (m Multi) Publish(tripID string, snap models.Snapshot) error {
	var first error
	for _, n := range m {
		if err := n.Publish(tripID, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}
