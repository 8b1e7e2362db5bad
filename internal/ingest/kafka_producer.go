package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/trip-progress/internal/models"
)

// CheckpointEvent is the wire shape published for every accepted checkpoint.
// Downstream consumers mirror the snapshot into the Redis cache.
type CheckpointEvent struct {
	TripID   string                  `json:"trip_id"`
	Record   models.CheckpointRecord `json:"record"`
	Snapshot models.Snapshot         `json:"snapshot"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishCheckpoint(tripID string, rec models.CheckpointRecord, snap models.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(CheckpointEvent{TripID: tripID, Record: rec, Snapshot: snap})
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(tripID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
