package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"account-trust-gate/internal/monitor/domain"
)

// KafkaNotifier implements Notifier using segmentio/kafka-go.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier creates a Kafka notifier that publishes alerts to the given
// topic. Returns (nil, nil) when brokers or topic are empty so the caller can
// fall back to Noop. Call Close when shutting down.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaNotifier{writer: writer, topic: topic}, nil
}

type alertMessage struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Severity      string            `json:"severity"`
	Identity      string            `json:"identity"`
	SourceAddress string            `json:"source_address,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Details       map[string]string `json:"details,omitempty"`
}

// Notify serializes the alert as JSON and writes it to the topic, keyed by
// identity so alerts for one account stay ordered. A short timeout keeps slow
// brokers from stalling the caller.
func (n *KafkaNotifier) Notify(ctx context.Context, alert *domain.Alert) error {
	if n == nil || n.writer == nil || alert == nil {
		return nil
	}
	payload, err := json.Marshal(alertMessage{
		ID:            alert.ID,
		Type:          string(alert.Type),
		Severity:      string(alert.Severity),
		Identity:      alert.Identity,
		SourceAddress: alert.SourceAddress,
		Timestamp:     alert.Timestamp,
		Details:       alert.Details,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(alert.Identity),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
