package notary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/musicamatics/queueskip/internal/platform/config"
)

// KafkaRecorder publishes notarization events to a Kafka topic. The receipt
// id is minted locally and embedded in the record so downstream consumers can
// correlate; delivery is synchronous from the queue worker's perspective, but
// the worker itself is already off the request path.
type KafkaRecorder struct {
	client *kgo.Client
	topic  string
}

// NewKafkaRecorder connects to the configured brokers. Returns nil when no
// brokers are configured.
func NewKafkaRecorder(cfg config.KafkaConfig) (*KafkaRecorder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaRecorder{client: client, topic: cfg.Topic}, nil
}

type kafkaEnvelope struct {
	ReceiptID string `json:"receiptId"`
	Kind      string `json:"kind"`
	PassID    string `json:"passId"`
	RecordID  string `json:"recordId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (r *KafkaRecorder) Notarize(ctx context.Context, event Event) (string, error) {
	receiptID := uuid.NewString()
	payload, err := json.Marshal(kafkaEnvelope{
		ReceiptID: receiptID,
		Kind:      string(event.Kind),
		PassID:    event.PassID.String(),
		RecordID:  event.RecordID,
		Timestamp: event.Timestamp.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal notary event: %w", err)
	}

	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(event.PassID.String()),
		Value: payload,
	}
	if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("produce notary event: %w", err)
	}
	return receiptID, nil
}

// Close flushes and releases the Kafka client.
func (r *KafkaRecorder) Close() {
	r.client.Close()
}
