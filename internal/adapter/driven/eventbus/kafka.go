// Package eventbus publishes applied build upserts to a Kafka-compatible
// broker (Kafka or Redpanda) using franz-go.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EventPublisher = (*KafkaPublisher)(nil)

// BuildEvent is the JSON value of every record on the build topic.
type BuildEvent struct {
	EventID         string    `json:"event_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	BuildID         int64     `json:"build_id"`
	Tool            string    `json:"tool"`
	ExternalID      string    `json:"external_id"`
	Repo            string    `json:"repo"`
	Branch          string    `json:"branch,omitempty"`
	Status          string    `json:"status"`
	Conclusion      string    `json:"conclusion,omitempty"`
	StartedAt       *string   `json:"started_at,omitempty"`
	CompletedAt     *string   `json:"completed_at,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
	URL             string    `json:"url,omitempty"`
}

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces one record per applied upsert, keyed by
// tool/external_id so every observation of a build lands on one partition.
type KafkaPublisher struct {
	client producer
	topic  string
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// deliveryTimeout caps how long the client keeps retrying one record when
// brokers are unreachable.
const deliveryTimeout = 10 * time.Second

// NewKafkaPublisher connects a producer to the given seed brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return newKafkaPublisher(client, topic), nil
}

func newKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, now: time.Now}
}

// PublishBuild produces the event for b synchronously.
func (p *KafkaPublisher) PublishBuild(ctx context.Context, b model.Build, result model.UpsertResult) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.New("publisher is closed")
	}

	record, err := p.newRecord(b, result)
	if err != nil {
		return err
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce build event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) newRecord(b model.Build, result model.UpsertResult) (*kgo.Record, error) {
	event := BuildEvent{
		EventID:         uuid.NewString(),
		OccurredAt:      p.now().UTC(),
		BuildID:         result.ID,
		Tool:            string(b.Tool),
		ExternalID:      b.ExternalID,
		Repo:            b.Repo,
		Branch:          b.Branch,
		Status:          string(b.Status),
		Conclusion:      string(result.Conclusion),
		StartedAt:       formatTime(b.StartedAt),
		CompletedAt:     formatTime(b.CompletedAt),
		DurationSeconds: b.DurationSeconds,
		URL:             b.URL,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding build event: %w", err)
	}

	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(b.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, nil
}

// Close shuts the producer down. Records are produced synchronously so none
// are pending. It is safe to call more than once.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Close()
	return nil
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
