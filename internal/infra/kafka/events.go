package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	// RevocationTopic carries every revocation event kind so per-user ordering holds.
	RevocationTopic = "revocation.events"

	traceIDHeader = "trace_id"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Payload   domain.RevocationEvent `json:"payload"`
	Metadata  envelopeMetadata       `json:"metadata,omitempty"`
}

// PublishRevocation enqueues the event on the revocation topic keyed by user id.
func (p *EventPublisher) PublishRevocation(ctx context.Context, event domain.RevocationEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	var headers []sarama.RecordHeader
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID := sc.TraceID().String()
		metadata[traceIDHeader] = traceID
		headers = append(headers, sarama.RecordHeader{Key: []byte(traceIDHeader), Value: []byte(traceID)})
	}

	envelope := eventEnvelope{
		EventID:   event.EventID,
		EventType: string(event.Kind),
		UserID:    event.UserID,
		Timestamp: event.OccurredAt.UTC(),
		Version:   schemaVersion,
		Payload:   event,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:   p.producer.TopicName(RevocationTopic),
		Value:   sarama.ByteEncoder(bytes),
		Headers: headers,
	}
	if partitionKey := event.UserID; partitionKey != "" {
		message.Key = sarama.StringEncoder(partitionKey)
	} else if event.Key != "" {
		message.Key = sarama.StringEncoder(event.Key)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeEnvelope(raw []byte) (domain.RevocationEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.RevocationEvent{}, &decodeError{err: err}
	}
	event := envelope.Payload
	if event.EventID == "" {
		event.EventID = envelope.EventID
	}
	if event.Kind == "" {
		event.Kind = domain.RevocationEventKind(envelope.EventType)
	}
	return event, nil
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode revocation envelope: %v", e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

var _ port.EventPublisher = (*EventPublisher)(nil)
