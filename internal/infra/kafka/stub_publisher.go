package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishRevocation logs the event.
func (p *StubPublisher) PublishRevocation(_ context.Context, event domain.RevocationEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", string(event.Kind)),
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
		zap.String("reason", string(event.Reason)),
		zap.Time("timestamp", at.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
