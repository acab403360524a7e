package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/infra/config"
	"github.com/carehub/clinic-api/internal/usecase"
)

const (
	defaultMaxEventLag = 5 * time.Second
	consumerRetryDelay = 2 * time.Second
)

// RevocationApplier mirrors a peer's revocation event into the local store.
type RevocationApplier interface {
	ApplyEvent(ctx context.Context, event domain.RevocationEvent) error
}

// RevocationConsumerOptions tunes lag reporting.
type RevocationConsumerOptions struct {
	MaxEventLag time.Duration
}

// RevocationConsumer applies revocation events published by other instances.
type RevocationConsumer struct {
	applier     RevocationApplier
	logger      *zap.Logger
	maxEventLag time.Duration
	now         func() time.Time
}

func NewRevocationConsumer(applier RevocationApplier, logger *zap.Logger, opts RevocationConsumerOptions) *RevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	consumer := &RevocationConsumer{
		applier:     applier,
		logger:      logger,
		maxEventLag: opts.MaxEventLag,
	}
	if consumer.maxEventLag <= 0 {
		consumer.maxEventLag = defaultMaxEventLag
	}
	consumer.now = func() time.Time { return time.Now().UTC() }
	return consumer
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *RevocationConsumer) WithClock(clock func() time.Time) *RevocationConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

// HandleMessage decodes a Kafka message prior to processing.
func (c *RevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	event, err := decodeEnvelope(msg.Value)
	if err != nil {
		return err
	}
	return c.HandleEvent(ctx, event)
}

// HandleEvent reports delivery lag and hands the event to the applier.
func (c *RevocationConsumer) HandleEvent(ctx context.Context, event domain.RevocationEvent) error {
	if c.applier == nil {
		return nil
	}

	if !event.OccurredAt.IsZero() {
		lag := c.now().Sub(event.OccurredAt)
		if lag > c.maxEventLag {
			c.logger.Warn("revocation event lag exceeds threshold",
				zap.Duration("lag", lag),
				zap.Duration("threshold", c.maxEventLag),
				zap.String("event_id", event.EventID),
			)
		}
	}

	if err := c.applier.ApplyEvent(ctx, event); err != nil {
		return fmt.Errorf("apply revocation event %s: %w", event.EventID, err)
	}
	return nil
}

// Setup is part of sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is part of sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim applies messages in partition order. Undecodable messages and events without a
// usable target are logged and skipped; other apply failures leave the offset unmarked so the
// event is redelivered after a rebalance.
func (c *RevocationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Error("revocation event not applied",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				if !isPoisonMessage(err) {
					return err
				}
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// isPoisonMessage reports failures that redelivery can never fix.
func isPoisonMessage(err error) bool {
	var decodeErr *decodeError
	return errors.As(err, &decodeErr) || errors.Is(err, usecase.ErrInvalidRevocationTarget)
}

// ConsumerGroup runs a RevocationConsumer against the revocation topic.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  *zap.Logger
}

// NewConsumerGroup joins a group unique to this instance so every instance sees every event.
func NewConsumerGroup(cfg config.KafkaSettings, instanceID string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (*ConsumerGroup, error) {
	saramaConfig := newSaramaConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	groupID := cfg.ConsumerGroup
	if instanceID != "" {
		groupID = groupID + "-" + instanceID
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	logger.Info("kafka consumer group initialized",
		zap.String("group_id", groupID),
		zap.String("topic", topicName(cfg.TopicPrefix, RevocationTopic)),
	)

	return &ConsumerGroup{
		group:   group,
		topic:   topicName(cfg.TopicPrefix, RevocationTopic),
		handler: handler,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining after each rebalance.
func (g *ConsumerGroup) Run(ctx context.Context) error {
	go func() {
		for err := range g.group.Errors() {
			g.logger.Warn("kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := g.group.Consume(ctx, []string{g.topic}, g.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			g.logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(consumerRetryDelay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (g *ConsumerGroup) Close() error {
	if err := g.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}

var _ sarama.ConsumerGroupHandler = (*RevocationConsumer)(nil)
