package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/repository/memory"
	"github.com/carehub/clinic-api/internal/usecase"
)

type recordingApplier struct {
	events []domain.RevocationEvent
	err    error
}

func (r *recordingApplier) ApplyEvent(_ context.Context, event domain.RevocationEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type fakeGroupSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeGroupSession) Claims() map[string][]int32 { return nil }
func (s *fakeGroupSession) MemberID() string { return "member" }
func (s *fakeGroupSession) GenerationID() int32 { return 1 }
func (s *fakeGroupSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeGroupSession) Commit() {}
func (s *fakeGroupSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeGroupSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}
func (s *fakeGroupSession) Context() context.Context { return s.ctx }

type fakeGroupClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeGroupClaim) Topic() string { return "clinic.revocation.events" }
func (c *fakeGroupClaim) Partition() int32 { return 0 }
func (c *fakeGroupClaim) InitialOffset() int64 { return 0 }
func (c *fakeGroupClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeGroupClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func encodeEvent(t *testing.T, event domain.RevocationEvent) []byte {
	t.Helper()
	bytes, err := json.Marshal(eventEnvelope{
		EventID:   event.EventID,
		EventType: string(event.Kind),
		UserID:    event.UserID,
		Timestamp: event.OccurredAt,
		Version:   schemaVersion,
		Payload:   event,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return bytes
}

func TestRevocationConsumerHandleMessage(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	applier := &recordingApplier{}
	consumer := NewRevocationConsumer(applier, zaptest.NewLogger(t), RevocationConsumerOptions{})
	consumer.WithClock(func() time.Time { return base.Add(time.Minute) })

	event := domain.RevocationEvent{
		EventID:    "evt-1",
		Kind:       domain.RevocationEventSessionRevoked,
		Key:        "abc123",
		SessionID:  "abc123",
		Reason:     domain.RevocationReasonSecurityLogout,
		OccurredAt: base,
		ExpiresAt:  base.Add(time.Hour),
		Origin:     "node-b",
	}

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: encodeEvent(t, event)}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(applier.events) != 1 || applier.events[0].Key != "abc123" || applier.events[0].Origin != "node-b" {
		t.Fatalf("unexpected applied events: %+v", applier.events)
	}

	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatalf("expected nil message to be rejected")
	}
}

func TestRevocationConsumerConsumeClaim(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	applier := &recordingApplier{}
	consumer := NewRevocationConsumer(applier, zaptest.NewLogger(t), RevocationConsumerOptions{})

	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("{not json")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: encodeEvent(t, domain.RevocationEvent{
		EventID:    "evt-2",
		Kind:       domain.RevocationEventUserSessionsRevoked,
		Key:        domain.UserWildcardKey("42"),
		UserID:     "42",
		Reason:     domain.RevocationReasonDemoted,
		OccurredAt: base,
		ExpiresAt:  base.Add(time.Hour),
	})}
	close(claim.messages)

	session := &fakeGroupSession{ctx: context.Background()}
	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}

	if len(session.marked) != 2 {
		t.Fatalf("expected poison and valid message to be marked, got %v", session.marked)
	}
	if len(applier.events) != 1 || applier.events[0].UserID != "42" {
		t.Fatalf("unexpected applied events: %+v", applier.events)
	}
}

func TestRevocationConsumerConsumeClaimStopsOnApplyFailure(t *testing.T) {
	applier := &recordingApplier{err: errors.New("store down")}
	consumer := NewRevocationConsumer(applier, zaptest.NewLogger(t), RevocationConsumerOptions{})

	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 7, Value: encodeEvent(t, domain.RevocationEvent{
		EventID: "evt-3",
		Kind:    domain.RevocationEventSessionRevoked,
		Key:     "abc",
	})}

	session := &fakeGroupSession{ctx: context.Background()}
	if err := consumer.ConsumeClaim(session, claim); err == nil {
		t.Fatalf("expected apply failure to end the claim")
	}
	if len(session.marked) != 0 {
		t.Fatalf("expected failed message to stay unmarked, got %v", session.marked)
	}
}

func TestRevocationConsumerSkipsEventsWithoutTarget(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base }
	store := memory.NewRevocationStore(memory.RevocationStoreOptions{}).WithClock(clock)
	svc := usecase.NewRevocationService(store, zaptest.NewLogger(t), usecase.RevocationServiceOptions{
		EntryTTL:   time.Hour,
		InstanceID: "node-a",
	}).WithClock(clock)
	consumer := NewRevocationConsumer(svc, zaptest.NewLogger(t), RevocationConsumerOptions{}).WithClock(clock)

	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 10, Value: encodeEvent(t, domain.RevocationEvent{
		EventID: "evt-blank-user",
		Kind:    domain.RevocationEventUserReinstated,
		Origin:  "node-b",
	})}
	claim.messages <- &sarama.ConsumerMessage{Offset: 11, Value: encodeEvent(t, domain.RevocationEvent{
		EventID:   "evt-blank-key",
		Kind:      domain.RevocationEventSessionRevoked,
		ExpiresAt: base.Add(time.Hour),
		Origin:    "node-b",
	})}
	claim.messages <- &sarama.ConsumerMessage{Offset: 12, Value: encodeEvent(t, domain.RevocationEvent{
		EventID:    "evt-valid",
		Kind:       domain.RevocationEventSessionRevoked,
		Key:        "abc123",
		SessionID:  "abc123",
		Reason:     domain.RevocationReasonSecurityLogout,
		OccurredAt: base,
		ExpiresAt:  base.Add(time.Hour),
		Origin:     "node-b",
	})}
	close(claim.messages)

	session := &fakeGroupSession{ctx: context.Background()}
	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}

	if len(session.marked) != 3 || session.marked[0] != 10 || session.marked[2] != 12 {
		t.Fatalf("expected every message to be marked, got %v", session.marked)
	}
	revoked, err := svc.IsRevoked(context.Background(), "abc123", "")
	if err != nil || !revoked {
		t.Fatalf("expected valid event after bad ones to apply, got revoked=%v err=%v", revoked, err)
	}
}
