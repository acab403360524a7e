package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/repository"
)

var (
	// ErrRevocationUnavailable indicates the revocation store failed or timed out.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
	// ErrInvalidRevocationTarget indicates a blank session or user identifier.
	ErrInvalidRevocationTarget = errors.New("revocation target is required")
)

const (
	defaultEntryTTL     = 24 * time.Hour
	defaultStoreTimeout = 250 * time.Millisecond

	checkOutcomeAllowed = "allowed"
	checkOutcomeRevoked = "revoked"
	checkOutcomeError   = "error"
)

// RevocationServiceOptions tunes expiry and store access bounds.
type RevocationServiceOptions struct {
	// EntryTTL is how long a blacklist entry lives; it should cover the longest token lifetime.
	EntryTTL time.Duration
	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration
	// InstanceID tags published events so the origin can ignore its own echoes.
	InstanceID string
}

// RevocationService owns session blacklisting, revocation checks and expiry sweeps.
type RevocationService struct {
	store        port.RevocationStore
	events       port.EventPublisher
	metrics      port.RevocationMetrics
	logger       *zap.Logger
	tracer       trace.Tracer
	entryTTL     time.Duration
	storeTimeout time.Duration
	instanceID   string
	now          func() time.Time
}

// NewRevocationService constructs a RevocationService over the supplied store.
func NewRevocationService(store port.RevocationStore, logger *zap.Logger, opts RevocationServiceOptions) *RevocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &RevocationService{
		store:        store,
		logger:       logger,
		tracer:       otel.Tracer("github.com/carehub/clinic-api/internal/usecase"),
		entryTTL:     opts.EntryTTL,
		storeTimeout: opts.StoreTimeout,
		instanceID:   strings.TrimSpace(opts.InstanceID),
	}
	if service.entryTTL <= 0 {
		service.entryTTL = defaultEntryTTL
	}
	if service.storeTimeout <= 0 {
		service.storeTimeout = defaultStoreTimeout
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RevocationService) WithClock(clock func() time.Time) *RevocationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithEventPublisher broadcasts administrative actions to peer instances.
func (s *RevocationService) WithEventPublisher(events port.EventPublisher) *RevocationService {
	s.events = events
	return s
}

// WithMetrics attaches telemetry hooks.
func (s *RevocationService) WithMetrics(metrics port.RevocationMetrics) *RevocationService {
	s.metrics = metrics
	return s
}

// EntryTTL reports the configured lifetime of new blacklist entries.
func (s *RevocationService) EntryTTL() time.Duration {
	return s.entryTTL
}

type blacklistOptions struct {
	userID    string
	revokedBy string
}

// BlacklistOption customises a blacklist call.
type BlacklistOption func(*blacklistOptions)

// ForUser tags a session entry with its owner so ReinstateUser can clear it.
func ForUser(userID string) BlacklistOption {
	return func(o *blacklistOptions) {
		o.userID = strings.TrimSpace(userID)
	}
}

// RevokedBy records the administrator responsible for the revocation.
func RevokedBy(actor string) BlacklistOption {
	return func(o *blacklistOptions) {
		o.revokedBy = strings.TrimSpace(actor)
	}
}

// BlacklistSession revokes a single session until the configured entry TTL elapses.
func (s *RevocationService) BlacklistSession(ctx context.Context, sessionID string, reason domain.RevocationReason, opts ...BlacklistOption) (*domain.RevocationEntry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id: %w", ErrInvalidRevocationTarget)
	}

	options := applyBlacklistOptions(opts)
	entry := s.newEntry(sessionID, reason, options.userID, options.revokedBy)
	if err := s.put(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("session blacklisted",
		zap.String("session_id", sessionID),
		zap.String("user_id", entry.UserID),
		zap.String("reason", string(entry.Reason)),
		zap.Time("expires_at", entry.ExpiresAt),
	)
	s.publish(ctx, domain.RevocationEvent{
		Kind:      domain.RevocationEventSessionRevoked,
		Key:       entry.Key,
		SessionID: sessionID,
		UserID:    entry.UserID,
		Reason:    entry.Reason,
		RevokedBy: entry.RevokedBy,
		ExpiresAt: entry.ExpiresAt,
	})
	return &entry, nil
}

// BlacklistAllUserSessions revokes every session of the user through the wildcard key.
func (s *RevocationService) BlacklistAllUserSessions(ctx context.Context, userID string, reason domain.RevocationReason, opts ...BlacklistOption) (*domain.RevocationEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", ErrInvalidRevocationTarget)
	}

	options := applyBlacklistOptions(opts)
	entry := s.newEntry(domain.UserWildcardKey(userID), reason, userID, options.revokedBy)
	if err := s.put(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("all user sessions blacklisted",
		zap.String("user_id", userID),
		zap.String("reason", string(entry.Reason)),
		zap.Time("expires_at", entry.ExpiresAt),
	)
	s.publish(ctx, domain.RevocationEvent{
		Kind:      domain.RevocationEventUserSessionsRevoked,
		Key:       entry.Key,
		UserID:    userID,
		Reason:    entry.Reason,
		RevokedBy: entry.RevokedBy,
		ExpiresAt: entry.ExpiresAt,
	})
	return &entry, nil
}

// IsRevoked reports whether the session, or every session of the user, has been revoked.
func (s *RevocationService) IsRevoked(ctx context.Context, sessionID, userID string) (bool, error) {
	status, err := s.lookup(ctx, domain.Identity{SessionID: sessionID, UserID: userID})
	if err != nil {
		return false, err
	}
	return status.Revoked, nil
}

// GetReason returns the stored reason using the same lookup order as IsRevoked, or "" when not revoked.
func (s *RevocationService) GetReason(ctx context.Context, sessionID, userID string) (string, error) {
	status, err := s.lookup(ctx, domain.Identity{SessionID: sessionID, UserID: userID})
	if err != nil {
		return "", err
	}
	return string(status.Reason), nil
}

// Check evaluates the identity attached to a request in a single lookup pass.
func (s *RevocationService) Check(ctx context.Context, identity domain.Identity) (domain.RevocationStatus, error) {
	if !identity.HasSession() {
		return domain.RevocationStatus{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "revocation.check", trace.WithAttributes(
		attribute.Bool("revocation.has_user", strings.TrimSpace(identity.UserID) != ""),
	))
	defer span.End()

	start := time.Now()
	status, err := s.lookup(ctx, identity)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "revocation lookup failed")
		s.observeCheck(checkOutcomeError, elapsed)
	case status.Revoked:
		span.SetAttributes(attribute.String("revocation.reason", string(status.Reason)))
		s.observeCheck(checkOutcomeRevoked, elapsed)
	default:
		s.observeCheck(checkOutcomeAllowed, elapsed)
	}
	return status, err
}

// ReinstateUser lifts the user's wildcard revocation and any per-session entries tagged with the user.
func (s *RevocationService) ReinstateUser(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id: %w", ErrInvalidRevocationTarget)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	removed, err := s.store.DeleteUserEntries(storeCtx, userID)
	if err != nil {
		return 0, s.storeFailure("delete_user", err)
	}

	s.logger.Info("user reinstated", zap.String("user_id", userID), zap.Int("entries_removed", removed))
	s.publish(ctx, domain.RevocationEvent{
		Kind:   domain.RevocationEventUserReinstated,
		Key:    domain.UserWildcardKey(userID),
		UserID: userID,
	})
	return removed, nil
}

// SweepExpired deletes every entry whose expiry is before now and returns the number removed.
func (s *RevocationService) SweepExpired(ctx context.Context) (int, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	removed, err := s.store.DeleteExpiredBefore(storeCtx, s.now())
	if err != nil {
		return 0, s.storeFailure("sweep", err)
	}
	if s.metrics != nil && removed > 0 {
		s.metrics.AddSwept(removed)
	}
	return removed, nil
}

// Ping reports whether the revocation store is reachable.
func (s *RevocationService) Ping(ctx context.Context) error {
	pinger, ok := s.store.(port.RevocationStorePinger)
	if !ok {
		return nil
	}
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := pinger.Ping(storeCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	return nil
}

// ApplyEvent mirrors an administrative action performed on a peer instance into the local store.
// Events that originated here, or that already expired, are ignored.
func (s *RevocationService) ApplyEvent(ctx context.Context, event domain.RevocationEvent) error {
	if s.instanceID != "" && event.Origin == s.instanceID {
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	switch event.Kind {
	case domain.RevocationEventSessionRevoked, domain.RevocationEventUserSessionsRevoked:
		entry := event.Entry()
		if strings.TrimSpace(entry.Key) == "" {
			return fmt.Errorf("revocation event %s: %w", event.EventID, ErrInvalidRevocationTarget)
		}
		if entry.IsExpired(s.now()) {
			return nil
		}
		if err := s.store.Put(storeCtx, entry); err != nil {
			return s.storeFailure("put", err)
		}
	case domain.RevocationEventUserReinstated:
		userID := strings.TrimSpace(event.UserID)
		if userID == "" {
			return fmt.Errorf("revocation event %s: user id: %w", event.EventID, ErrInvalidRevocationTarget)
		}
		if _, err := s.store.DeleteUserEntries(storeCtx, userID); err != nil {
			return s.storeFailure("delete_user", err)
		}
	default:
		s.logger.Debug("ignoring unknown revocation event", zap.String("kind", string(event.Kind)))
	}
	return nil
}

// lookup performs the two-step check: the concrete session first, then the user wildcard.
// A wildcard written before the token was issued does not apply to it; the user already logged in again.
func (s *RevocationService) lookup(ctx context.Context, identity domain.Identity) (domain.RevocationStatus, error) {
	sessionID := strings.TrimSpace(identity.SessionID)
	if sessionID == "" {
		return domain.RevocationStatus{}, nil
	}

	entry, err := s.get(ctx, sessionID)
	if err != nil {
		return domain.RevocationStatus{}, err
	}
	if entry == nil {
		wildcard := domain.UserWildcardKey(identity.UserID)
		if wildcard == "" {
			return domain.RevocationStatus{}, nil
		}
		entry, err = s.get(ctx, wildcard)
		if err != nil {
			return domain.RevocationStatus{}, err
		}
		if entry != nil && identity.IssuedAfter(entry.CreatedAt) {
			return domain.RevocationStatus{}, nil
		}
	}
	if entry == nil {
		return domain.RevocationStatus{}, nil
	}

	return domain.RevocationStatus{
		Revoked:    true,
		Reason:     entry.Reason,
		MatchedKey: entry.Key,
	}, nil
}

func (s *RevocationService) get(ctx context.Context, key string) (*domain.RevocationEntry, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	entry, err := s.store.Get(storeCtx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeFailure("get", err)
	}
	if entry.IsExpired(s.now()) {
		return nil, nil
	}
	return entry, nil
}

func (s *RevocationService) put(ctx context.Context, entry domain.RevocationEntry) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Put(storeCtx, entry); err != nil {
		return s.storeFailure("put", err)
	}
	return nil
}

func (s *RevocationService) newEntry(key string, reason domain.RevocationReason, userID, revokedBy string) domain.RevocationEntry {
	now := s.now()
	return domain.RevocationEntry{
		Key:       key,
		Reason:    domain.ParseRevocationReason(string(reason)),
		UserID:    userID,
		RevokedBy: revokedBy,
		CreatedAt: now,
		ExpiresAt: now.Add(s.entryTTL),
	}
}

func (s *RevocationService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeFailure classifies a store error. Rejected keys are caller errors, everything else is unavailability.
func (s *RevocationService) storeFailure(operation string, err error) error {
	if errors.Is(err, repository.ErrInvalidKey) {
		return fmt.Errorf("%s: %w: %w", operation, ErrInvalidRevocationTarget, err)
	}
	if s.metrics != nil {
		s.metrics.IncStoreError(operation)
	}
	return fmt.Errorf("%w: %s: %w", ErrRevocationUnavailable, operation, err)
}

func (s *RevocationService) observeCheck(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveCheck(outcome, elapsed)
	}
}

func (s *RevocationService) publish(ctx context.Context, event domain.RevocationEvent) {
	if s.events == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.OccurredAt = s.now()
	event.Origin = s.instanceID
	if err := s.events.PublishRevocation(ctx, event); err != nil {
		s.logger.Warn("publish revocation event failed",
			zap.String("kind", string(event.Kind)),
			zap.String("key", event.Key),
			zap.Error(err),
		)
	}
}

func applyBlacklistOptions(opts []BlacklistOption) blacklistOptions {
	var options blacklistOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
