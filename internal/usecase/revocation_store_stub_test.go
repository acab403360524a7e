package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/repository"
)

type stubRevocationStore struct {
	mu      sync.Mutex
	entries map[string]domain.RevocationEntry
	gets    []string
	errors  struct {
		put   error
		get   error
		sweep error
		user  error
	}
}

func (s *stubRevocationStore) Put(_ context.Context, entry domain.RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors.put != nil {
		return s.errors.put
	}
	if s.entries == nil {
		s.entries = make(map[string]domain.RevocationEntry)
	}
	s.entries[entry.Key] = entry
	return nil
}

func (s *stubRevocationStore) Get(_ context.Context, key string) (*domain.RevocationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, key)
	if s.errors.get != nil {
		return nil, s.errors.get
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

func (s *stubRevocationStore) DeleteExpiredBefore(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors.sweep != nil {
		return 0, s.errors.sweep
	}
	removed := 0
	for key, entry := range s.entries {
		if entry.ExpiresAt.Before(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubRevocationStore) DeleteByKeyPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubRevocationStore) DeleteUserEntries(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors.user != nil {
		return 0, s.errors.user
	}
	removed := 0
	for key, entry := range s.entries {
		if key == domain.UserWildcardKey(userID) || entry.UserID == userID {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubRevocationStore) lookups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gets...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RevocationEvent
	err    error
}

func (p *recordingPublisher) PublishRevocation(_ context.Context, event domain.RevocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	checks      map[string]int
	storeErrors map[string]int
	swept       int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{checks: map[string]int{}, storeErrors: map[string]int{}}
}

func (m *recordingMetrics) ObserveCheck(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[outcome]++
}

func (m *recordingMetrics) IncStoreError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErrors[operation]++
}

func (m *recordingMetrics) AddSwept(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept += count
}
