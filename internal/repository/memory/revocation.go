package memory

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/repository"
)

// RevocationStoreOptions controls in-memory store behaviour.
type RevocationStoreOptions struct {
	// MaxEntries bounds the map. A full store drops expired entries and otherwise
	// rejects new keys with repository.ErrStoreFull. Zero means unbounded.
	MaxEntries int
}

// RevocationStore keeps revocation entries in a mutex-protected map.
type RevocationStore struct {
	mu         sync.RWMutex
	entries    map[string]domain.RevocationEntry
	maxEntries int
	now        func() time.Time
}

// NewRevocationStore constructs an empty in-memory store.
func NewRevocationStore(opts RevocationStoreOptions) *RevocationStore {
	store := &RevocationStore{
		entries:    make(map[string]domain.RevocationEntry),
		maxEntries: opts.MaxEntries,
	}
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the internal clock for deterministic testing.
func (s *RevocationStore) WithClock(clock func() time.Time) *RevocationStore {
	if clock != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.now = clock
	}
	return s
}

// Put upserts the entry under its key.
func (s *RevocationStore) Put(_ context.Context, entry domain.RevocationEntry) error {
	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return fmt.Errorf("memory put revocation: %w", repository.ErrInvalidKey)
	}
	entry.Key = key
	entry.ExpiresAt = entry.ExpiresAt.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictExpiredLocked(s.now().UTC())
		if len(s.entries) >= s.maxEntries {
			return fmt.Errorf("memory put revocation %s: %w", key, repository.ErrStoreFull)
		}
	}
	s.entries[key] = entry
	return nil
}

// Get returns the unexpired entry stored under key.
func (s *RevocationStore) Get(_ context.Context, key string) (*domain.RevocationEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("memory get revocation: %w", repository.ErrInvalidKey)
	}

	now := s.currentTime()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || entry.IsExpired(now) {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

// DeleteExpiredBefore removes every entry whose expiry is strictly before now.
func (s *RevocationStore) DeleteExpiredBefore(_ context.Context, now time.Time) (int, error) {
	cutoff := now.UTC()
	removed := 0

	s.mu.Lock()
	for key, entry := range s.entries {
		if entry.ExpiresAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// DeleteByKeyPrefix removes every entry whose key starts with prefix.
func (s *RevocationStore) DeleteByKeyPrefix(_ context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("memory delete by prefix: %w", repository.ErrInvalidKey)
	}

	removed := 0
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// DeleteUserEntries removes the user's wildcard entry and all session entries tagged with the user.
func (s *RevocationStore) DeleteUserEntries(_ context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	wildcard := domain.UserWildcardKey(userID)
	if wildcard == "" {
		return 0, fmt.Errorf("memory delete user entries: %w", repository.ErrInvalidKey)
	}

	removed := 0
	s.mu.Lock()
	for key, entry := range s.entries {
		if key == wildcard || entry.UserID == userID {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// Len reports the number of physically present entries, expired or not.
func (s *RevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping always succeeds for the in-memory store.
func (s *RevocationStore) Ping(context.Context) error {
	return nil
}

// Snapshot serialises the unexpired entries for persistence.
func (s *RevocationStore) Snapshot(_ context.Context) (*domain.RevocationSnapshot, error) {
	now := s.currentTime()
	s.mu.RLock()
	entries := make([]domain.RevocationEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.IsExpired(now) {
			continue
		}
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ExpiresAt.Equal(entries[j].ExpiresAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].ExpiresAt.Before(entries[j].ExpiresAt)
	})

	payload, err := json.Marshal(revocationSnapshot{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode revocation snapshot: %w", err)
	}

	checksum := sha256.Sum256(payload)
	return &domain.RevocationSnapshot{
		SnapshotID:  uuid.NewString(),
		GeneratedAt: now,
		Payload:     payload,
		Checksum:    base64.StdEncoding.EncodeToString(checksum[:]),
	}, nil
}

// RestoreSnapshot replaces the in-memory state with the provided snapshot payload.
// Entries that expired while the process was down are dropped.
func (s *RevocationStore) RestoreSnapshot(_ context.Context, snapshot domain.RevocationSnapshot) error {
	if len(snapshot.Payload) == 0 {
		return nil
	}
	if snapshot.Checksum != "" {
		sum := sha256.Sum256(snapshot.Payload)
		if base64.StdEncoding.EncodeToString(sum[:]) != snapshot.Checksum {
			return fmt.Errorf("revocation snapshot %s checksum mismatch", snapshot.SnapshotID)
		}
	}

	var data revocationSnapshot
	if err := json.Unmarshal(snapshot.Payload, &data); err != nil {
		return fmt.Errorf("decode revocation snapshot: %w", err)
	}

	now := s.currentTime()
	entries := make(map[string]domain.RevocationEntry, len(data.Entries))
	for _, item := range data.Entries {
		key := strings.TrimSpace(item.Key)
		if key == "" || item.IsExpired(now) {
			continue
		}
		item.Key = key
		entries[key] = item
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *RevocationStore) currentTime() time.Time {
	s.mu.RLock()
	nowFn := s.now
	s.mu.RUnlock()
	if nowFn == nil {
		return time.Now().UTC()
	}
	return nowFn().UTC()
}

// evictExpiredLocked drops entries that are already logically absent. Live entries are never evicted.
func (s *RevocationStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, key)
		}
	}
}

type revocationSnapshot struct {
	Entries []domain.RevocationEntry `json:"entries"`
}

var (
	_ port.RevocationStore       = (*RevocationStore)(nil)
	_ port.RevocationSnapshotter = (*RevocationStore)(nil)
	_ port.RevocationStorePinger = (*RevocationStore)(nil)
)
