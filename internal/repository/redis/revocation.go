package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/repository"
)

const (
	defaultRevocationPrefix = "clinic:revoked"
	scanBatchSize           = 200
)

// sweepScript removes index members scored strictly below ARGV[1] together with their entry keys.
// Running it server-side keeps a concurrent overwrite (which re-scores the member) from being swept.
var sweepScript = red.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, member in ipairs(members) do
  redis.call('DEL', ARGV[2] .. member)
  redis.call('ZREM', KEYS[1], member)
end
return #members
`)

// RevocationStore persists revocation entries in Redis with TTLs matching their expiry.
type RevocationStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewRevocationStore wires a Redis client into a revocation store.
func NewRevocationStore(client *red.Client, keyPrefix string) *RevocationStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	store := &RevocationStore{client: client, prefix: prefix}
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the clock used to compute TTLs.
func (s *RevocationStore) WithClock(clock func() time.Time) *RevocationStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

type revocationValue struct {
	Reason    string    `json:"reason"`
	UserID    string    `json:"user_id,omitempty"`
	RevokedBy string    `json:"revoked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Put stores the entry with a TTL equal to its remaining lifetime and indexes it for sweeping.
func (s *RevocationStore) Put(ctx context.Context, entry domain.RevocationEntry) error {
	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return fmt.Errorf("redis put revocation: %w", repository.ErrInvalidKey)
	}

	ttl := entry.TTL(s.now())
	if ttl <= 0 {
		// Already expired: an overwrite must still replace any live entry.
		if err := s.client.Del(ctx, s.entryKey(key)).Err(); err != nil {
			return fmt.Errorf("redis delete expired revocation: %w: %w", repository.ErrUnavailable, err)
		}
		return nil
	}

	value, err := json.Marshal(revocationValue{
		Reason:    string(entry.Reason),
		UserID:    entry.UserID,
		RevokedBy: entry.RevokedBy,
		CreatedAt: entry.CreatedAt.UTC(),
		ExpiresAt: entry.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode revocation entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(key), value, ttl)
		pipe.ZAdd(ctx, s.expiryKey(), red.Z{Score: float64(entry.ExpiresAt.UnixMilli()), Member: key})
		if userID := strings.TrimSpace(entry.UserID); userID != "" {
			pipe.SAdd(ctx, s.userKey(userID), key)
			// The index must outlive every entry it lists: set on first write, only ever extend.
			pipe.ExpireNX(ctx, s.userKey(userID), ttl)
			pipe.ExpireGT(ctx, s.userKey(userID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put revocation: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Get returns the entry stored under key or repository.ErrNotFound.
func (s *RevocationStore) Get(ctx context.Context, key string) (*domain.RevocationEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redis get revocation: %w", repository.ErrInvalidKey)
	}

	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get revocation: %w: %w", repository.ErrUnavailable, err)
	}

	var value revocationValue
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode revocation entry: %w", err)
	}

	entry := &domain.RevocationEntry{
		Key:       key,
		Reason:    domain.RevocationReason(value.Reason),
		UserID:    value.UserID,
		RevokedBy: value.RevokedBy,
		CreatedAt: value.CreatedAt,
		ExpiresAt: value.ExpiresAt,
	}
	if entry.IsExpired(s.now()) {
		return nil, repository.ErrNotFound
	}
	return entry, nil
}

// DeleteExpiredBefore removes indexed entries whose expiry is strictly before now.
func (s *RevocationStore) DeleteExpiredBefore(ctx context.Context, now time.Time) (int, error) {
	max := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	removed, err := sweepScript.Run(ctx, s.client, []string{s.expiryKey()}, max, s.entryKey("")).Int()
	if err != nil {
		return 0, fmt.Errorf("redis sweep revocations: %w: %w", repository.ErrUnavailable, err)
	}
	return removed, nil
}

// DeleteByKeyPrefix removes every entry whose revocation key starts with prefix.
func (s *RevocationStore) DeleteByKeyPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("redis delete by prefix: %w", repository.ErrInvalidKey)
	}

	pattern := s.entryKey(escapeGlob(prefix)) + "*"
	removed := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan revocations: %w: %w", repository.ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := s.deleteEntries(ctx, keys)
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// DeleteUserEntries removes the user's wildcard entry and every indexed session entry of the user.
func (s *RevocationStore) DeleteUserEntries(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	wildcard := domain.UserWildcardKey(userID)
	if wildcard == "" {
		return 0, fmt.Errorf("redis delete user entries: %w", repository.ErrInvalidKey)
	}

	members, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, red.Nil) {
		return 0, fmt.Errorf("redis list user revocations: %w: %w", repository.ErrUnavailable, err)
	}

	keys := make([]string, 0, len(members)+1)
	keys = append(keys, s.entryKey(wildcard))
	for _, member := range members {
		if member == wildcard {
			continue
		}
		keys = append(keys, s.entryKey(member))
	}

	removed, err := s.deleteEntries(ctx, keys)
	if err != nil {
		return removed, err
	}
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("redis delete user index: %w: %w", repository.ErrUnavailable, err)
	}
	return removed, nil
}

// Ping verifies Redis connectivity.
func (s *RevocationStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) deleteEntries(ctx context.Context, entryKeys []string) (int, error) {
	members := make([]any, 0, len(entryKeys))
	for _, k := range entryKeys {
		members = append(members, strings.TrimPrefix(k, s.entryKey("")))
	}

	var del *red.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		del = pipe.Del(ctx, entryKeys...)
		pipe.ZRem(ctx, s.expiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete revocations: %w: %w", repository.ErrUnavailable, err)
	}
	return int(del.Val()), nil
}

func (s *RevocationStore) entryKey(key string) string {
	return fmt.Sprintf("%s:entry:%s", s.prefix, key)
}

func (s *RevocationStore) expiryKey() string {
	return s.prefix + ":expiry"
}

func (s *RevocationStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	_ port.RevocationStore       = (*RevocationStore)(nil)
	_ port.RevocationStorePinger = (*RevocationStore)(nil)
)
