package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/repository"
)

const defaultRevocationSnapshotKey = "clinic:revocations:snapshot"

const (
	snapshotFieldID          = "snapshot_id"
	snapshotFieldGeneratedAt = "generated_at"
	snapshotFieldChecksum    = "checksum"
	snapshotFieldPayload     = "payload"
)

// RevocationSnapshotRepository keeps the latest memory-store snapshot in a Redis hash.
// Instances share the key, so an older snapshot never replaces a newer one.
type RevocationSnapshotRepository struct {
	client *red.Client
	key    string
	ttl    time.Duration
}

// NewRevocationSnapshotRepository wires Redis storage for revocation snapshots.
func NewRevocationSnapshotRepository(client *red.Client, key string, ttl time.Duration) *RevocationSnapshotRepository {
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		trimmedKey = defaultRevocationSnapshotKey
	}
	return &RevocationSnapshotRepository{client: client, key: trimmedKey, ttl: ttl}
}

// SaveSnapshot writes the snapshot unless the stored one was generated later.
func (r *RevocationSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot domain.RevocationSnapshot) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("snapshot repository not configured")
	}
	if len(snapshot.Payload) == 0 {
		return fmt.Errorf("snapshot payload required")
	}
	generatedAt := snapshot.GeneratedAt.UTC()

	err := r.client.Watch(ctx, func(tx *red.Tx) error {
		stored, err := tx.HGet(ctx, r.key, snapshotFieldGeneratedAt).Result()
		switch {
		case errors.Is(err, red.Nil):
		case err != nil:
			return err
		default:
			if current, parseErr := time.Parse(time.RFC3339Nano, stored); parseErr == nil && current.After(generatedAt) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Del(ctx, r.key)
			pipe.HSet(ctx, r.key,
				snapshotFieldID, snapshot.SnapshotID,
				snapshotFieldGeneratedAt, generatedAt.Format(time.RFC3339Nano),
				snapshotFieldChecksum, snapshot.Checksum,
				snapshotFieldPayload, snapshot.Payload,
			)
			if r.ttl > 0 {
				pipe.Expire(ctx, r.key, r.ttl)
			}
			return nil
		})
		return err
	}, r.key)
	if err != nil {
		return fmt.Errorf("redis save revocation snapshot: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// LoadLatestSnapshot retrieves the stored snapshot, or nil when none was saved.
func (r *RevocationSnapshotRepository) LoadLatestSnapshot(ctx context.Context) (*domain.RevocationSnapshot, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("snapshot repository not configured")
	}

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load revocation snapshot: %w: %w", repository.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	generatedAt, err := time.Parse(time.RFC3339Nano, fields[snapshotFieldGeneratedAt])
	if err != nil {
		return nil, fmt.Errorf("decode snapshot generated_at: %w", err)
	}

	return &domain.RevocationSnapshot{
		SnapshotID:  fields[snapshotFieldID],
		GeneratedAt: generatedAt,
		Payload:     []byte(fields[snapshotFieldPayload]),
		Checksum:    fields[snapshotFieldChecksum],
	}, nil
}

var _ port.RevocationSnapshotStore = (*RevocationSnapshotRepository)(nil)
