package port

import (
	"context"
	"time"

	"github.com/carehub/clinic-api/internal/core/domain"
)

// RevocationStore persists revocation entries keyed by session id or user wildcard key.
type RevocationStore interface {
	// Put upserts the entry; the latest write for a key wins.
	Put(ctx context.Context, entry domain.RevocationEntry) error
	// Get returns repository.ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (*domain.RevocationEntry, error)
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int, error)
	DeleteByKeyPrefix(ctx context.Context, prefix string) (int, error)
	// DeleteUserEntries removes the user's wildcard entry and every per-session entry tagged with the user.
	DeleteUserEntries(ctx context.Context, userID string) (int, error)
}

// RevocationStorePinger is implemented by stores that can report backend health.
type RevocationStorePinger interface {
	Ping(ctx context.Context) error
}

// RevocationSnapshotter is implemented by in-memory stores that can be serialised for warm starts.
type RevocationSnapshotter interface {
	Snapshot(ctx context.Context) (*domain.RevocationSnapshot, error)
	RestoreSnapshot(ctx context.Context, snapshot domain.RevocationSnapshot) error
}

// RevocationSnapshotStore persists serialised snapshots between process restarts.
type RevocationSnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot domain.RevocationSnapshot) error
	LoadLatestSnapshot(ctx context.Context) (*domain.RevocationSnapshot, error)
}

// RevocationMetrics captures telemetry hooks for revocation checks and sweeps.
type RevocationMetrics interface {
	ObserveCheck(outcome string, duration time.Duration)
	IncStoreError(operation string)
	AddSwept(count int)
}
