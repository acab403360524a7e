package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/repository/memory"
)

type inMemorySnapshotStore struct {
	saved []domain.RevocationSnapshot
	err   error
}

func (s *inMemorySnapshotStore) SaveSnapshot(_ context.Context, snapshot domain.RevocationSnapshot) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, snapshot)
	return nil
}

func (s *inMemorySnapshotStore) LoadLatestSnapshot(context.Context) (*domain.RevocationSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.saved) == 0 {
		return nil, nil
	}
	latest := s.saved[len(s.saved)-1]
	return &latest, nil
}

func TestSnapshotPersister_FlushAndHydrate(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	snapshots := &inMemorySnapshotStore{}
	ctx := context.Background()

	source := memory.NewRevocationStore(memory.RevocationStoreOptions{}).WithClock(clock)
	_ = source.Put(ctx, domain.RevocationEntry{Key: "abc123", Reason: domain.RevocationReasonSecurityLogout, ExpiresAt: now.Add(time.Hour)})

	persister := NewSnapshotPersister(source, snapshots, 0, nil).WithClock(clock)
	if err := persister.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if len(snapshots.saved) != 1 {
		t.Fatalf("expected one snapshot saved, got %d", len(snapshots.saved))
	}

	restored := memory.NewRevocationStore(memory.RevocationStoreOptions{}).WithClock(clock)
	if err := NewSnapshotPersister(restored, snapshots, 0, nil).Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	entry, err := restored.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("expected restored entry, got %v", err)
	}
	if entry.Reason != domain.RevocationReasonSecurityLogout {
		t.Fatalf("unexpected restored reason %s", entry.Reason)
	}
}

func TestSnapshotPersister_FlushThrottled(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	snapshots := &inMemorySnapshotStore{}
	source := memory.NewRevocationStore(memory.RevocationStoreOptions{}).WithClock(clock)
	persister := NewSnapshotPersister(source, snapshots, time.Minute, nil).WithClock(clock)
	ctx := context.Background()

	_ = persister.Flush(ctx)
	now = now.Add(30 * time.Second)
	_ = persister.Flush(ctx)
	now = now.Add(31 * time.Second)
	_ = persister.SweepHook()(ctx, 0)

	if len(snapshots.saved) != 2 {
		t.Fatalf("expected 2 snapshots after throttling, got %d", len(snapshots.saved))
	}

	if err := persister.FlushNow(ctx); err != nil {
		t.Fatalf("FlushNow returned error: %v", err)
	}
	if len(snapshots.saved) != 3 {
		t.Fatalf("expected FlushNow to bypass the throttle, got %d", len(snapshots.saved))
	}
}

func TestSnapshotPersister_HydrateEmptyAndErrors(t *testing.T) {
	source := memory.NewRevocationStore(memory.RevocationStoreOptions{})
	ctx := context.Background()

	if err := NewSnapshotPersister(source, &inMemorySnapshotStore{}, 0, nil).Hydrate(ctx); err != nil {
		t.Fatalf("expected nil error without snapshot, got %v", err)
	}

	failing := &inMemorySnapshotStore{err: errors.New("redis down")}
	if err := NewSnapshotPersister(source, failing, 0, nil).Hydrate(ctx); err == nil {
		t.Fatalf("expected load error to surface")
	}
	if err := NewSnapshotPersister(source, failing, 0, nil).Flush(ctx); err == nil {
		t.Fatalf("expected save error to surface")
	}
	if err := NewSnapshotPersister(nil, nil, 0, nil).Flush(ctx); err != nil {
		t.Fatalf("expected unconfigured persister to no-op, got %v", err)
	}
}
