package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/port"
)

// SnapshotPersister saves and restores an in-memory revocation store across restarts.
type SnapshotPersister struct {
	source      port.RevocationSnapshotter
	snapshots   port.RevocationSnapshotStore
	logger      *zap.Logger
	minInterval time.Duration
	lastFlush   time.Time
	now         func() time.Time
}

// NewSnapshotPersister wires a snapshot source to durable snapshot storage.
// minInterval throttles Flush; zero flushes on every call.
func NewSnapshotPersister(source port.RevocationSnapshotter, snapshots port.RevocationSnapshotStore, minInterval time.Duration, logger *zap.Logger) *SnapshotPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	persister := &SnapshotPersister{
		source:      source,
		snapshots:   snapshots,
		logger:      logger,
		minInterval: minInterval,
	}
	persister.now = func() time.Time { return time.Now().UTC() }
	return persister
}

// WithClock overrides the clock used for throttling.
func (p *SnapshotPersister) WithClock(clock func() time.Time) *SnapshotPersister {
	if clock != nil {
		p.now = clock
	}
	return p
}

// Hydrate restores the latest saved snapshot, if any.
func (p *SnapshotPersister) Hydrate(ctx context.Context) error {
	if p.source == nil || p.snapshots == nil {
		return nil
	}

	snapshot, err := p.snapshots.LoadLatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load revocation snapshot: %w", err)
	}
	if snapshot == nil {
		p.logger.Info("no revocation snapshot to restore")
		return nil
	}

	if err := p.source.RestoreSnapshot(ctx, *snapshot); err != nil {
		return fmt.Errorf("restore revocation snapshot: %w", err)
	}
	p.logger.Info("revocation snapshot restored",
		zap.String("snapshot_id", snapshot.SnapshotID),
		zap.Time("generated_at", snapshot.GeneratedAt),
	)
	return nil
}

// Flush persists the current state unless the last flush is more recent than minInterval.
func (p *SnapshotPersister) Flush(ctx context.Context) error {
	if p.source == nil || p.snapshots == nil {
		return nil
	}

	now := p.now()
	if p.minInterval > 0 && !p.lastFlush.IsZero() && now.Sub(p.lastFlush) < p.minInterval {
		return nil
	}
	return p.save(ctx, now)
}

// FlushNow persists the current state regardless of the throttle. Used on shutdown.
func (p *SnapshotPersister) FlushNow(ctx context.Context) error {
	if p.source == nil || p.snapshots == nil {
		return nil
	}
	return p.save(ctx, p.now())
}

func (p *SnapshotPersister) save(ctx context.Context, now time.Time) error {
	snapshot, err := p.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot revocations: %w", err)
	}
	if snapshot == nil {
		return nil
	}
	if err := p.snapshots.SaveSnapshot(ctx, *snapshot); err != nil {
		return fmt.Errorf("save revocation snapshot: %w", err)
	}
	p.lastFlush = now
	p.logger.Debug("revocation snapshot saved", zap.String("snapshot_id", snapshot.SnapshotID))
	return nil
}

// SweepHook adapts Flush for ExpirySweeper.AfterSweep.
func (p *SnapshotPersister) SweepHook() SweepHook {
	return func(ctx context.Context, _ int) error {
		return p.Flush(ctx)
	}
}
