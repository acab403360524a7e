package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/infra/config"
	"github.com/carehub/clinic-api/internal/infra/database"
	redisinfra "github.com/carehub/clinic-api/internal/infra/redis"
	"github.com/carehub/clinic-api/internal/repository/memory"
	postgresrepo "github.com/carehub/clinic-api/internal/repository/postgres"
	redisrepo "github.com/carehub/clinic-api/internal/repository/redis"
	"github.com/carehub/clinic-api/internal/usecase"
)

// revocationBackend is the store selected by revocation.store.driver plus the connections it owns.
type revocationBackend struct {
	store     port.RevocationStore
	snapshots *usecase.SnapshotPersister
	redis     *redisinfra.Client
	pool      *pgxpool.Pool
}

func (b *revocationBackend) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func newRevocationBackend(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*revocationBackend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Revocation.Store.Driver))
	backend := &revocationBackend{}

	switch driver {
	case config.StoreDriverMemory:
		store := memory.NewRevocationStore(memory.RevocationStoreOptions{MaxEntries: cfg.Revocation.Store.MaxEntries})
		backend.store = store

		if !cfg.Revocation.Snapshot.Enabled {
			break
		}
		client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			// Snapshots only shorten the cold-start window; run without them.
			log.Warn("revocation snapshots disabled, redis unreachable", zap.Error(err))
			break
		}
		backend.redis = client
		snapshotRepo := redisrepo.NewRevocationSnapshotRepository(client.Client(), cfg.Revocation.Snapshot.Key, cfg.Revocation.Snapshot.TTL)
		backend.snapshots = usecase.NewSnapshotPersister(store, snapshotRepo, cfg.Revocation.Snapshot.MinInterval, log)
		if err := backend.snapshots.Hydrate(ctx); err != nil {
			log.Warn("revocation snapshot restore failed", zap.Error(err))
		}

	case config.StoreDriverRedis:
		client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		backend.redis = client
		backend.store = redisrepo.NewRevocationStore(client.Client(), cfg.Revocation.Store.KeyPrefix)

	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		backend.pool = pool
		store := postgresrepo.NewRevocationStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		backend.store = store

	default:
		return nil, fmt.Errorf("unsupported revocation store driver %q", cfg.Revocation.Store.Driver)
	}

	log.Info("revocation store initialized",
		zap.String("driver", driver),
		zap.Bool("snapshots", backend.snapshots != nil),
	)
	return backend, nil
}
