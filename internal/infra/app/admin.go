package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/infra/config"
	kafkainfra "github.com/carehub/clinic-api/internal/infra/kafka"
	"github.com/carehub/clinic-api/internal/usecase"
)

// OpenRevocationService builds a RevocationService over the configured store for one-off
// administrative use. The returned func releases every connection it opened.
// A memory store is only reachable through Kafka fan-out, so it requires kafka.enabled.
func OpenRevocationService(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*usecase.RevocationService, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Revocation.Store.Driver))
	if driver == config.StoreDriverMemory && !cfg.Kafka.Enabled {
		return nil, nil, fmt.Errorf("memory revocation store is process-local; enable kafka or use the redis or postgres driver")
	}

	adminCfg := *cfg
	adminCfg.Revocation.Snapshot.Enabled = false

	backend, err := newRevocationBackend(ctx, &adminCfg, log)
	if err != nil {
		return nil, nil, err
	}

	svc := usecase.NewRevocationService(backend.store, log, usecase.RevocationServiceOptions{
		EntryTTL:     cfg.Revocation.EntryTTL,
		StoreTimeout: cfg.Revocation.StoreTimeout,
		InstanceID:   "revocationctl",
	})

	var producer *kafkainfra.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			backend.close()
			return nil, nil, fmt.Errorf("init kafka producer: %w", err)
		}
		svc.WithEventPublisher(kafkainfra.NewEventPublisher(producer, cfg.App, log))
	}

	cleanup := func() {
		if producer != nil {
			_ = producer.Close()
		}
		backend.close()
	}
	return svc, cleanup, nil
}
