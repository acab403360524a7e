package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/infra/config"
	kafkainfra "github.com/carehub/clinic-api/internal/infra/kafka"
	"github.com/carehub/clinic-api/internal/infra/logger"
	"github.com/carehub/clinic-api/internal/infra/security"
	"github.com/carehub/clinic-api/internal/infra/telemetry"
	"github.com/carehub/clinic-api/internal/transport/http/handlers"
	"github.com/carehub/clinic-api/internal/transport/http/middleware"
	"github.com/carehub/clinic-api/internal/transport/http/routes"
	"github.com/carehub/clinic-api/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	backend  *revocationBackend
	sweeper  *usecase.ExpirySweeper
	tracer   *telemetry.TracerProvider
	producer *kafkainfra.Producer
	consumer *kafkainfra.ConsumerGroup
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.tracer = tp
	}

	jwtManager, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	backend, err := newRevocationBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	revocationMetrics, err := telemetry.NewRevocationMetrics(telemetry.RevocationMetricsOptions{})
	if err != nil {
		a.closeResources(ctx)
		return nil, fmt.Errorf("init revocation metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		a.closeResources(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	instanceID := cfg.App.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	revocations := usecase.NewRevocationService(backend.store, log, usecase.RevocationServiceOptions{
		EntryTTL:     cfg.Revocation.EntryTTL,
		StoreTimeout: cfg.Revocation.StoreTimeout,
		InstanceID:   instanceID,
	}).WithMetrics(revocationMetrics)

	// Initialize Kafka event fan-out
	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}

		handler := kafkainfra.NewRevocationConsumer(revocations, log, kafkainfra.RevocationConsumerOptions{})
		consumer, err := kafkainfra.NewConsumerGroup(cfg.Kafka, instanceID, handler, log)
		if err != nil {
			log.Warn("failed to init kafka consumer, peer revocations will not be mirrored", zap.Error(err))
		} else {
			a.consumer = consumer
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}
	revocations.WithEventPublisher(eventPublisher)

	a.sweeper = usecase.NewExpirySweeper(revocations, cfg.Revocation.SweepInterval, log)
	if backend.snapshots != nil {
		a.sweeper.AfterSweep(backend.snapshots.SweepHook())
	}

	readiness := map[string]handlers.ReadinessCheck{
		"revocation_store": revocations.Ping,
	}
	if backend.redis != nil {
		readiness["redis"] = backend.redis.HealthCheck
	}
	if backend.pool != nil {
		readiness["postgres"] = backend.pool.Ping
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		TokenParser: jwtManager,
		Services: routes.ServiceSet{
			Revocations: revocations,
			RoleChanges: usecase.NewRoleChangeService(revocations, log),
			Sweeper:     a.sweeper,
		},
		Metrics:         httpMetrics,
		ReadinessChecks: readiness,
	})

	log.Info("revocation gate configured",
		zap.String("instance_id", instanceID),
		zap.String("driver", cfg.Revocation.Store.Driver),
		zap.String("policy", string(cfg.Revocation.Policy().Mode())),
		zap.Duration("entry_ttl", revocations.EntryTTL()),
	)

	return a, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	bgCtx, cancelBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.sweeper.Run(bgCtx); err != nil {
			a.logger.Warn("revocation sweeper exited", zap.Error(err))
		}
	}()

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Run(bgCtx); err != nil {
				a.logger.Warn("revocation consumer exited", zap.Error(err))
			}
		}()
	}

	readHeaderTimeout := a.cfg.HTTP.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              a.cfg.App.Addr(),
		Handler:           a.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting clinic API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	}

	shutdownTimeout := a.cfg.App.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}

	cancelBackground()
	wg.Wait()

	a.closeResources(shutdownCtx)
	return runErr
}

// closeResources releases connections in reverse dependency order.
func (a *Application) closeResources(ctx context.Context) {
	if a.backend != nil && a.backend.snapshots != nil {
		if err := a.backend.snapshots.FlushNow(ctx); err != nil {
			a.logger.Warn("final revocation snapshot failed", zap.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("close consumer", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close producer", zap.Error(err))
		}
	}
	if a.backend != nil {
		a.backend.close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
}
