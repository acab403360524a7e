package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 5 * time.Minute

// ExpiredEntryRemover removes revocation entries whose expiry has passed.
type ExpiredEntryRemover interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SweepHook runs after every completed sweep.
type SweepHook func(ctx context.Context, removed int) error

// SweepResult summarises a single sweep attempt.
type SweepResult struct {
	Removed int
	Skipped bool
}

// ExpirySweeper triggers SweepExpired periodically; at most one sweep runs at a time.
type ExpirySweeper struct {
	remover  ExpiredEntryRemover
	logger   *zap.Logger
	interval time.Duration
	hooks    []SweepHook
	running  atomic.Bool
}

// NewExpirySweeper constructs a sweeper that runs every interval.
func NewExpirySweeper(remover ExpiredEntryRemover, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ExpirySweeper{remover: remover, logger: logger, interval: interval}
}

// AfterSweep registers a hook invoked once each sweep completes successfully.
func (s *ExpirySweeper) AfterSweep(hook SweepHook) *ExpirySweeper {
	if hook != nil {
		s.hooks = append(s.hooks, hook)
	}
	return s
}

// Interval reports the configured sweep period.
func (s *ExpirySweeper) Interval() time.Duration {
	return s.interval
}

// RunOnce performs a sweep unless another one is already in flight.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("revocation sweep already running; skipping")
		return SweepResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	removed, err := s.remover.SweepExpired(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	for _, hook := range s.hooks {
		if err := hook(ctx, removed); err != nil {
			s.logger.Warn("post-sweep hook failed", zap.Error(err))
		}
	}
	return SweepResult{Removed: removed}, nil
}

// Run sweeps on every tick until the context is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("revocation sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("revocation sweeper stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			result, err := s.RunOnce(ctx)
			switch {
			case err != nil:
				s.logger.Warn("revocation sweep failed", zap.Error(err))
			case result.Skipped:
			default:
				s.logger.Info("revocation sweep completed", zap.Int("removed", result.Removed))
			}
		}
	}
}
