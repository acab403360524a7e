package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
	removed int
	err     error
}

func (b *blockingSweeper) SweepExpired(ctx context.Context) (int, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	return b.removed, b.err
}

func TestExpirySweeper_RunOnce(t *testing.T) {
	sweeper := &blockingSweeper{removed: 3}
	var hookRemoved int
	sweeperLoop := NewExpirySweeper(sweeper, time.Minute, nil).AfterSweep(func(_ context.Context, removed int) error {
		hookRemoved = removed
		return errors.New("hook failures are only logged")
	})

	result, err := sweeperLoop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if result.Skipped || result.Removed != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if hookRemoved != 3 {
		t.Fatalf("expected hook to receive removal count, got %d", hookRemoved)
	}
}

func TestExpirySweeper_SkipsWhileRunning(t *testing.T) {
	sweeper := &blockingSweeper{started: make(chan struct{}), release: make(chan struct{})}
	sweeperLoop := NewExpirySweeper(sweeper, time.Minute, nil)

	done := make(chan SweepResult)
	go func() {
		result, _ := sweeperLoop.RunOnce(context.Background())
		done <- result
	}()
	<-sweeper.started

	result, err := sweeperLoop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("expected overlapping sweep to be skipped")
	}

	close(sweeper.release)
	if first := <-done; first.Skipped {
		t.Fatalf("expected first sweep to complete")
	}
	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	if sweeper.calls != 1 {
		t.Fatalf("expected a single store sweep, got %d", sweeper.calls)
	}
}

func TestExpirySweeper_PropagatesErrorWithoutHooks(t *testing.T) {
	sweeper := &blockingSweeper{err: ErrRevocationUnavailable}
	hookCalled := false
	sweeperLoop := NewExpirySweeper(sweeper, 0, nil).AfterSweep(func(context.Context, int) error {
		hookCalled = true
		return nil
	})

	if sweeperLoop.Interval() != defaultSweepInterval {
		t.Fatalf("expected default interval, got %s", sweeperLoop.Interval())
	}
	if _, err := sweeperLoop.RunOnce(context.Background()); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
	if hookCalled {
		t.Fatalf("expected hooks to be skipped on failure")
	}
}

func TestExpirySweeper_RunStopsOnCancel(t *testing.T) {
	sweeper := &blockingSweeper{}
	sweeperLoop := NewExpirySweeper(sweeper, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sweeperLoop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		sweeper.mu.Lock()
		calls := sweeper.calls
		sweeper.mu.Unlock()
		if calls > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sweeper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
