package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"framecast/internal/pkg/logger"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)

	var order []string
	mgr.RegisterFunc("redis", func() { order = append(order, "redis") })
	mgr.RegisterFunc("postgres", func() { order = append(order, "postgres") })
	mgr.RegisterFunc("worker", func() { order = append(order, "worker") })

	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(order, ","); got != "worker,postgres,redis" {
		t.Errorf("unexpected order %s", got)
	}

	select {
	case <-mgr.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)

	boom := errors.New("boom")
	var ranAfter bool
	mgr.RegisterFunc("first", func() { ranAfter = true })
	mgr.Register("failing", func(context.Context) error { return boom })

	err := mgr.Shutdown()
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom in %v", err)
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("expected hook name in error, got %v", err)
	}
	if !ranAfter {
		t.Error("later hooks must still run after a failure")
	}
}

func TestShutdownOnce(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)

	var calls int
	mgr.RegisterFunc("count", func() { calls++ })

	_ = mgr.Shutdown()
	_ = mgr.Shutdown()

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestShutdownTimeoutSkipsRemainingHooks(t *testing.T) {
	mgr := NewManager(logger.Discard(), 20*time.Millisecond)

	var skippedRan bool
	mgr.RegisterFunc("skipped", func() { skippedRan = true })
	mgr.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := mgr.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if skippedRan {
		t.Error("hooks after the deadline should be skipped")
	}
}

func TestWaitReturnsWhenContextEnds(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)

	var ran bool
	mgr.RegisterFunc("hook", func() { ran = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected hook to run")
	}
}

func TestNewManagerDefaultTimeout(t *testing.T) {
	if mgr := NewManager(logger.Discard(), 0); mgr.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", mgr.timeout)
	}
}
