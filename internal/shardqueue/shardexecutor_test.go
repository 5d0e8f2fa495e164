package shardqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

func newExec(cfg Config) *ShardExecutor { return NewShardExecutor(cfg, zerolog.Nop()) }

func TestShardExecutor_FIFOOrderingPerKey(t *testing.T) {
	p := newExec(Config{Shards: 4, QueueSize: 10})
	defer p.Stop()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 5; i++ {
		v := i
		if err := p.Submit(context.Background(), "user-a", JobFunc(func(context.Context) error {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
			return nil
		})); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if err := p.Barrier(context.Background(), "user-a"); err != nil {
		t.Fatalf("barrier: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("out of order: %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(order))
	}
}

func TestShardExecutor_Retry(t *testing.T) {
	p := newExec(Config{Shards: 1, QueueSize: 10, MaxAttempts: 3, BaseBackoff: 5 * time.Millisecond})
	defer p.Stop()

	var attempts int32
	if err := p.Submit(context.Background(), "k1", JobFunc(func(context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("gateway unavailable")
		}
		return nil
	})); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.Barrier(context.Background(), "k1"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestShardExecutor_PermanentErrorIsNotRetried(t *testing.T) {
	var handled atomic.Value
	p := newExec(Config{Shards: 1, MaxAttempts: 5, BaseBackoff: time.Millisecond, ErrorHandler: func(err error) { handled.Store(err) }})
	defer p.Stop()

	var attempts int32
	bad := errors.New("recipient unknown")
	_ = p.Submit(context.Background(), "k1", JobFunc(func(context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return backoff.Permanent(bad)
	}))
	if err := p.Barrier(context.Background(), "k1"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	err, _ := handled.Load().(error)
	if !errors.Is(err, bad) {
		t.Fatalf("error handler got %v", err)
	}
}

func TestShardExecutor_QueueFull(t *testing.T) {
	p := newExec(Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond})
	defer p.Stop()

	block, release := context.WithCancel(context.Background())
	var started int32
	_ = p.Submit(context.Background(), "same", JobFunc(func(context.Context) error {
		atomic.StoreInt32(&started, 1)
		<-block.Done()
		return nil
	}))
	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}

	_ = p.Submit(context.Background(), "same", JobFunc(func(context.Context) error { return nil }))
	err := p.Submit(context.Background(), "same", JobFunc(func(context.Context) error { return nil }))
	var qf *QueueFullError
	if !errors.As(err, &qf) || !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full error, got %v", err)
	}
	release()
}

func TestShardExecutor_SubmitAfterStop(t *testing.T) {
	p := newExec(Config{})
	p.Stop()
	p.Stop()
	if err := p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return nil })); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}

func TestShardExecutor_CancelledJobIsSkipped(t *testing.T) {
	p := newExec(Config{Shards: 1})
	defer p.Stop()

	block := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { <-block; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	if err := p.Submit(ctx, "k", JobFunc(func(context.Context) error { atomic.StoreInt32(&ran, 1); return nil })); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	close(block)

	if err := p.Barrier(context.Background(), "k"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("cancelled job should not run")
	}
}

func TestQueueFullError_ErrorAndIs(t *testing.T) {
	e := &QueueFullError{Shard: 3, Length: 10, Capacity: 16}
	if e.Error() == "" {
		t.Fatal("empty error string")
	}
	if errors.Is(e, ErrExecutorClosed) {
		t.Fatal("unexpected match with ErrExecutorClosed")
	}
}
