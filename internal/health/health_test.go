package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
	started atomic.Int32
}

func (f *fakeChecker) Name() string    { return f.name }
func (f *fakeChecker) IsHealthy() bool { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) {
	f.started.Store(1)
}

func TestServiceChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeChecker{name: "a"}
	b := &fakeChecker{name: "b"}
	a.healthy.Store(1)
	b.healthy.Store(1)

	svc := NewServiceChecker(zerolog.Nop(), a, b)
	go svc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return svc.IsHealthy() })
	waitTrue(t, func() bool { return a.started.Load() == 1 && b.started.Load() == 1 })

	b.healthy.Store(0)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	b.healthy.Store(1)
	waitTrue(t, func() bool { return svc.IsHealthy() })
}

func TestWaitHealthy(t *testing.T) {
	c := &fakeChecker{name: "c"}
	if err := WaitHealthy(context.Background(), c, 60*time.Millisecond); err != ErrNotHealthy {
		t.Fatalf("expected ErrNotHealthy, got %v", err)
	}
	c.healthy.Store(1)
	if err := WaitHealthy(context.Background(), c, time.Second); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
