package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is implemented by component-level checkers (store, outbox).
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// HealthPinger can be implemented by components to expose a specialized
// health check. HealthPing must return nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// ServiceChecker folds component checkers into one service health flag.
type ServiceChecker struct {
	healthy atomic.Int32
	deps    []Checker
	log     zerolog.Logger
}

func NewServiceChecker(log zerolog.Logger, deps ...Checker) *ServiceChecker {
	h := &ServiceChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Start starts every component checker and then re-evaluates the service flag
// on each tick until ctx is done.
func (h *ServiceChecker) Start(ctx context.Context, interval time.Duration) {
	for _, c := range h.deps {
		go c.Start(ctx, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range h.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		if cur := h.healthy.Load(); cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

// ErrNotHealthy is returned by WaitHealthy when the deadline passes first.
var ErrNotHealthy = errors.New("service did not become healthy")

// WaitHealthy polls h until it reports healthy or timeout elapses.
func WaitHealthy(ctx context.Context, h interface{ IsHealthy() bool }, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if h.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNotHealthy
		case <-tick.C:
		}
	}
}
