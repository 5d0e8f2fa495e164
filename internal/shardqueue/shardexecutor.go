// Package shardqueue provides a sharded work queue that keeps FIFO order per
// key while running different keys in parallel. Notification delivery uses the
// recipient user id as key, so one user's notifications arrive in order.
package shardqueue

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type queuedJob struct {
	ctx context.Context
	job Job
}

// ShardExecutor executes Jobs on worker goroutines partitioned by a stable hash
// of the key.
type ShardExecutor struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queuedJob // len == cfg.Shards

	done   chan struct{} // closed in Stop()
	closed uint32        // 0 → running, 1 → closed

	wg sync.WaitGroup
}

// NewShardExecutor constructs the executor and starts its shard workers.
func NewShardExecutor(cfg Config, log zerolog.Logger) *ShardExecutor {
	cfg = cfg.withDefaults()
	p := &ShardExecutor{
		cfg:    cfg,
		log:    log.With().Str("component", "shardqueue").Logger(),
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job for the shard derived from key.
//
//   - Returns nil on success.
//   - Returns ErrExecutorClosed if the executor is stopped.
//   - Returns a *QueueFullError (matching ErrQueueFull) if the shard is still
//     full after EnqueueTimeout.
//   - Returns ctx.Err() if ctx is cancelled first.
//
// Callers must not Submit concurrently for the same key if they rely on FIFO order.
func (p *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}
	select {
	case <-p.done:
		return ErrExecutorClosed
	default:
	}

	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queuedJob{ctx: ctx, job: job}:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-p.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier enqueues a no-op job on the shard for key and waits until it runs,
// so every job submitted earlier for that key has completed.
func (p *ShardExecutor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	if err := p.Submit(ctx, key, JobFunc(func(context.Context) error {
		close(done)
		return nil
	})); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop lets every worker drain its queue, waits for them, and returns.
// Idempotent and safe for concurrent use.
func (p *ShardExecutor) Stop() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.log.Info().Int("shards", p.cfg.Shards).Msg("stopping executor, draining shards")
	close(p.done)
	p.wg.Wait()
	p.log.Info().Msg("executor stopped, all queues drained")
}

// Close lets ShardExecutor satisfy io.Closer.
func (p *ShardExecutor) Close() error {
	p.Stop()
	return nil
}

func (p *ShardExecutor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("shard", idx).Interface("panic", r).Msg("worker panic")
		}
	}()

	label := labelFor(idx)
	for {
		select {
		case qj := <-ch:
			if qj.job != nil {
				p.run(label, qj)
			}
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			drained := 0
			for {
				select {
				case qj := <-ch:
					if qj.job != nil {
						p.safeHandleError(qj.job.Run(qj.ctx))
						drained++
					}
				default:
					if drained > 0 {
						p.log.Info().Int("shard", idx).Int("jobs", drained).Msg("drained remaining jobs")
					}
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// run executes one job with exponential backoff. A job that returns a
// backoff.Permanent error is not retried.
func (p *ShardExecutor) run(label string, qj queuedJob) {
	if err := qj.ctx.Err(); err != nil {
		p.safeHandleError(err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.Reset()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := qj.job.Run(qj.ctx)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if err == nil {
			return
		}
		if isPermanent(err) || attempt >= p.cfg.MaxAttempts {
			p.safeHandleError(err)
			return
		}
		select {
		case <-time.After(exp.NextBackOff()):
		case <-p.done:
			p.safeHandleError(err)
			return
		case <-qj.ctx.Done():
			p.safeHandleError(qj.ctx.Err())
			return
		}
	}
}

func (p *ShardExecutor) safeHandleError(err error) {
	if err == nil || p.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("error handler panic")
		}
	}()
	p.cfg.ErrorHandler(err)
}

func (p *ShardExecutor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.cfg.Shards))
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
