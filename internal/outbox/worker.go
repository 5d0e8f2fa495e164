package outbox

import (
	"context"
	"database/sql"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/notify"
)

const (
	selectReadyRowsSQL = `
SELECT id, user_id, title, body, attempt_count
FROM notification_outbox
WHERE status = 'pending' AND next_attempt_at <= now()
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	markDoneSQL = `UPDATE notification_outbox SET status='done', updated_at=now() WHERE id=$1`

	markRetrySQL = `
UPDATE notification_outbox
SET attempt_count = attempt_count + 1,
    last_error = $2,
    next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempt_count+1), 300)),
    updated_at = now()
WHERE id=$1`

	markDeadSQL = `
UPDATE notification_outbox
SET status='dead', attempt_count = attempt_count + 1, last_error = $2, updated_at = now()
WHERE id=$1`
)

// Config controls batch size, polling cadence and the retry ceiling.
type Config struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

// Worker leases pending outbox rows and hands them to a Notifier.
type Worker struct {
	db       *sql.DB
	notifier notify.Notifier
	cfg      Config
	log      zerolog.Logger
}

func NewWorker(db *sql.DB, n notify.Notifier, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &Worker{db: db, notifier: n, cfg: cfg, log: log.With().Str("component", "outbox").Logger()}
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("outbox process")
			}
		}
	}
}

type row struct {
	id       int64
	userID   string
	msg      notify.Message
	attempts int
}

// ProcessOnce handles one batch and returns how many rows it leased.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := w.lease(ctx, tx)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		err := w.notifier.Notify(ctx, r.userID, r.msg)
		switch {
		case err == nil:
			metrics.OutboxProcessedTotal.WithLabelValues("done").Inc()
			_, err = tx.ExecContext(ctx, markDoneSQL, r.id)
		case isPermanent(err) || r.attempts+1 >= w.cfg.MaxAttempts:
			metrics.OutboxProcessedTotal.WithLabelValues("dead").Inc()
			w.log.Warn().Int64("id", r.id).Str("user", r.userID).Err(err).Msg("giving up on notification")
			_, err = tx.ExecContext(ctx, markDeadSQL, r.id, err.Error())
		default:
			metrics.OutboxProcessedTotal.WithLabelValues("retry").Inc()
			_, err = tx.ExecContext(ctx, markRetrySQL, r.id, err.Error())
		}
		if err != nil {
			w.log.Error().Err(err).Int64("id", r.id).Msg("update outbox row")
		}
	}
	return len(rows), tx.Commit()
}

func (w *Worker) lease(ctx context.Context, tx *sql.Tx) ([]row, error) {
	rs, err := tx.QueryContext(ctx, selectReadyRowsSQL, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var r row
		if err := rs.Scan(&r.id, &r.userID, &r.msg.Title, &r.msg.Body, &r.attempts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
