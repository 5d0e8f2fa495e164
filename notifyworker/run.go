package notifyworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zegl/eligo/internal/config"
	"github.com/zegl/eligo/internal/logger"
	"github.com/zegl/eligo/internal/notify"
	"github.com/zegl/eligo/internal/outbox"
	"github.com/zegl/eligo/internal/store/migrations"
	"github.com/zegl/eligo/internal/store/postgres"
)

// Run drains the notification outbox into the push gateway and blocks until
// shutdown or error.
func Run() error {
	log := logger.New("notify-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}
	if log, err = logger.WithLevel(log, cfg.LogLevel); err != nil {
		return err
	}
	if cfg.DBDriver != "postgres" {
		return fmt.Errorf("notify worker requires DB_DRIVER=postgres, got %s", cfg.DBDriver)
	}
	if cfg.PushGatewayURL == "" {
		return fmt.Errorf("notify worker requires ELIGO_PUSH_GATEWAY_URL")
	}

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error().Err(err).Msg("postgres open")
		return err
	}
	defer func() { _ = db.Close() }()

	// The sync service owns migrations; refuse to run against an older schema.
	if err := migrations.CheckStatus(db, migrations.Postgres); err != nil {
		log.Error().Err(err).Msg("schema not current")
		return err
	}

	w := outbox.NewWorker(db, notify.NewWebhookNotifier(cfg.PushGatewayURL, 10*time.Second), outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxInterval,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("notify worker exit")
		return err
	}
	return nil
}
