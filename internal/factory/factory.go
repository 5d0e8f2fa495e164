// Package factory builds the configured adapters for the binaries.
package factory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/auth"
	"github.com/zegl/eligo/internal/config"
	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/notify"
	"github.com/zegl/eligo/internal/outbox"
	"github.com/zegl/eligo/internal/shardqueue"
	"github.com/zegl/eligo/internal/store"
	"github.com/zegl/eligo/internal/store/memory"
	"github.com/zegl/eligo/internal/store/postgres"
	"github.com/zegl/eligo/internal/store/sqlite"
)

// DBStore is a store backed by a database/sql pool.
type DBStore interface {
	store.Store
	DB() *sql.DB
	Close() error
}

// NewStore returns the store selected by cfg.DBDriver and a function that
// releases it. SQL stores are migrated before they are returned.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, func(), error) {
	switch cfg.DBDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	case "sqlite":
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, closer(st, log), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("ELIGO_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		st, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, closer(st, log), nil
	}
	return nil, nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
}

func closer(st DBStore, log zerolog.Logger) func() {
	return func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
}

// NewNotifier returns the notifier selected by cfg.Notifier. The outbox
// notifier needs the Postgres store it writes into.
func NewNotifier(cfg *config.Config, st store.Store, log zerolog.Logger) (notify.Notifier, error) {
	switch cfg.Notifier {
	case "log":
		return notify.NewLogNotifier(log), nil
	case "webhook":
		if cfg.PushGatewayURL == "" {
			return nil, fmt.Errorf("ELIGO_PUSH_GATEWAY_URL is required when NOTIFIER=webhook")
		}
		return notify.NewWebhookNotifier(cfg.PushGatewayURL, 10*time.Second), nil
	case "outbox":
		db, ok := st.(DBStore)
		if !ok || cfg.DBDriver != "postgres" {
			return nil, fmt.Errorf("NOTIFIER=outbox requires DB_DRIVER=postgres")
		}
		return outbox.NewNotifier(db.DB()), nil
	}
	return nil, fmt.Errorf("unknown NOTIFIER: %s", cfg.Notifier)
}

// NewExecutor returns the sharded executor notifications are delivered on.
func NewExecutor(cfg *config.Config, log zerolog.Logger) *shardqueue.ShardExecutor {
	return shardqueue.NewShardExecutor(shardqueue.Config{
		Shards:    cfg.NotifyShards,
		QueueSize: cfg.NotifyQueueSize,
		ErrorHandler: func(err error) {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Msg("notification abandoned")
		},
	}, log)
}

// NewAuthenticator returns the authenticator selected by cfg.AuthMode.
func NewAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case "dev":
		return auth.HeaderAuthenticator{}, nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("ELIGO_JWT_SECRET is required when AUTH_MODE=jwt")
		}
		return auth.NewJWTAuthenticator(cfg.JWTSecret), nil
	}
	return nil, fmt.Errorf("unknown AUTH_MODE: %s", cfg.AuthMode)
}
