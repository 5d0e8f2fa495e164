package syncservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/api"
	"github.com/zegl/eligo/internal/auth"
	"github.com/zegl/eligo/internal/clock"
	"github.com/zegl/eligo/internal/config"
	"github.com/zegl/eligo/internal/factory"
	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/health"
	"github.com/zegl/eligo/internal/logger"
	"github.com/zegl/eligo/internal/notify"
	"github.com/zegl/eligo/internal/services"
	"github.com/zegl/eligo/internal/shardqueue"
	"github.com/zegl/eligo/internal/store"
)

// Run starts the sync service and blocks until shutdown or error.
func Run() error {
	log := logger.New("sync-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if log, err = logger.WithLevel(log, cfg.LogLevel); err != nil {
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("auth_mode", cfg.AuthMode).
		Str("notifier", cfg.Notifier).
		Msg("Sync service starting")

	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	svcHealth := startHealthCheckers(ctx, cfg, log, deps.store)
	if err := health.WaitHealthy(ctx, svcHealth, startupHealthTimeout(cfg.HealthIntervalSeconds)); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	svc := services.NewSyncService(deps.store, clock.Real{}, fanout.NewRouter(log), deps.dispatcher, log)
	router := api.NewRouter(api.Deps{
		Service:       svc,
		Auth:          deps.auth,
		Health:        svcHealth,
		Log:           log,
		SessionBuffer: cfg.SessionBuffer,
	})

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

type dependencies struct {
	store      store.Store
	auth       auth.Authenticator
	exec       *shardqueue.ShardExecutor
	dispatcher *notify.Dispatcher
	closeStore func()
}

// close drains pending notifications before the store goes away.
func (d *dependencies) close() {
	d.dispatcher.Wait()
	d.exec.Stop()
	d.closeStore()
}

// initDependencies constructs required components and fails fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	st, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	n, err := factory.NewNotifier(cfg, st, log)
	if err != nil {
		closeStore()
		log.Error().Stack().Err(err).Msg("Notifier unavailable")
		return nil, err
	}
	a, err := factory.NewAuthenticator(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	exec := factory.NewExecutor(cfg, log)
	return &dependencies{
		store:      st,
		auth:       a,
		exec:       exec,
		dispatcher: notify.NewDispatcher(st, n, exec, log),
		closeStore: closeStore,
	}, nil
}

// startHealthCheckers starts the store checker and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store) *health.ServiceChecker {
	storeChecker := store.NewHealthChecker(st, log, cfg.HealthProbeTimeout())
	svcHealth := health.NewServiceChecker(log, storeChecker)
	go svcHealth.Start(ctx, cfg.HealthInterval())
	return svcHealth
}

// WriteTimeout stays zero: websocket sessions outlive any fixed deadline.
func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the probe interval, at least 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) time.Duration {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		timeout = 60
	}
	return time.Duration(timeout) * time.Second
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
