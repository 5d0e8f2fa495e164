package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/api/recovery"
	"github.com/zegl/eligo/internal/auth"
	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/services"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Service *services.SyncService
	Auth    auth.Authenticator
	Health  interface{ IsHealthy() bool }
	Log     zerolog.Logger

	// SessionBuffer bounds the outbound queue of each websocket session.
	SessionBuffer int
}

// NewRouter creates the HTTP router with every route of the sync service.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(recovery.Middleware(d.Log))
	router.Use(requestLogging(d.Log))

	h := &handler{
		svc:    d.Service,
		auth:   d.Auth,
		health: d.Health,
		log:    d.Log.With().Str("component", "api").Logger(),
		buffer: d.SessionBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.HandleFunc("/api/health", h.checkHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// The websocket route authenticates before upgrading so failures are
	// plain HTTP responses.
	router.HandleFunc("/api/sync", h.sync).Methods(http.MethodGet)

	authed := router.PathPrefix("/api").Subrouter()
	authed.Use(auth.Middleware(d.Auth))
	authed.HandleFunc("/actions", h.postAction).Methods(http.MethodPost)
	authed.HandleFunc("/changes", h.getChanges).Methods(http.MethodGet)
	authed.HandleFunc("/invitations/{invitationId}", h.getInvitation).Methods(http.MethodGet)

	return router
}

func requestLogging(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(m.Code)).Observe(m.Duration.Seconds())
			log.Debug().Str("method", r.Method).Str("route", route).Int("status", m.Code).Dur("duration", m.Duration).Msg("handled")
		})
	}
}
