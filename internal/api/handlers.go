package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/api/respond"
	"github.com/zegl/eligo/internal/api/ws"
	"github.com/zegl/eligo/internal/auth"
	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/mutation"
	"github.com/zegl/eligo/internal/services"
	"github.com/zegl/eligo/internal/syncmap"
)

type handler struct {
	svc      *services.SyncService
	auth     auth.Authenticator
	health   interface{ IsHealthy() bool }
	log      zerolog.Logger
	buffer   int
	upgrader websocket.Upgrader
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handler) checkHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil && !h.health.IsHealthy() {
		respond.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "DOWN"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, healthResponse{Status: "UP"})
}

type changesResponse struct {
	Events []fanout.Event `json:"events"`
}

func (h *handler) getChanges(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserIDFromContext(r.Context())
	since, err := parseLastSynced(r.URL.Query().Get("lastSynced"))
	if err != nil {
		respond.WriteBadRequest(w, "lastSynced must be a non-negative integer")
		return
	}
	evs, err := h.svc.ChangesSince(r.Context(), actor, since)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if evs == nil {
		evs = []fanout.Event{}
	}
	respond.WriteJSON(w, http.StatusOK, changesResponse{Events: evs})
}

type invitationResponse struct {
	Lists []syncmap.Value `json:"lists"`
}

func (h *handler) getInvitation(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserIDFromContext(r.Context())
	lists, err := h.svc.Invitation(r.Context(), actor, mux.Vars(r)["invitationId"])
	if err != nil {
		h.serviceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, invitationResponse{Lists: lists})
}

func (h *handler) postAction(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserIDFromContext(r.Context())
	var in ws.Inbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	frame, status := h.apply(r.Context(), nil, actor, in)
	respond.WriteJSON(w, status, frame)
}

// apply runs one inbound action and returns the reply frame with the HTTP
// status equivalent.
func (h *handler) apply(ctx context.Context, origin fanout.Session, actor string, in ws.Inbound) (ws.Frame, int) {
	a, err := mutation.Parse(in.Type, in.Payload.ID, in.Payload.Fields, in.Payload.Time)
	if err == nil {
		var res *mutation.Result
		res, err = h.svc.Handle(ctx, origin, actor, a)
		if err == nil {
			return ws.Frame{Type: ws.TypeAck, RequestID: in.RequestID, Payload: syncmap.Encode(res.Entity)}, http.StatusOK
		}
	}
	status, code, msg := respond.Classify(err)
	return ws.Frame{Type: ws.TypeError, RequestID: in.RequestID, Error: &ws.FrameError{Code: code, Message: msg}}, status
}

type authPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// sync upgrades to a websocket session: auth frame, catch-up from
// ?lastSynced, then live events and inbound actions until either side leaves.
func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.Authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	since, err := parseLastSynced(r.URL.Query().Get("lastSynced"))
	if err != nil {
		respond.WriteBadRequest(w, "lastSynced must be a non-negative integer")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	sess := ws.NewSession(conn, actor, h.buffer, h.log)
	go sess.WritePump()
	defer sess.Close()
	defer h.svc.Disconnect(sess)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	name, err := h.svc.UserName(ctx, actor)
	if err != nil {
		h.log.Warn().Str("user", actor).Err(err).Msg("load profile for auth frame")
	}
	sess.Write(ws.Frame{Type: ws.TypeAuth, Payload: authPayload{ID: actor, Name: name}})

	inbound := make(chan ws.Inbound, 16)
	go func() {
		defer cancel()
		defer close(inbound)
		for {
			var in ws.Inbound
			if err := sess.ReadInbound(&in); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.log.Debug().Str("session", sess.ID()).Err(err).Msg("read failed")
				}
				return
			}
			select {
			case inbound <- in:
			case <-sess.Done():
				return
			}
		}
	}()

	if err := h.svc.Connect(ctx, sess, since); err != nil {
		if ctx.Err() == nil {
			h.log.Error().Stack().Str("user", actor).Err(err).Msg("catch-up failed")
			_, code, msg := respond.Classify(err)
			sess.Write(ws.Frame{Type: ws.TypeError, Error: &ws.FrameError{Code: code, Message: msg}})
		}
		return
	}

	for {
		select {
		case <-sess.Done():
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			frame, _ := h.apply(ctx, sess, actor, in)
			sess.Write(frame)
		}
	}
}

func (h *handler) serviceError(w http.ResponseWriter, err error) {
	status, _, _ := respond.Classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Stack().Err(err).Msg("request failed")
	}
	respond.WriteServiceError(w, err)
}

func parseLastSynced(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
