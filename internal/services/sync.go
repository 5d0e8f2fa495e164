// Package services wires access control, mutation, fan-out, catch-up and
// notification into the use cases the transports expose.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/access"
	"github.com/zegl/eligo/internal/catchup"
	"github.com/zegl/eligo/internal/clock"
	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/mutation"
	"github.com/zegl/eligo/internal/store"
	"github.com/zegl/eligo/internal/syncmap"
)

// BoostNotifier is told about every new boost. It must not block.
type BoostNotifier interface {
	BoostCreated(b model.Boost)
}

// SyncService orchestrates the sync use cases for connected and HTTP clients.
type SyncService struct {
	store   store.Store
	access  *access.Evaluator
	proc    *mutation.Processor
	router  *fanout.Router
	catchup *catchup.Synchronizer
	boosts  BoostNotifier
	log     zerolog.Logger
}

func NewSyncService(s store.Store, c clock.Clock, router *fanout.Router, boosts BoostNotifier, log zerolog.Logger) *SyncService {
	return &SyncService{
		store:   s,
		access:  access.NewEvaluator(s),
		proc:    mutation.NewProcessor(s, c),
		router:  router,
		catchup: catchup.NewSynchronizer(s, log),
		boosts:  boosts,
		log:     log.With().Str("component", "sync").Logger(),
	}
}

// Connect attaches sess to the router, subscribes it to the user's list
// closure and then streams the catch-up. Subscribing before the catch-up read
// means anything committed after that read reaches the session live; the
// overlap is delivered twice, which last-writer-wins absorbs.
func (s *SyncService) Connect(ctx context.Context, sess fanout.Session, lastSynced int64) error {
	hold(sess)
	s.router.Register(sess)
	if err := s.connect(ctx, sess, lastSynced); err != nil {
		s.router.Unregister(sess)
		return err
	}
	return nil
}

func (s *SyncService) connect(ctx context.Context, sess fanout.Session, lastSynced int64) error {
	closure, err := s.catchup.Closure(ctx, sess.UserID())
	if err != nil {
		return err
	}
	s.router.Subscribe(sess, closure...)

	snap, err := s.catchup.Run(ctx, sess.UserID(), lastSynced)
	if err != nil {
		return err
	}
	s.router.Subscribe(sess, snap.Channels...)
	if err := stream(ctx, sess, snap.Events); err != nil {
		return err
	}
	s.log.Debug().Str("session", sess.ID()).Str("user", sess.UserID()).
		Int("events", len(snap.Events)).Int("channels", len(snap.Channels)).Msg("session connected")
	return nil
}

var errSessionClosed = errors.New("session closed during catch-up")

// hold makes sess queue live events until the next stream to it completes.
func hold(sess fanout.Session) {
	if st, ok := sess.(fanout.Streamer); ok {
		st.BeginCatchUp()
	}
}

// stream delivers a catch-up to sess, which must have been held.
func stream(ctx context.Context, sess fanout.Session, evs []fanout.Event) error {
	st, ok := sess.(fanout.Streamer)
	if !ok {
		for _, ev := range evs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !sess.Send(ev) {
				return errSessionClosed
			}
		}
		return nil
	}
	for _, ev := range evs {
		if err := st.Stream(ctx, ev); err != nil {
			return err
		}
	}
	return st.EndCatchUp(ctx)
}

// Disconnect releases every subscription of sess.
func (s *SyncService) Disconnect(sess fanout.Session) {
	s.router.Unregister(sess)
}

// Handle authorises and applies a, then fans the resulting event out.
// origin is the session that sent the action, nil for HTTP callers.
func (s *SyncService) Handle(ctx context.Context, origin fanout.Session, actor string, a mutation.Action) (*mutation.Result, error) {
	req := a.AccessRequest(actor)
	res, err := s.handle(ctx, origin, req, a)
	metrics.MutationsTotal.WithLabelValues(string(req.Kind), string(req.Op), resultLabel(err)).Inc()
	if err != nil {
		ev := s.log.Debug()
		if !isClientError(err) {
			ev = s.log.Error().Stack()
		}
		ev.Str("actor", actor).Str("kind", string(req.Kind)).Str("op", string(req.Op)).Str("id", req.ID).Err(err).Msg("action rejected")
	}
	return res, err
}

func (s *SyncService) handle(ctx context.Context, origin fanout.Session, req access.Request, a mutation.Action) (*mutation.Result, error) {
	if err := s.access.Authorize(ctx, req); err != nil {
		return nil, err
	}
	res, err := s.proc.Apply(ctx, a)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, origin, res)
	return res, nil
}

func (s *SyncService) publish(ctx context.Context, origin fanout.Session, res *mutation.Result) {
	ev := fanout.NewEvent(fanout.EventType(res.Outcome), res.Entity)
	switch e := res.Entity.(type) {
	case *model.List:
		s.router.Publish(ev, origin, fanout.InboxChannel(e.UserID))
	case *model.Item:
		s.router.Publish(ev, origin, listChannel(e.ListID))
	case *model.Boost:
		s.router.Publish(ev, origin, listChannel(e.ListID))
		if res.Outcome == mutation.Created && s.boosts != nil {
			s.boosts.BoostCreated(*e)
		}
	case *model.Membership:
		s.router.Publish(ev, origin, listChannel(e.ListID), fanout.InboxChannel(e.UserID))
		s.joined(ctx, e)
	case *model.User:
		s.router.Publish(ev, origin, fanout.InboxChannel(e.ID))
	default:
		s.router.Publish(ev, origin)
	}
}

// joined gives the new member's live sessions the list they just joined and
// tells the existing participants who joined.
func (s *SyncService) joined(ctx context.Context, m *model.Membership) {
	sessions := s.router.Sessions(fanout.InboxChannel(m.UserID))
	if len(sessions) > 0 {
		for _, sess := range sessions {
			hold(sess)
			s.router.Subscribe(sess, listChannel(m.ListID))
		}
		snap, err := s.catchup.ListScope(ctx, m.UserID, m.ListID, 0)
		if err != nil {
			s.log.Warn().Str("list", m.ListID).Str("user", m.UserID).Err(err).Msg("list catch-up after join")
			snap = &catchup.Snapshot{}
		}
		for _, sess := range sessions {
			s.router.Subscribe(sess, snap.Channels...)
			if err := stream(ctx, sess, snap.Events); err != nil {
				s.log.Warn().Str("session", sess.ID()).Err(err).Msg("stream list after join")
			}
		}
	}

	u, err := s.store.Users().Get(ctx, m.UserID)
	if err != nil {
		if !model.IsNotFoundError(err) {
			s.log.Warn().Str("user", m.UserID).Err(err).Msg("load new member")
		}
		return
	}
	s.router.Publish(fanout.NewEvent(fanout.EventUpdated, u), nil, listChannel(m.ListID))
}

// ChangesSince is the catch-up for clients that poll instead of holding a session.
func (s *SyncService) ChangesSince(ctx context.Context, actor string, lastSynced int64) ([]fanout.Event, error) {
	if actor == "" {
		return nil, model.ErrUnauthorized
	}
	snap, err := s.catchup.Run(ctx, actor, lastSynced)
	if err != nil {
		return nil, err
	}
	return snap.Events, nil
}

// Invitation returns the live lists an invitation id opens.
func (s *SyncService) Invitation(ctx context.Context, actor, invitationID string) ([]syncmap.Value, error) {
	if actor == "" {
		return nil, model.ErrUnauthorized
	}
	if invitationID == "" {
		return nil, model.NewValidationError(model.FieldInvitationID, "is required")
	}
	lists, err := s.store.Lists().ListByInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	out := make([]syncmap.Value, 0, len(lists))
	for _, l := range lists {
		if l.Deleted() {
			continue
		}
		out = append(out, syncmap.Encode(l))
	}
	if len(out) == 0 {
		return nil, model.NewNotFoundError(model.KindList, invitationID)
	}
	return out, nil
}

// UserName returns the display name of userID, empty when no profile exists yet.
func (s *SyncService) UserName(ctx context.Context, userID string) (string, error) {
	u, err := s.store.Users().Get(ctx, userID)
	if model.IsNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func listChannel(id string) string { return fanout.EntityChannel(model.KindList, id) }

func isClientError(err error) bool {
	return errors.Is(err, model.ErrUnauthorized) || errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	}
	return "error"
}
