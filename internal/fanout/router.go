// Package fanout routes entity events to the live sessions subscribed to them.
package fanout

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/metrics"
)

// Session is one connected client. Send must not block: it queues the event
// and reports false when the session is gone or cannot keep up.
type Session interface {
	ID() string
	UserID() string
	Send(Event) bool
}

// Streamer is implemented by sessions that take catch-up with backpressure.
// Between BeginCatchUp and the matching EndCatchUp, Send holds live events
// and EndCatchUp flushes them behind the streamed ones.
type Streamer interface {
	BeginCatchUp()
	Stream(ctx context.Context, ev Event) error
	EndCatchUp(ctx context.Context) error
}

type member struct {
	session  Session
	channels map[string]struct{}
}

// Router holds every live session and its explicit subscription set.
type Router struct {
	mu       sync.RWMutex
	members  map[string]*member            // session id → member
	channels map[string]map[string]Session // channel → session id → session
	log      zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		members:  map[string]*member{},
		channels: map[string]map[string]Session{},
		log:      log.With().Str("component", "fanout").Logger(),
	}
}

// Register adds s and subscribes it to its user's inbox channel. Registering
// an already registered session is a no-op.
func (r *Router) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[s.ID()]; ok {
		return
	}
	r.members[s.ID()] = &member{session: s, channels: map[string]struct{}{}}
	r.subscribeLocked(s.ID(), InboxChannel(s.UserID()))
	metrics.SessionsActive.Inc()
}

// Unregister removes s and all of its subscriptions.
func (r *Router) Unregister(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[s.ID()]
	if !ok {
		return
	}
	for ch := range m.channels {
		subs := r.channels[ch]
		delete(subs, s.ID())
		if len(subs) == 0 {
			delete(r.channels, ch)
		}
	}
	delete(r.members, s.ID())
	metrics.SessionsActive.Dec()
}

// Subscribe adds channels to the subscription set of a registered session.
func (r *Router) Subscribe(s Session, channels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[s.ID()]; !ok {
		return
	}
	for _, ch := range channels {
		r.subscribeLocked(s.ID(), ch)
	}
}

func (r *Router) subscribeLocked(sessionID, ch string) {
	m := r.members[sessionID]
	m.channels[ch] = struct{}{}
	subs, ok := r.channels[ch]
	if !ok {
		subs = map[string]Session{}
		r.channels[ch] = subs
	}
	subs[sessionID] = m.session
}

// Subscribed reports whether s holds ch.
func (r *Router) Subscribed(s Session, ch string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[ch][s.ID()]
	return ok
}

// Sessions returns the registered sessions subscribed to any of channels,
// each once, ordered by session id.
func (r *Router) Sessions(channels ...string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionsLocked(channels)
}

func (r *Router) sessionsLocked(channels []string) []Session {
	seen := map[string]Session{}
	for _, ch := range channels {
		for id, s := range r.channels[ch] {
			seen[id] = s
		}
	}
	out := make([]Session, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Publish delivers ev once to every session subscribed to any of channels and
// to origin when it is registered, then subscribes every recipient to the
// event's entity channel. It returns the number of sessions that accepted the event.
func (r *Router) Publish(ev Event, origin Session, channels ...string) int {
	chs := append(append(make([]string, 0, len(channels)+1), channels...), ev.Channel())

	r.mu.Lock()
	recipients := r.sessionsLocked(chs)
	if origin != nil {
		if _, ok := r.members[origin.ID()]; ok && !containsSession(recipients, origin.ID()) {
			recipients = append(recipients, origin)
		}
	}
	for _, s := range recipients {
		r.subscribeLocked(s.ID(), ev.Channel())
	}
	r.mu.Unlock()

	delivered := 0
	for _, s := range recipients {
		if r.deliver(s, ev) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(s Session, ev Event) bool {
	if !s.Send(ev) {
		metrics.EventsDroppedTotal.Inc()
		r.log.Warn().Str("session", s.ID()).Str("user", s.UserID()).Str("type", ev.Type).Msg("event dropped")
		return false
	}
	metrics.EventsDeliveredTotal.WithLabelValues(string(ev.Kind)).Inc()
	return true
}

func containsSession(ss []Session, id string) bool {
	for _, s := range ss {
		if s.ID() == id {
			return true
		}
	}
	return false
}
