// Package catchup computes the events a reconnecting client needs to converge.
package catchup

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
)

// Snapshot is the outcome of one catch-up run.
type Snapshot struct {
	// Events are the entities changed after the watermark, parents before children.
	Events []fanout.Event
	// Channels are the entity channels of the whole closure, changed or not.
	Channels []string
}

// Synchronizer reads the actor's list closure from the store. It never writes.
type Synchronizer struct {
	store store.Store
	log   zerolog.Logger
}

func NewSynchronizer(s store.Store, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{store: s, log: log.With().Str("component", "catchup").Logger()}
}

// Run gathers every list the user owns or is a member of, with their
// memberships, items, boosts and related users, and keeps the entities whose
// last-updated time is after lastSynced. lastSynced == 0 keeps everything.
// Missing branches are skipped; storage failures abort.
func (s *Synchronizer) Run(ctx context.Context, userID string, lastSynced int64) (*Snapshot, error) {
	snap, err := s.run(ctx, userID, lastSynced)
	if err != nil {
		return nil, err
	}
	metrics.CatchupEvents.Observe(float64(len(snap.Events)))
	return snap, nil
}

// Closure returns the entity channels of everything the user can reach,
// without any events.
func (s *Synchronizer) Closure(ctx context.Context, userID string) ([]string, error) {
	snap, err := s.run(ctx, userID, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	return snap.Channels, nil
}

func (s *Synchronizer) run(ctx context.Context, userID string, lastSynced int64) (*Snapshot, error) {
	owned, err := s.store.Lists().ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	joined, err := s.store.Memberships().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	lists := owned
	for _, m := range joined {
		l, err := s.store.Lists().Get(ctx, m.ListID)
		if model.IsNotFoundError(err) {
			s.log.Debug().Str("list", m.ListID).Str("membership", m.ID).Msg("membership points at missing list")
			continue
		}
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return s.collect(ctx, userID, lists, lastSynced)
}

// ListScope is Run restricted to a single list, used when a user joins it.
func (s *Synchronizer) ListScope(ctx context.Context, userID, listID string, lastSynced int64) (*Snapshot, error) {
	l, err := s.store.Lists().Get(ctx, listID)
	if err != nil {
		return nil, err
	}
	snap, err := s.collect(ctx, userID, []*model.List{l}, lastSynced)
	if err != nil {
		return nil, err
	}
	metrics.CatchupEvents.Observe(float64(len(snap.Events)))
	return snap, nil
}

type graph struct {
	seen     map[string]struct{}
	entities []model.Entity
	userIDs  map[string]struct{}
}

func (g *graph) add(e model.Entity) bool {
	key := fanout.EntityChannel(e.EntityKind(), e.EntityID())
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	g.entities = append(g.entities, e)
	return true
}

func (s *Synchronizer) collect(ctx context.Context, userID string, lists []*model.List, lastSynced int64) (*Snapshot, error) {
	g := &graph{seen: map[string]struct{}{}, userIDs: map[string]struct{}{userID: {}}}

	for _, l := range lists {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !g.add(l) {
			continue
		}
		g.userIDs[l.UserID] = struct{}{}
		// A deleted list still travels so clients learn of it; its children do not.
		if l.Deleted() {
			continue
		}

		ms, err := s.store.Memberships().ListByList(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			g.add(m)
			g.userIDs[m.UserID] = struct{}{}
		}
		items, err := s.store.Items().ListByList(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			g.add(it)
			g.userIDs[it.UserID] = struct{}{}
		}
		boosts, err := s.store.Boosts().ListByList(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range boosts {
			g.add(b)
			g.userIDs[b.UserID] = struct{}{}
		}
	}

	var users []model.Entity
	for _, id := range sortedKeys(g.userIDs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := s.store.Users().Get(ctx, id)
		if model.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	snap := &Snapshot{}
	for _, e := range g.entities {
		snap.Channels = append(snap.Channels, fanout.EntityChannel(e.EntityKind(), e.EntityID()))
	}
	for _, u := range users {
		snap.Channels = append(snap.Channels, fanout.EntityChannel(u.EntityKind(), u.EntityID()))
	}

	graphEvents := changedSince(g.entities, lastSynced)
	sort.SliceStable(graphEvents, func(i, j int) bool {
		a, b := graphEvents[i], graphEvents[j]
		if a.UpdateTime() != b.UpdateTime() {
			return a.UpdateTime() < b.UpdateTime()
		}
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		return a.EntityID() < b.EntityID()
	})
	userEvents := changedSince(users, lastSynced)
	sort.SliceStable(userEvents, func(i, j int) bool {
		a, b := userEvents[i], userEvents[j]
		if a.UpdateTime() != b.UpdateTime() {
			return a.UpdateTime() < b.UpdateTime()
		}
		return a.EntityID() < b.EntityID()
	})

	for _, e := range append(graphEvents, userEvents...) {
		snap.Events = append(snap.Events, fanout.NewEvent(fanout.EventUpdated, e))
	}
	return snap, nil
}

func changedSince(es []model.Entity, lastSynced int64) []model.Entity {
	out := make([]model.Entity, 0, len(es))
	for _, e := range es {
		if lastSynced == 0 || e.UpdateTime() > lastSynced {
			out = append(out, e)
		}
	}
	return out
}

// rank orders parents before children when timestamps tie.
func rank(e model.Entity) int {
	switch e.EntityKind() {
	case model.KindList:
		return 0
	case model.KindMembership:
		return 1
	case model.KindItem:
		return 2
	case model.KindBoost:
		return 3
	}
	return 4
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
