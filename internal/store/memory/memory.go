// Package memory is a process-local store.Store used in tests and the "memory" driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
	"github.com/zegl/eligo/internal/syncmap"
)

// Store keeps every collection in maps guarded by one RWMutex. Returned
// entities are copies.
type Store struct {
	mu          sync.RWMutex
	users       map[string]model.User
	lists       map[string]model.List
	memberships map[string]model.Membership
	items       map[string]model.Item
	boosts      map[string]model.Boost
}

func New() *Store {
	return &Store{
		users:       map[string]model.User{},
		lists:       map[string]model.List{},
		memberships: map[string]model.Membership{},
		items:       map[string]model.Item{},
		boosts:      map[string]model.Boost{},
	}
}

func (s *Store) Users() store.Users             { return users{s} }
func (s *Store) Lists() store.Lists             { return lists{s} }
func (s *Store) Memberships() store.Memberships { return memberships{s} }
func (s *Store) Items() store.Items             { return items{s} }
func (s *Store) Boosts() store.Boosts           { return boosts{s} }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return ctx.Err() }

// apply overwrites *cur with p when p wins against it.
func apply(cur *string, curTime *int64, p *model.Stamped) {
	if p == nil {
		return
	}
	if syncmap.Wins(*cur, *curTime, p.Value, p.Time) {
		*cur, *curTime = p.Value, p.Time
	}
}

// --- Users ---
type users struct{ s *Store }

func (r users) Create(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return model.ErrConflict
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r users) Get(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, model.NewNotFoundError(model.KindUser, id)
	}
	return &u, nil
}

func (r users) Update(ctx context.Context, id string, p model.UserPatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.NewNotFoundError(model.KindUser, id)
	}
	apply(&u.Name, &u.NameChangeTime, p.Name)
	r.s.users[id] = u
	return nil
}

// --- Lists ---
type lists struct{ s *Store }

func (r lists) Create(ctx context.Context, l *model.List) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lists[l.ID]; ok {
		return model.ErrConflict
	}
	r.s.lists[l.ID] = *l
	return nil
}

func (r lists) Get(ctx context.Context, id string) (*model.List, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.lists[id]
	if !ok {
		return nil, model.NewNotFoundError(model.KindList, id)
	}
	return &l, nil
}

func (r lists) ListByOwner(ctx context.Context, userID string) ([]*model.List, error) {
	return r.filter(func(l *model.List) bool { return l.UserID == userID }), nil
}

func (r lists) ListByInvitation(ctx context.Context, invitationID string) ([]*model.List, error) {
	if invitationID == "" {
		return nil, nil
	}
	return r.filter(func(l *model.List) bool { return l.InvitationID == invitationID }), nil
}

func (r lists) filter(keep func(*model.List) bool) []*model.List {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.List
	for _, l := range r.s.lists {
		l := l
		if keep(&l) {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r lists) Update(ctx context.Context, id string, p model.ListPatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[id]
	if !ok {
		return model.NewNotFoundError(model.KindList, id)
	}
	apply(&l.Title, &l.TitleChangeTime, p.Title)
	apply(&l.InvitationID, &l.InvitationIDChangeTime, p.InvitationID)
	r.s.lists[id] = l
	return nil
}

func (r lists) Delete(ctx context.Context, id string, deleteTime int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[id]
	if !ok {
		return model.NewNotFoundError(model.KindList, id)
	}
	if l.DeleteTime == 0 {
		l.DeleteTime = deleteTime
		r.s.lists[id] = l
	}
	return nil
}

// --- Memberships ---
type memberships struct{ s *Store }

func (r memberships) Create(ctx context.Context, m *model.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.memberships[m.ID]; ok {
		return model.ErrConflict
	}
	for _, cur := range r.s.memberships {
		if cur.ListID == m.ListID && cur.UserID == m.UserID {
			return model.ErrConflict
		}
	}
	r.s.memberships[m.ID] = *m
	return nil
}

func (r memberships) Get(ctx context.Context, id string) (*model.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memberships[id]
	if !ok {
		return nil, model.NewNotFoundError(model.KindMembership, id)
	}
	return &m, nil
}

func (r memberships) Find(ctx context.Context, listID, userID string) (*model.Membership, error) {
	found := r.filter(func(m *model.Membership) bool { return m.ListID == listID && m.UserID == userID })
	if len(found) == 0 {
		return nil, model.NewNotFoundError(model.KindMembership, listID+"/"+userID)
	}
	return found[0], nil
}

func (r memberships) ListByList(ctx context.Context, listID string) ([]*model.Membership, error) {
	return r.filter(func(m *model.Membership) bool { return m.ListID == listID }), nil
}

func (r memberships) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return r.filter(func(m *model.Membership) bool { return m.UserID == userID }), nil
}

func (r memberships) filter(keep func(*model.Membership) bool) []*model.Membership {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Membership
	for _, m := range r.s.memberships {
		m := m
		if keep(&m) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Items ---
type items struct{ s *Store }

func (r items) Create(ctx context.Context, i *model.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[i.ID]; ok {
		return model.ErrConflict
	}
	r.s.items[i.ID] = *i
	return nil
}

func (r items) Get(ctx context.Context, id string) (*model.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, ok := r.s.items[id]
	if !ok {
		return nil, model.NewNotFoundError(model.KindItem, id)
	}
	return &i, nil
}

func (r items) ListByList(ctx context.Context, listID string) ([]*model.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Item
	for _, i := range r.s.items {
		i := i
		if i.ListID == listID {
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (r items) Update(ctx context.Context, id string, p model.ItemPatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.items[id]
	if !ok {
		return model.NewNotFoundError(model.KindItem, id)
	}
	apply(&i.Text, &i.TextChangeTime, p.Text)
	r.s.items[id] = i
	return nil
}

func (r items) Delete(ctx context.Context, id string, deleteTime int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.items[id]
	if !ok {
		return model.NewNotFoundError(model.KindItem, id)
	}
	if i.DeleteTime == 0 {
		i.DeleteTime = deleteTime
		r.s.items[id] = i
	}
	return nil
}

// --- Boosts ---
type boosts struct{ s *Store }

func (r boosts) Create(ctx context.Context, b *model.Boost) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.boosts[b.ID]; ok {
		return model.ErrConflict
	}
	r.s.boosts[b.ID] = *b
	return nil
}

func (r boosts) Get(ctx context.Context, id string) (*model.Boost, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.boosts[id]
	if !ok {
		return nil, model.NewNotFoundError(model.KindBoost, id)
	}
	return &b, nil
}

func (r boosts) ListByList(ctx context.Context, listID string) ([]*model.Boost, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Boost
	for _, b := range r.s.boosts {
		b := b
		if b.ListID == listID {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
