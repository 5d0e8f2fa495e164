package store

import (
	"context"

	"github.com/zegl/eligo/internal/model"
)

// Store exposes the record collections the sync engine reads and writes.
// Implementations live under internal/store/<driver>/ (memory, sqlite, postgres).
//
// Get returns soft-deleted rows as well; callers decide whether a deleted
// entity counts as absent. Create fails with model.ErrConflict when the id is
// taken. Update applies each patched field only if it wins the last-writer-wins
// comparison against the stored value, atomically per field.
type Store interface {
	Users() Users
	Lists() Lists
	Memberships() Memberships
	Items() Items
	Boosts() Boosts
}

type Users interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	Update(ctx context.Context, id string, p model.UserPatch) error
}

type Lists interface {
	Create(ctx context.Context, l *model.List) error
	Get(ctx context.Context, id string) (*model.List, error)
	ListByOwner(ctx context.Context, userID string) ([]*model.List, error)
	ListByInvitation(ctx context.Context, invitationID string) ([]*model.List, error)
	Update(ctx context.Context, id string, p model.ListPatch) error
	Delete(ctx context.Context, id string, deleteTime int64) error
}

type Memberships interface {
	Create(ctx context.Context, m *model.Membership) error
	Get(ctx context.Context, id string) (*model.Membership, error)
	Find(ctx context.Context, listID, userID string) (*model.Membership, error)
	ListByList(ctx context.Context, listID string) ([]*model.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Membership, error)
}

type Items interface {
	Create(ctx context.Context, i *model.Item) error
	Get(ctx context.Context, id string) (*model.Item, error)
	ListByList(ctx context.Context, listID string) ([]*model.Item, error)
	Update(ctx context.Context, id string, p model.ItemPatch) error
	Delete(ctx context.Context, id string, deleteTime int64) error
}

type Boosts interface {
	Create(ctx context.Context, b *model.Boost) error
	Get(ctx context.Context, id string) (*model.Boost, error)
	ListByList(ctx context.Context, listID string) ([]*model.Boost, error)
}
