// Package sqlstore implements store.Store on database/sql. The postgres and
// sqlite packages open the connection and supply a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Collate is placed after a text column so comparisons are bytewise.
	Collate string
	// IsUniqueViolation reports a primary-key or unique constraint failure.
	IsUniqueViolation func(error) bool
}

// Store is a store.Store over a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
}

func New(db *sql.DB, d Dialect) *Store { return &Store{db: db, d: d} }

func (s *Store) Users() store.Users             { return &users{s} }
func (s *Store) Lists() store.Lists             { return &lists{s} }
func (s *Store) Memberships() store.Memberships { return &memberships{s} }
func (s *Store) Items() store.Items             { return &items{s} }
func (s *Store) Boosts() store.Boosts           { return &boosts{s} }

// DB exposes the underlying handle (outbox, migrations, tests).
func (s *Store) DB() *sql.DB { return s.db }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites ? markers into the dialect's placeholders.
func (s *Store) rebind(q string) string {
	if s.d.Placeholder == nil {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(s.d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) insertErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err) {
		return model.ErrConflict
	}
	return model.WrapStorage(op, err)
}

func (s *Store) getErr(op string, kind model.Kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFoundError(kind, id)
	}
	return model.WrapStorage(op, err)
}

type lwwColumn struct {
	value string
	time  string
	patch *model.Stamped
}

// updateLWW writes each patched column only where the incoming value wins
// against the stored one. The predicate mirrors syncmap.Wins.
func (s *Store) updateLWW(ctx context.Context, op, table string, kind model.Kind, id string, cols ...lwwColumn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WrapStorage(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, s.rebind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one); err != nil {
		return s.getErr(op, kind, id, err)
	}
	for _, c := range cols {
		if c.patch == nil {
			continue
		}
		q := fmt.Sprintf(
			"UPDATE %[1]s SET %[2]s = ?, %[3]s = ? WHERE id = ? AND (%[3]s < ? OR (%[3]s = ? AND %[2]s%[4]s < ?))",
			table, c.value, c.time, s.d.Collate)
		if _, err := tx.ExecContext(ctx, s.rebind(q),
			c.patch.Value, c.patch.Time, id, c.patch.Time, c.patch.Time, c.patch.Value); err != nil {
			return model.WrapStorage(op, err)
		}
	}
	return model.WrapStorage(op, tx.Commit())
}

// softDelete stamps delete_time once. A second delete keeps the first time.
func (s *Store) softDelete(ctx context.Context, op, table string, kind model.Kind, id string, deleteTime int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE "+table+" SET delete_time = ? WHERE id = ? AND delete_time = 0"), deleteTime, id)
	if err != nil {
		return model.WrapStorage(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one); err != nil {
		return s.getErr(op, kind, id, err)
	}
	return nil
}

// --- Users ---
type users struct{ s *Store }

func (r *users) Create(ctx context.Context, u *model.User) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        INSERT INTO users (id, name, name_change_time, create_time)
        VALUES (?,?,?,?)`), u.ID, u.Name, u.NameChangeTime, u.CreateTime)
	return r.s.insertErr("users.create", err)
}

func (r *users) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(`
        SELECT id, name, name_change_time, create_time FROM users WHERE id = ?`), id)
	if err := row.Scan(&u.ID, &u.Name, &u.NameChangeTime, &u.CreateTime); err != nil {
		return nil, r.s.getErr("users.get", model.KindUser, id, err)
	}
	return &u, nil
}

func (r *users) Update(ctx context.Context, id string, p model.UserPatch) error {
	return r.s.updateLWW(ctx, "users.update", "users", model.KindUser, id,
		lwwColumn{"name", "name_change_time", p.Name})
}

// --- Lists ---
type lists struct{ s *Store }

const listColumns = "id, user_id, title, title_change_time, invitation_id, invitation_id_change_time, create_time, delete_time"

func scanList(sc interface{ Scan(...any) error }) (*model.List, error) {
	var l model.List
	err := sc.Scan(&l.ID, &l.UserID, &l.Title, &l.TitleChangeTime, &l.InvitationID, &l.InvitationIDChangeTime, &l.CreateTime, &l.DeleteTime)
	return &l, err
}

func (r *lists) Create(ctx context.Context, l *model.List) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        INSERT INTO lists (`+listColumns+`)
        VALUES (?,?,?,?,?,?,?,?)`),
		l.ID, l.UserID, l.Title, l.TitleChangeTime, l.InvitationID, l.InvitationIDChangeTime, l.CreateTime, l.DeleteTime)
	return r.s.insertErr("lists.create", err)
}

func (r *lists) Get(ctx context.Context, id string) (*model.List, error) {
	l, err := scanList(r.s.db.QueryRowContext(ctx, r.s.rebind("SELECT "+listColumns+" FROM lists WHERE id = ?"), id))
	if err != nil {
		return nil, r.s.getErr("lists.get", model.KindList, id, err)
	}
	return l, nil
}

func (r *lists) ListByOwner(ctx context.Context, userID string) ([]*model.List, error) {
	return r.query(ctx, "lists.by_owner", "SELECT "+listColumns+" FROM lists WHERE user_id = ? ORDER BY id", userID)
}

func (r *lists) ListByInvitation(ctx context.Context, invitationID string) ([]*model.List, error) {
	if invitationID == "" {
		return nil, nil
	}
	return r.query(ctx, "lists.by_invitation", "SELECT "+listColumns+" FROM lists WHERE invitation_id = ? ORDER BY id", invitationID)
}

func (r *lists) query(ctx context.Context, op, q string, args ...any) ([]*model.List, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, model.WrapStorage(op, err)
	}
	defer rows.Close()
	var out []*model.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, model.WrapStorage(op, err)
		}
		out = append(out, l)
	}
	return out, model.WrapStorage(op, rows.Err())
}

func (r *lists) Update(ctx context.Context, id string, p model.ListPatch) error {
	return r.s.updateLWW(ctx, "lists.update", "lists", model.KindList, id,
		lwwColumn{"title", "title_change_time", p.Title},
		lwwColumn{"invitation_id", "invitation_id_change_time", p.InvitationID})
}

func (r *lists) Delete(ctx context.Context, id string, deleteTime int64) error {
	return r.s.softDelete(ctx, "lists.delete", "lists", model.KindList, id, deleteTime)
}

// --- Memberships ---
type memberships struct{ s *Store }

const membershipColumns = "id, list_id, user_id, create_time"

func scanMembership(sc interface{ Scan(...any) error }) (*model.Membership, error) {
	var m model.Membership
	err := sc.Scan(&m.ID, &m.ListID, &m.UserID, &m.CreateTime)
	return &m, err
}

func (r *memberships) Create(ctx context.Context, m *model.Membership) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        INSERT INTO memberships (`+membershipColumns+`) VALUES (?,?,?,?)`),
		m.ID, m.ListID, m.UserID, m.CreateTime)
	return r.s.insertErr("memberships.create", err)
}

func (r *memberships) Get(ctx context.Context, id string) (*model.Membership, error) {
	m, err := scanMembership(r.s.db.QueryRowContext(ctx, r.s.rebind("SELECT "+membershipColumns+" FROM memberships WHERE id = ?"), id))
	if err != nil {
		return nil, r.s.getErr("memberships.get", model.KindMembership, id, err)
	}
	return m, nil
}

func (r *memberships) Find(ctx context.Context, listID, userID string) (*model.Membership, error) {
	m, err := scanMembership(r.s.db.QueryRowContext(ctx, r.s.rebind(
		"SELECT "+membershipColumns+" FROM memberships WHERE list_id = ? AND user_id = ?"), listID, userID))
	if err != nil {
		return nil, r.s.getErr("memberships.find", model.KindMembership, listID+"/"+userID, err)
	}
	return m, nil
}

func (r *memberships) ListByList(ctx context.Context, listID string) ([]*model.Membership, error) {
	return r.query(ctx, "memberships.by_list", "SELECT "+membershipColumns+" FROM memberships WHERE list_id = ? ORDER BY id", listID)
}

func (r *memberships) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return r.query(ctx, "memberships.by_user", "SELECT "+membershipColumns+" FROM memberships WHERE user_id = ? ORDER BY id", userID)
}

func (r *memberships) query(ctx context.Context, op, q string, args ...any) ([]*model.Membership, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, model.WrapStorage(op, err)
	}
	defer rows.Close()
	var out []*model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, model.WrapStorage(op, err)
		}
		out = append(out, m)
	}
	return out, model.WrapStorage(op, rows.Err())
}

// --- Items ---
type items struct{ s *Store }

const itemColumns = "id, list_id, user_id, text, text_change_time, create_time, delete_time"

func scanItem(sc interface{ Scan(...any) error }) (*model.Item, error) {
	var i model.Item
	err := sc.Scan(&i.ID, &i.ListID, &i.UserID, &i.Text, &i.TextChangeTime, &i.CreateTime, &i.DeleteTime)
	return &i, err
}

func (r *items) Create(ctx context.Context, i *model.Item) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        INSERT INTO items (`+itemColumns+`) VALUES (?,?,?,?,?,?,?)`),
		i.ID, i.ListID, i.UserID, i.Text, i.TextChangeTime, i.CreateTime, i.DeleteTime)
	return r.s.insertErr("items.create", err)
}

func (r *items) Get(ctx context.Context, id string) (*model.Item, error) {
	i, err := scanItem(r.s.db.QueryRowContext(ctx, r.s.rebind("SELECT "+itemColumns+" FROM items WHERE id = ?"), id))
	if err != nil {
		return nil, r.s.getErr("items.get", model.KindItem, id, err)
	}
	return i, nil
}

func (r *items) ListByList(ctx context.Context, listID string) ([]*model.Item, error) {
	const op = "items.by_list"
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind("SELECT "+itemColumns+" FROM items WHERE list_id = ? ORDER BY id"), listID)
	if err != nil {
		return nil, model.WrapStorage(op, err)
	}
	defer rows.Close()
	var out []*model.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, model.WrapStorage(op, err)
		}
		out = append(out, i)
	}
	return out, model.WrapStorage(op, rows.Err())
}

func (r *items) Update(ctx context.Context, id string, p model.ItemPatch) error {
	return r.s.updateLWW(ctx, "items.update", "items", model.KindItem, id,
		lwwColumn{"text", "text_change_time", p.Text})
}

func (r *items) Delete(ctx context.Context, id string, deleteTime int64) error {
	return r.s.softDelete(ctx, "items.delete", "items", model.KindItem, id, deleteTime)
}

// --- Boosts ---
type boosts struct{ s *Store }

const boostColumns = "id, item_id, list_id, user_id, create_time"

func scanBoost(sc interface{ Scan(...any) error }) (*model.Boost, error) {
	var b model.Boost
	err := sc.Scan(&b.ID, &b.ItemID, &b.ListID, &b.UserID, &b.CreateTime)
	return &b, err
}

func (r *boosts) Create(ctx context.Context, b *model.Boost) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        INSERT INTO boosts (`+boostColumns+`) VALUES (?,?,?,?,?)`),
		b.ID, b.ItemID, b.ListID, b.UserID, b.CreateTime)
	return r.s.insertErr("boosts.create", err)
}

func (r *boosts) Get(ctx context.Context, id string) (*model.Boost, error) {
	b, err := scanBoost(r.s.db.QueryRowContext(ctx, r.s.rebind("SELECT "+boostColumns+" FROM boosts WHERE id = ?"), id))
	if err != nil {
		return nil, r.s.getErr("boosts.get", model.KindBoost, id, err)
	}
	return b, nil
}

func (r *boosts) ListByList(ctx context.Context, listID string) ([]*model.Boost, error) {
	const op = "boosts.by_list"
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind("SELECT "+boostColumns+" FROM boosts WHERE list_id = ? ORDER BY id"), listID)
	if err != nil {
		return nil, model.WrapStorage(op, err)
	}
	defer rows.Close()
	var out []*model.Boost
	for rows.Next() {
		b, err := scanBoost(rows)
		if err != nil {
			return nil, model.WrapStorage(op, err)
		}
		out = append(out, b)
	}
	return out, model.WrapStorage(op, rows.Err())
}
