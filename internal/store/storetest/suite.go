package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// makeStore must return a clean store; ids are random so a shared database is fine.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, makeStore(t)) })
	t.Run("lists", func(t *testing.T) { testLists(t, makeStore(t)) })
	t.Run("memberships", func(t *testing.T) { testMemberships(t, makeStore(t)) })
	t.Run("items", func(t *testing.T) { testItems(t, makeStore(t)) })
	t.Run("boosts", func(t *testing.T) { testBoosts(t, makeStore(t)) })
}

func id(prefix string) string { return prefix + "-" + uuid.New().String() }

func stamped(v string, t int64) *model.Stamped { return &model.Stamped{Value: v, Time: t} }

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := id("u")

	if _, err := s.Users().Get(ctx, uid); !model.IsNotFoundError(err) {
		t.Fatalf("Get missing user: want not found, got %v", err)
	}
	if err := s.Users().Create(ctx, &model.User{ID: uid, Name: "Alice", NameChangeTime: 100, CreateTime: 100}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.Users().Create(ctx, &model.User{ID: uid, Name: "Dup"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateUser duplicate: want conflict, got %v", err)
	}
	if err := s.Users().Update(ctx, uid, model.UserPatch{Name: stamped("Alicia", 200)}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := s.Users().Update(ctx, uid, model.UserPatch{Name: stamped("Stale", 150)}); err != nil {
		t.Fatalf("UpdateUser stale: %v", err)
	}
	got, err := s.Users().Get(ctx, uid)
	if err != nil || got.Name != "Alicia" || got.NameChangeTime != 200 || got.CreateTime != 100 {
		t.Fatalf("GetUser: got=%+v err=%v", got, err)
	}
	if err := s.Users().Update(ctx, id("u"), model.UserPatch{Name: stamped("x", 1)}); !model.IsNotFoundError(err) {
		t.Fatalf("UpdateUser missing: want not found, got %v", err)
	}
}

func testLists(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := id("u")
	lid := id("l")
	inv := id("inv")

	l := &model.List{ID: lid, UserID: owner, Title: "Groceries", TitleChangeTime: 100, InvitationID: inv, InvitationIDChangeTime: 100, CreateTime: 100}
	if err := s.Lists().Create(ctx, l); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if err := s.Lists().Create(ctx, l); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateList duplicate: want conflict, got %v", err)
	}

	// Partial update keeps untouched fields and their change times.
	if err := s.Lists().Update(ctx, lid, model.ListPatch{Title: stamped("Food", 300)}); err != nil {
		t.Fatalf("UpdateList: %v", err)
	}
	// Older write loses regardless of arrival order.
	if err := s.Lists().Update(ctx, lid, model.ListPatch{Title: stamped("Older", 200)}); err != nil {
		t.Fatalf("UpdateList stale: %v", err)
	}
	// Equal time: greater value wins.
	if err := s.Lists().Update(ctx, lid, model.ListPatch{Title: stamped("Zoo", 300)}); err != nil {
		t.Fatalf("UpdateList tie: %v", err)
	}
	if err := s.Lists().Update(ctx, lid, model.ListPatch{Title: stamped("Apple", 300)}); err != nil {
		t.Fatalf("UpdateList tie smaller: %v", err)
	}
	got, err := s.Lists().Get(ctx, lid)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got.Title != "Zoo" || got.TitleChangeTime != 300 {
		t.Fatalf("GetList title: got %q@%d", got.Title, got.TitleChangeTime)
	}
	if got.InvitationID != inv || got.InvitationIDChangeTime != 100 || got.UserID != owner || got.CreateTime != 100 {
		t.Fatalf("GetList untouched fields changed: %+v", got)
	}

	owned, err := s.Lists().ListByOwner(ctx, owner)
	if err != nil || len(owned) != 1 || owned[0].ID != lid {
		t.Fatalf("ListByOwner: got=%v err=%v", owned, err)
	}
	byInv, err := s.Lists().ListByInvitation(ctx, inv)
	if err != nil || len(byInv) != 1 || byInv[0].ID != lid {
		t.Fatalf("ListByInvitation: got=%v err=%v", byInv, err)
	}

	if err := s.Lists().Delete(ctx, lid, 400); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if err := s.Lists().Delete(ctx, lid, 500); err != nil {
		t.Fatalf("DeleteList again: %v", err)
	}
	got, err = s.Lists().Get(ctx, lid)
	if err != nil || got.DeleteTime != 400 || !got.Deleted() {
		t.Fatalf("GetList after delete: got=%+v err=%v", got, err)
	}
	if err := s.Lists().Delete(ctx, id("l"), 1); !model.IsNotFoundError(err) {
		t.Fatalf("DeleteList missing: want not found, got %v", err)
	}
}

func testMemberships(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, member := id("u"), id("u")
	lid := id("l")
	if err := s.Lists().Create(ctx, &model.List{ID: lid, UserID: owner, Title: "T", TitleChangeTime: 1, CreateTime: 1}); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	mid := id("m")
	if err := s.Memberships().Create(ctx, &model.Membership{ID: mid, ListID: lid, UserID: member, CreateTime: 150}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	if err := s.Memberships().Create(ctx, &model.Membership{ID: id("m"), ListID: lid, UserID: member, CreateTime: 160}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateMembership duplicate pair: want conflict, got %v", err)
	}
	if got, err := s.Memberships().Get(ctx, mid); err != nil || got.UserID != member {
		t.Fatalf("GetMembership: got=%+v err=%v", got, err)
	}
	if got, err := s.Memberships().Find(ctx, lid, member); err != nil || got.ID != mid {
		t.Fatalf("FindMembership: got=%+v err=%v", got, err)
	}
	if _, err := s.Memberships().Find(ctx, lid, owner); !model.IsNotFoundError(err) {
		t.Fatalf("FindMembership missing: want not found, got %v", err)
	}
	if lst, err := s.Memberships().ListByList(ctx, lid); err != nil || len(lst) != 1 {
		t.Fatalf("ListByList: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Memberships().ListByUser(ctx, member); err != nil || len(lst) != 1 || lst[0].ListID != lid {
		t.Fatalf("ListByUser: got=%v err=%v", lst, err)
	}
}

func testItems(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := id("u")
	lid := id("l")
	if err := s.Lists().Create(ctx, &model.List{ID: lid, UserID: owner, Title: "T", TitleChangeTime: 1, CreateTime: 1}); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	iid := id("i")
	if err := s.Items().Create(ctx, &model.Item{ID: iid, ListID: lid, UserID: owner, Text: "milk", TextChangeTime: 200, CreateTime: 200}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := s.Items().Update(ctx, iid, model.ItemPatch{Text: stamped("oat milk", 300)}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if err := s.Items().Update(ctx, iid, model.ItemPatch{Text: stamped("old", 250)}); err != nil {
		t.Fatalf("UpdateItem stale: %v", err)
	}
	got, err := s.Items().Get(ctx, iid)
	if err != nil || got.Text != "oat milk" || got.TextChangeTime != 300 || got.CreateTime != 200 {
		t.Fatalf("GetItem: got=%+v err=%v", got, err)
	}
	if lst, err := s.Items().ListByList(ctx, lid); err != nil || len(lst) != 1 {
		t.Fatalf("ListItems: n=%d err=%v", len(lst), err)
	}
	if err := s.Items().Delete(ctx, iid, 500); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	got, err = s.Items().Get(ctx, iid)
	if err != nil || got.DeleteTime != 500 || got.UpdateTime() != 500 {
		t.Fatalf("GetItem after delete: got=%+v err=%v", got, err)
	}
}

func testBoosts(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := id("u")
	lid, iid := id("l"), id("i")
	if err := s.Lists().Create(ctx, &model.List{ID: lid, UserID: owner, Title: "T", TitleChangeTime: 1, CreateTime: 1}); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if err := s.Items().Create(ctx, &model.Item{ID: iid, ListID: lid, UserID: owner, Text: "x", TextChangeTime: 2, CreateTime: 2}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	bid := id("b")
	b := &model.Boost{ID: bid, ItemID: iid, ListID: lid, UserID: owner, CreateTime: 250}
	if err := s.Boosts().Create(ctx, b); err != nil {
		t.Fatalf("CreateBoost: %v", err)
	}
	if err := s.Boosts().Create(ctx, b); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateBoost duplicate: want conflict, got %v", err)
	}
	if got, err := s.Boosts().Get(ctx, bid); err != nil || *got != *b {
		t.Fatalf("GetBoost: got=%+v err=%v", got, err)
	}
	if lst, err := s.Boosts().ListByList(ctx, lid); err != nil || len(lst) != 1 {
		t.Fatalf("ListBoosts: n=%d err=%v", len(lst), err)
	}
	if _, err := s.Boosts().Get(ctx, id("b")); !model.IsNotFoundError(err) {
		t.Fatalf("GetBoost missing: want not found, got %v", err)
	}
}
