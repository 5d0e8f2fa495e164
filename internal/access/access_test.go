package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store/memory"
)

// seed builds: owner A with list L1 (invitation "inv1") shared with member B,
// item I1 by B, item I2 by A, boost B1 by B; C is a stranger. L2 is private
// to A. L3 is deleted.
func seed(t *testing.T) *Evaluator {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L1", UserID: "A", Title: "Groceries", InvitationID: "inv1", CreateTime: 100}))
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L2", UserID: "A", Title: "Private", CreateTime: 100}))
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L3", UserID: "A", Title: "Gone", CreateTime: 100, DeleteTime: 200}))
	require.NoError(t, s.Memberships().Create(ctx, &model.Membership{ID: "M1", ListID: "L1", UserID: "B", CreateTime: 150}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I1", ListID: "L1", UserID: "B", Text: "milk", CreateTime: 200}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I2", ListID: "L1", UserID: "A", Text: "eggs", CreateTime: 200}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I3", ListID: "L2", UserID: "A", Text: "secret", CreateTime: 200}))
	require.NoError(t, s.Boosts().Create(ctx, &model.Boost{ID: "B1", ItemID: "I2", ListID: "L1", UserID: "B", CreateTime: 250}))
	return NewEvaluator(s)
}

func TestAuthorize(t *testing.T) {
	e := seed(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want error
	}{
		// Lists
		{"list create by self", Request{Actor: "A", Kind: model.KindList, Op: OpCreate, ID: "LX", Fields: model.Fields{"userId": "A"}}, nil},
		{"list create impersonating", Request{Actor: "C", Kind: model.KindList, Op: OpCreate, ID: "LX", Fields: model.Fields{"userId": "A"}}, model.ErrUnauthorized},
		{"list change by owner", Request{Actor: "A", Kind: model.KindList, Op: OpChange, ID: "L1", Fields: model.Fields{"title": "x"}}, nil},
		{"list change title by member", Request{Actor: "B", Kind: model.KindList, Op: OpChange, ID: "L1", Fields: model.Fields{"title": "x"}}, model.ErrUnauthorized},
		{"list change invitation by member", Request{Actor: "B", Kind: model.KindList, Op: OpChange, ID: "L1", Fields: model.Fields{"invitationId": ""}}, nil},
		{"list change invitation and title by member", Request{Actor: "B", Kind: model.KindList, Op: OpChange, ID: "L1", Fields: model.Fields{"invitationId": "", "title": "x"}}, model.ErrUnauthorized},
		{"list change invitation by stranger", Request{Actor: "C", Kind: model.KindList, Op: OpChange, ID: "L1", Fields: model.Fields{"invitationId": ""}}, model.ErrUnauthorized},
		{"list delete by owner", Request{Actor: "A", Kind: model.KindList, Op: OpDelete, ID: "L1"}, nil},
		{"list delete by member", Request{Actor: "B", Kind: model.KindList, Op: OpDelete, ID: "L1"}, model.ErrUnauthorized},
		{"list read via invitation", Request{Actor: "C", Kind: model.KindList, Op: OpRead, ID: "L1"}, nil},
		{"list read private by stranger", Request{Actor: "C", Kind: model.KindList, Op: OpRead, ID: "L2"}, model.ErrUnauthorized},
		{"list read private by owner", Request{Actor: "A", Kind: model.KindList, Op: OpRead, ID: "L2"}, nil},
		{"list change missing", Request{Actor: "A", Kind: model.KindList, Op: OpChange, ID: "nope", Fields: model.Fields{"title": "x"}}, model.ErrNotFound},
		{"list change deleted", Request{Actor: "A", Kind: model.KindList, Op: OpChange, ID: "L3", Fields: model.Fields{"title": "x"}}, model.ErrNotFound},

		// Items
		{"item create by self", Request{Actor: "B", Kind: model.KindItem, Op: OpCreate, ID: "IX", Fields: model.Fields{"userId": "B", "listId": "L1"}}, nil},
		{"item create impersonating", Request{Actor: "B", Kind: model.KindItem, Op: OpCreate, ID: "IX", Fields: model.Fields{"userId": "A", "listId": "L1"}}, model.ErrUnauthorized},
		{"item change by author", Request{Actor: "B", Kind: model.KindItem, Op: OpChange, ID: "I1", Fields: model.Fields{"text": "y"}}, nil},
		{"item change by list owner", Request{Actor: "A", Kind: model.KindItem, Op: OpChange, ID: "I1", Fields: model.Fields{"text": "y"}}, nil},
		{"item change by plain member", Request{Actor: "B", Kind: model.KindItem, Op: OpChange, ID: "I2", Fields: model.Fields{"text": "y"}}, model.ErrUnauthorized},
		{"item delete by plain member", Request{Actor: "B", Kind: model.KindItem, Op: OpDelete, ID: "I2"}, model.ErrUnauthorized},
		{"item delete by stranger", Request{Actor: "C", Kind: model.KindItem, Op: OpDelete, ID: "I1"}, model.ErrUnauthorized},
		{"item read by member", Request{Actor: "B", Kind: model.KindItem, Op: OpRead, ID: "I2"}, nil},
		{"item read private by stranger", Request{Actor: "C", Kind: model.KindItem, Op: OpRead, ID: "I3"}, model.ErrUnauthorized},
		{"item change missing", Request{Actor: "A", Kind: model.KindItem, Op: OpChange, ID: "nope"}, model.ErrNotFound},

		// Boosts
		{"boost create by self", Request{Actor: "B", Kind: model.KindBoost, Op: OpCreate, ID: "BX", Fields: model.Fields{"userId": "B"}}, nil},
		{"boost create impersonating", Request{Actor: "B", Kind: model.KindBoost, Op: OpCreate, ID: "BX", Fields: model.Fields{"userId": "A"}}, model.ErrUnauthorized},
		{"boost change by author", Request{Actor: "B", Kind: model.KindBoost, Op: OpChange, ID: "B1"}, model.ErrUnauthorized},
		{"boost delete by owner", Request{Actor: "A", Kind: model.KindBoost, Op: OpDelete, ID: "B1"}, model.ErrUnauthorized},
		{"boost read by author", Request{Actor: "B", Kind: model.KindBoost, Op: OpRead, ID: "B1"}, nil},
		{"boost read by owner", Request{Actor: "A", Kind: model.KindBoost, Op: OpRead, ID: "B1"}, nil},
		{"boost read by stranger", Request{Actor: "C", Kind: model.KindBoost, Op: OpRead, ID: "B1"}, model.ErrUnauthorized},

		// Memberships
		{"redeem invitation", Request{Actor: "C", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "C", "listId": "L1", "invitationId": "inv1"}}, nil},
		{"redeem wrong invitation", Request{Actor: "C", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "C", "listId": "L1", "invitationId": "guess"}}, model.ErrUnauthorized},
		{"redeem private list", Request{Actor: "C", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "C", "listId": "L2", "invitationId": ""}}, model.ErrUnauthorized},
		{"redeem for someone else", Request{Actor: "C", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "D", "listId": "L1", "invitationId": "inv1"}}, model.ErrUnauthorized},
		{"redeem own list", Request{Actor: "A", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "A", "listId": "L1", "invitationId": "inv1"}}, model.ErrUnauthorized},
		{"redeem deleted list", Request{Actor: "C", Kind: model.KindMembership, Op: OpCreate, ID: "MX", Fields: model.Fields{"userId": "C", "listId": "L3", "invitationId": "x"}}, model.ErrNotFound},
		{"membership delete", Request{Actor: "A", Kind: model.KindMembership, Op: OpDelete, ID: "M1"}, model.ErrUnauthorized},
		{"membership read by member", Request{Actor: "B", Kind: model.KindMembership, Op: OpRead, ID: "M1"}, nil},

		// Users
		{"user create self", Request{Actor: "C", Kind: model.KindUser, Op: OpCreate, ID: "C", Fields: model.Fields{"name": "Carol"}}, nil},
		{"user create other", Request{Actor: "C", Kind: model.KindUser, Op: OpCreate, ID: "A", Fields: model.Fields{"name": "Mallory"}}, model.ErrUnauthorized},
		{"user rename self", Request{Actor: "C", Kind: model.KindUser, Op: OpChange, ID: "C", Fields: model.Fields{"name": "Caz"}}, nil},
		{"user change other field", Request{Actor: "C", Kind: model.KindUser, Op: OpChange, ID: "C", Fields: model.Fields{"createTime": 1}}, model.ErrUnauthorized},
		{"user delete", Request{Actor: "C", Kind: model.KindUser, Op: OpDelete, ID: "C"}, model.ErrUnauthorized},

		{"anonymous actor", Request{Kind: model.KindList, Op: OpRead, ID: "L1"}, model.ErrUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.Authorize(ctx, tc.req)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestCanReadTreatsMissingAsDenied(t *testing.T) {
	e := seed(t)
	ok, err := e.CanRead(context.Background(), "A", model.KindList, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = e.CanRead(context.Background(), "B", model.KindList, "L1")
	require.NoError(t, err)
	require.True(t, ok)
}
