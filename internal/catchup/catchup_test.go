package catchup

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store/memory"
)

// groceries: A owns "Groceries" (100), B joins (150), B adds "milk" (200) and boosts it (250).
func groceries(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Users().Create(ctx, &model.User{ID: "A", Name: "Alice", NameChangeTime: 10, CreateTime: 10}))
	require.NoError(t, s.Users().Create(ctx, &model.User{ID: "B", Name: "Bob", NameChangeTime: 20, CreateTime: 20}))
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L1", UserID: "A", Title: "Groceries", TitleChangeTime: 100, InvitationID: "inv1", InvitationIDChangeTime: 100, CreateTime: 100}))
	require.NoError(t, s.Memberships().Create(ctx, &model.Membership{ID: "M1", ListID: "L1", UserID: "B", CreateTime: 150}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I1", ListID: "L1", UserID: "B", Text: "milk", TextChangeTime: 200, CreateTime: 200}))
	require.NoError(t, s.Boosts().Create(ctx, &model.Boost{ID: "B1", ItemID: "I1", ListID: "L1", UserID: "B", CreateTime: 250}))
	return s
}

func summary(evs []fanout.Event) []string {
	var out []string
	for _, e := range evs {
		out = append(out, e.Type+" "+e.Payload.ID)
	}
	return out
}

func TestRunFullSnapshotOrder(t *testing.T) {
	s := groceries(t)
	sync := NewSynchronizer(s, zerolog.Nop())

	snap, err := sync.Run(context.Background(), "A", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"lists.updated L1",
		"memberships.updated M1",
		"items.updated I1",
		"boosts.updated B1",
		"users.updated A",
		"users.updated B",
	}, summary(snap.Events))

	assert.ElementsMatch(t, []string{"lists:L1", "memberships:M1", "items:I1", "boosts:B1", "users:A", "users:B"}, snap.Channels)
}

func TestRunFromMemberSide(t *testing.T) {
	s := groceries(t)
	snap, err := NewSynchronizer(s, zerolog.Nop()).Run(context.Background(), "B", 0)
	require.NoError(t, err)
	assert.Equal(t, "lists.updated L1", snap.Events[0].Type+" "+snap.Events[0].Payload.ID)
	assert.Len(t, snap.Events, 6)
}

func TestRunWatermark(t *testing.T) {
	s := groceries(t)
	sync := NewSynchronizer(s, zerolog.Nop())

	snap, err := sync.Run(context.Background(), "A", 150)
	require.NoError(t, err)
	assert.Equal(t, []string{"items.updated I1", "boosts.updated B1"}, summary(snap.Events))
	assert.Len(t, snap.Channels, 6, "subscriptions cover the whole closure")

	snap, err = sync.Run(context.Background(), "A", 250)
	require.NoError(t, err)
	assert.Empty(t, snap.Events)
}

func TestClosureMatchesFullRunChannels(t *testing.T) {
	s := groceries(t)
	sync := NewSynchronizer(s, zerolog.Nop())

	full, err := sync.Run(context.Background(), "B", 0)
	require.NoError(t, err)
	chans, err := sync.Closure(context.Background(), "B")
	require.NoError(t, err)
	assert.ElementsMatch(t, full.Channels, chans)

	none, err := sync.Closure(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Len(t, none, 0)
}

func TestRunIsIdempotent(t *testing.T) {
	s := groceries(t)
	sync := NewSynchronizer(s, zerolog.Nop())
	a, err := sync.Run(context.Background(), "A", 0)
	require.NoError(t, err)
	b, err := sync.Run(context.Background(), "A", 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunExcludesUnrelatedLists(t *testing.T) {
	s := groceries(t)
	ctx := context.Background()
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L2", UserID: "C", Title: "Secret", CreateTime: 300}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I2", ListID: "L2", UserID: "C", Text: "x", CreateTime: 300}))

	snap, err := NewSynchronizer(s, zerolog.Nop()).Run(ctx, "A", 0)
	require.NoError(t, err)
	for _, e := range snap.Events {
		assert.NotEqual(t, "L2", e.Payload.ID)
		assert.NotEqual(t, "I2", e.Payload.ID)
	}
}

func TestRunDeletedListTravelsWithoutChildren(t *testing.T) {
	s := groceries(t)
	ctx := context.Background()
	require.NoError(t, s.Lists().Delete(ctx, "L1", 400))

	snap, err := NewSynchronizer(s, zerolog.Nop()).Run(ctx, "A", 300)
	require.NoError(t, err)
	require.Equal(t, []string{"lists.updated L1"}, summary(snap.Events))
	assert.Equal(t, int64(400), snap.Events[0].Payload.Fields["deleteTime"].Value)
}

func TestRunSkipsMissingBranches(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	// Membership to a list that was never stored, and an item author with no user row.
	require.NoError(t, s.Memberships().Create(ctx, &model.Membership{ID: "M1", ListID: "ghost", UserID: "A", CreateTime: 1}))
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "L1", UserID: "A", Title: "T", CreateTime: 5}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "I1", ListID: "L1", UserID: "nobody", CreateTime: 6}))

	snap, err := NewSynchronizer(s, zerolog.Nop()).Run(ctx, "A", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"lists.updated L1", "items.updated I1"}, summary(snap.Events))
}

func TestRunTieBreaksParentsFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Lists().Create(ctx, &model.List{ID: "Z", UserID: "A", Title: "T", CreateTime: 100}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "A1", ListID: "Z", UserID: "A", CreateTime: 100}))
	require.NoError(t, s.Boosts().Create(ctx, &model.Boost{ID: "A0", ItemID: "A1", ListID: "Z", UserID: "A", CreateTime: 100}))
	require.NoError(t, s.Items().Create(ctx, &model.Item{ID: "A2", ListID: "Z", UserID: "A", CreateTime: 100}))

	snap, err := NewSynchronizer(s, zerolog.Nop()).Run(ctx, "A", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"lists.updated Z", "items.updated A1", "items.updated A2", "boosts.updated A0"}, summary(snap.Events))
}

func TestListScope(t *testing.T) {
	s := groceries(t)
	snap, err := NewSynchronizer(s, zerolog.Nop()).ListScope(context.Background(), "C", "L1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"lists.updated L1",
		"memberships.updated M1",
		"items.updated I1",
		"boosts.updated B1",
		"users.updated A",
		"users.updated B",
	}, summary(snap.Events))

	_, err = NewSynchronizer(s, zerolog.Nop()).ListScope(context.Background(), "C", "missing", 0)
	assert.True(t, model.IsNotFoundError(err))
}

func TestRunHonoursCancellation(t *testing.T) {
	s := groceries(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSynchronizer(s, zerolog.Nop()).Run(ctx, "A", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
