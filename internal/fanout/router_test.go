package fanout

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/zegl/eligo/internal/model"
)

type fakeSession struct {
	id, user string

	mu     sync.Mutex
	events []Event
	closed bool
}

func (f *fakeSession) ID() string     { return f.id }
func (f *fakeSession) UserID() string { return f.user }
func (f *fakeSession) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSession) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type+" "+e.Payload.ID)
	}
	return out
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventCreated, &model.Item{ID: "I1", ListID: "L1", UserID: "B", Text: "milk", TextChangeTime: 200, CreateTime: 200})
	assert.Equal(t, "items.created", ev.Type)
	assert.Equal(t, "I1", ev.Payload.ID)
	assert.Equal(t, int64(200), ev.Time)
	assert.Equal(t, "items:I1", ev.Channel())
}

func TestPublishReachesSubscribersOnce(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	owner := &fakeSession{id: "s1", user: "A"}
	member := &fakeSession{id: "s2", user: "B"}
	stranger := &fakeSession{id: "s3", user: "C"}
	for _, s := range []*fakeSession{owner, member, stranger} {
		r.Register(s)
	}
	r.Subscribe(owner, EntityChannel(model.KindList, "L1"))
	r.Subscribe(member, EntityChannel(model.KindList, "L1"))

	ev := NewEvent(EventCreated, &model.Item{ID: "I1", ListID: "L1", UserID: "B", CreateTime: 200})
	n := r.Publish(ev, member, EntityChannel(model.KindList, "L1"), InboxChannel("B"))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"items.created I1"}, owner.types())
	assert.Equal(t, []string{"items.created I1"}, member.types())
	assert.Empty(t, stranger.types())

	assert.True(t, r.Subscribed(owner, "items:I1"), "recipients follow the delivered entity")
	assert.False(t, r.Subscribed(stranger, "items:I1"))
}

func TestPublishIncludesOriginAndSubscribesIt(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	origin := &fakeSession{id: "s1", user: "A"}
	r.Register(origin)

	ev := NewEvent(EventCreated, &model.List{ID: "L9", UserID: "A", CreateTime: 1})
	assert.Equal(t, 1, r.Publish(ev, origin))
	assert.True(t, r.Subscribed(origin, "lists:L9"))

	// Later changes to the entity reach the creator through the entity channel.
	r.Publish(NewEvent(EventUpdated, &model.List{ID: "L9", UserID: "A", CreateTime: 1, TitleChangeTime: 2}), nil)
	assert.Equal(t, []string{"lists.created L9", "lists.updated L9"}, origin.types())
}

func TestInboxReachesEverySessionOfUser(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	phone := &fakeSession{id: "s1", user: "A"}
	laptop := &fakeSession{id: "s2", user: "A"}
	r.Register(phone)
	r.Register(laptop)

	ev := NewEvent(EventCreated, &model.List{ID: "L1", UserID: "A", CreateTime: 1})
	assert.Equal(t, 2, r.Publish(ev, phone, InboxChannel("A")))
	assert.Len(t, laptop.types(), 1)
}

func TestUnregisterReleasesSubscriptions(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	s := &fakeSession{id: "s1", user: "A"}
	r.Register(s)
	r.Subscribe(s, "lists:L1")
	r.Unregister(s)
	r.Unregister(s)

	assert.Empty(t, r.Sessions("lists:L1", InboxChannel("A")))
	assert.Equal(t, 0, r.Publish(NewEvent(EventUpdated, &model.List{ID: "L1"}), s, "lists:L1"))

	r.Subscribe(s, "lists:L2")
	assert.False(t, r.Subscribed(s, "lists:L2"), "unregistered sessions cannot subscribe")
}

func TestClosedSessionIsCountedAsDropped(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	s := &fakeSession{id: "s1", user: "A", closed: true}
	r.Register(s)
	assert.Equal(t, 0, r.Publish(NewEvent(EventUpdated, &model.User{ID: "A"}), nil, InboxChannel("A")))
}

func TestChannelsDoNotCollide(t *testing.T) {
	// A user's inbox and the user's profile entity share an id but not a channel.
	assert.NotEqual(t, InboxChannel("A"), EntityChannel(model.KindUser, "A"))
}
