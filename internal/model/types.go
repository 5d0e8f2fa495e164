package model

// Kind names an entity collection. It is also the prefix of every event and action type.
type Kind string

const (
	KindUser       Kind = "users"
	KindList       Kind = "lists"
	KindMembership Kind = "memberships"
	KindItem       Kind = "items"
	KindBoost      Kind = "boosts"
)

// ParseKind maps a collection name to its Kind.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindUser, KindList, KindMembership, KindItem, KindBoost:
		return k, true
	}
	return "", false
}

// Entity is implemented by every synchronised record.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	// UpdateTime is the latest of the creation, field change and delete times.
	UpdateTime() int64
}

// User is an account. Only Name may change after creation.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NameChangeTime int64  `json:"nameChangeTime"`
	CreateTime     int64  `json:"createTime"`
}

func (u *User) EntityID() string  { return u.ID }
func (u *User) EntityKind() Kind  { return KindUser }
func (u *User) UpdateTime() int64 { return maxTime(u.CreateTime, u.NameChangeTime) }

// List is owned by UserID. A non-empty InvitationID makes it joinable by link.
type List struct {
	ID                     string `json:"id"`
	UserID                 string `json:"userId"`
	Title                  string `json:"title"`
	TitleChangeTime        int64  `json:"titleChangeTime"`
	InvitationID           string `json:"invitationId"`
	InvitationIDChangeTime int64  `json:"invitationIdChangeTime"`
	CreateTime             int64  `json:"createTime"`
	DeleteTime             int64  `json:"deleteTime,omitempty"`
}

func (l *List) EntityID() string { return l.ID }
func (l *List) EntityKind() Kind { return KindList }
func (l *List) UpdateTime() int64 {
	return maxTime(l.CreateTime, l.TitleChangeTime, l.InvitationIDChangeTime, l.DeleteTime)
}

// Deleted reports whether the list has been soft-deleted.
func (l *List) Deleted() bool { return l.DeleteTime != 0 }

// Membership grants a non-owner access to a list. Append-only.
type Membership struct {
	ID         string `json:"id"`
	ListID     string `json:"listId"`
	UserID     string `json:"userId"`
	CreateTime int64  `json:"createTime"`
}

func (m *Membership) EntityID() string  { return m.ID }
func (m *Membership) EntityKind() Kind  { return KindMembership }
func (m *Membership) UpdateTime() int64 { return m.CreateTime }

// Item is an entry of a list authored by UserID.
type Item struct {
	ID             string `json:"id"`
	ListID         string `json:"listId"`
	UserID         string `json:"userId"`
	Text           string `json:"text"`
	TextChangeTime int64  `json:"textChangeTime"`
	CreateTime     int64  `json:"createTime"`
	DeleteTime     int64  `json:"deleteTime,omitempty"`
}

func (i *Item) EntityID() string { return i.ID }
func (i *Item) EntityKind() Kind { return KindItem }
func (i *Item) UpdateTime() int64 {
	return maxTime(i.CreateTime, i.TextChangeTime, i.DeleteTime)
}

// Deleted reports whether the item has been soft-deleted.
func (i *Item) Deleted() bool { return i.DeleteTime != 0 }

// Boost is an immutable endorsement of an item.
type Boost struct {
	ID         string `json:"id"`
	ItemID     string `json:"itemId"`
	ListID     string `json:"listId"`
	UserID     string `json:"userId"`
	CreateTime int64  `json:"createTime"`
}

func (b *Boost) EntityID() string  { return b.ID }
func (b *Boost) EntityKind() Kind  { return KindBoost }
func (b *Boost) UpdateTime() int64 { return b.CreateTime }

// ListIDOf returns the list an entity belongs to, or "" for users.
func ListIDOf(e Entity) string {
	switch v := e.(type) {
	case *List:
		return v.ID
	case *Membership:
		return v.ListID
	case *Item:
		return v.ListID
	case *Boost:
		return v.ListID
	}
	return ""
}

func maxTime(ts ...int64) int64 {
	var m int64
	for _, t := range ts {
		if t > m {
			m = t
		}
	}
	return m
}
