package model

// Stamped is a proposed value for a last-writer-wins field together with the
// time the writer set it.
type Stamped struct {
	Value string
	Time  int64
}

// ListPatch lists the mutable List fields a change touches. Nil fields are left alone.
type ListPatch struct {
	Title        *Stamped
	InvitationID *Stamped
}

// Empty reports whether the patch touches nothing.
func (p ListPatch) Empty() bool { return p.Title == nil && p.InvitationID == nil }

// ItemPatch lists the mutable Item fields a change touches.
type ItemPatch struct {
	Text *Stamped
}

func (p ItemPatch) Empty() bool { return p.Text == nil }

// UserPatch lists the mutable User fields a change touches.
type UserPatch struct {
	Name *Stamped
}

func (p UserPatch) Empty() bool { return p.Name == nil }
