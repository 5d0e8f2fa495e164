// Package mutation applies authorised create, change and delete actions to the record store.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/zegl/eligo/internal/clock"
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
)

// Outcome is the kind of event a result produces.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
	Deleted Outcome = "deleted"
)

// Result is the materialised entity after an action.
type Result struct {
	Outcome Outcome
	Entity  model.Entity
	// Existing is set when a membership create resolved to a record that was already there.
	Existing bool
}

// Processor validates actions and writes them. It does not authorise.
type Processor struct {
	store store.Store
	clock clock.Clock
}

func NewProcessor(s store.Store, c clock.Clock) *Processor {
	return &Processor{store: s, clock: c}
}

// Apply dispatches on the action variant.
func (p *Processor) Apply(ctx context.Context, a Action) (*Result, error) {
	switch a := a.(type) {
	case Create:
		return p.create(ctx, a)
	case Change:
		return p.change(ctx, a)
	case Delete:
		return p.delete(ctx, a)
	}
	return nil, fmt.Errorf("unsupported action %T", a)
}

func (p *Processor) stamp(t int64) int64 {
	if t > 0 {
		return t
	}
	return clock.NowMillis(p.clock)
}

func (p *Processor) create(ctx context.Context, a Create) (*Result, error) {
	if a.ID == "" {
		return nil, model.NewValidationError(model.FieldID, "is required")
	}
	t := p.stamp(a.Time)
	f := a.Fields

	switch a.Kind {
	case model.KindList:
		uid, err := requireString(f, model.FieldUserID)
		if err != nil {
			return nil, err
		}
		title, err := requireString(f, model.FieldTitle)
		if err != nil {
			return nil, err
		}
		created, err := requireTime(f, model.FieldCreateTime)
		if err != nil {
			return nil, err
		}
		inv, err := optionalString(f, model.FieldInvitationID)
		if err != nil {
			return nil, err
		}
		l := &model.List{
			ID: a.ID, UserID: uid, CreateTime: created,
			Title: title, TitleChangeTime: t,
			InvitationID: inv, InvitationIDChangeTime: t,
		}
		if err := p.store.Lists().Create(ctx, l); err != nil {
			return nil, err
		}
		return &Result{Outcome: Created, Entity: l}, nil

	case model.KindItem:
		uid, err := requireString(f, model.FieldUserID)
		if err != nil {
			return nil, err
		}
		listID, err := requireString(f, model.FieldListID)
		if err != nil {
			return nil, err
		}
		text, err := optionalString(f, model.FieldText)
		if err != nil {
			return nil, err
		}
		if _, err := p.liveList(ctx, listID); err != nil {
			return nil, err
		}
		it := &model.Item{ID: a.ID, ListID: listID, UserID: uid, Text: text, TextChangeTime: t, CreateTime: t}
		if err := p.store.Items().Create(ctx, it); err != nil {
			return nil, err
		}
		return &Result{Outcome: Created, Entity: it}, nil

	case model.KindBoost:
		itemID, err := requireString(f, model.FieldItemID)
		if err != nil {
			return nil, err
		}
		listID, err := requireString(f, model.FieldListID)
		if err != nil {
			return nil, err
		}
		uid, err := requireString(f, model.FieldUserID)
		if err != nil {
			return nil, err
		}
		created, err := requireTime(f, model.FieldCreateTime)
		if err != nil {
			return nil, err
		}
		it, err := p.liveItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if it.ListID != listID {
			return nil, model.NewValidationError(model.FieldListID, "does not match the item's list")
		}
		if _, err := p.liveList(ctx, listID); err != nil {
			return nil, err
		}
		b := &model.Boost{ID: a.ID, ItemID: itemID, ListID: listID, UserID: uid, CreateTime: created}
		if err := p.store.Boosts().Create(ctx, b); err != nil {
			return nil, err
		}
		return &Result{Outcome: Created, Entity: b}, nil

	case model.KindMembership:
		uid, err := requireString(f, model.FieldUserID)
		if err != nil {
			return nil, err
		}
		listID, err := requireString(f, model.FieldListID)
		if err != nil {
			return nil, err
		}
		if _, err := p.liveList(ctx, listID); err != nil {
			return nil, err
		}
		existing, err := p.existingMembership(ctx, listID, uid)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Outcome: Created, Entity: existing, Existing: true}, nil
		}
		m := &model.Membership{ID: a.ID, ListID: listID, UserID: uid, CreateTime: t}
		if err := p.store.Memberships().Create(ctx, m); err != nil {
			if !errors.Is(err, model.ErrConflict) {
				return nil, err
			}
			// Lost a race with a concurrent redemption of the same pair.
			existing, ferr := p.existingMembership(ctx, listID, uid)
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, err
			}
			return &Result{Outcome: Created, Entity: existing, Existing: true}, nil
		}
		return &Result{Outcome: Created, Entity: m}, nil

	case model.KindUser:
		name, err := requireString(f, model.FieldName)
		if err != nil {
			return nil, err
		}
		u := &model.User{ID: a.ID, Name: name, NameChangeTime: t, CreateTime: t}
		if err := p.store.Users().Create(ctx, u); err != nil {
			return nil, err
		}
		return &Result{Outcome: Created, Entity: u}, nil
	}
	return nil, model.NewValidationError("type", fmt.Sprintf("unknown collection %q", a.Kind))
}

func (p *Processor) change(ctx context.Context, a Change) (*Result, error) {
	if len(a.Fields) == 0 {
		return nil, model.NewValidationError("fields", "nothing to change")
	}
	t := p.stamp(a.Time)

	switch a.Kind {
	case model.KindList:
		if _, err := p.liveList(ctx, a.ID); err != nil {
			return nil, err
		}
		var patch model.ListPatch
		for _, k := range a.Fields.Keys() {
			if k != model.FieldTitle && k != model.FieldInvitationID {
				return nil, immutable(k)
			}
			v, err := mutableString(a.Fields, k)
			if err != nil {
				return nil, err
			}
			if k == model.FieldTitle {
				if v == "" {
					return nil, model.NewValidationError(k, "must not be empty")
				}
				patch.Title = &model.Stamped{Value: v, Time: t}
				continue
			}
			patch.InvitationID = &model.Stamped{Value: v, Time: t}
		}
		if err := p.store.Lists().Update(ctx, a.ID, patch); err != nil {
			return nil, err
		}
		l, err := p.store.Lists().Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: Updated, Entity: l}, nil

	case model.KindItem:
		if _, err := p.liveItem(ctx, a.ID); err != nil {
			return nil, err
		}
		var patch model.ItemPatch
		for _, k := range a.Fields.Keys() {
			if k != model.FieldText {
				return nil, immutable(k)
			}
			v, err := mutableString(a.Fields, k)
			if err != nil {
				return nil, err
			}
			patch.Text = &model.Stamped{Value: v, Time: t}
		}
		if err := p.store.Items().Update(ctx, a.ID, patch); err != nil {
			return nil, err
		}
		it, err := p.store.Items().Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: Updated, Entity: it}, nil

	case model.KindUser:
		var patch model.UserPatch
		for _, k := range a.Fields.Keys() {
			if k != model.FieldName {
				return nil, immutable(k)
			}
			v, err := mutableString(a.Fields, k)
			if err != nil {
				return nil, err
			}
			if v == "" {
				return nil, model.NewValidationError(k, "must not be empty")
			}
			patch.Name = &model.Stamped{Value: v, Time: t}
		}
		if err := p.store.Users().Update(ctx, a.ID, patch); err != nil {
			return nil, err
		}
		u, err := p.store.Users().Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: Updated, Entity: u}, nil

	case model.KindBoost, model.KindMembership:
		return nil, model.NewValidationError("type", string(a.Kind)+" are immutable")
	}
	return nil, model.NewValidationError("type", fmt.Sprintf("unknown collection %q", a.Kind))
}

func (p *Processor) delete(ctx context.Context, a Delete) (*Result, error) {
	t := p.stamp(a.Time)

	switch a.Kind {
	case model.KindList:
		l, err := p.liveList(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if err := p.store.Lists().Delete(ctx, a.ID, t); err != nil {
			return nil, err
		}
		l.DeleteTime = t
		return &Result{Outcome: Deleted, Entity: l}, nil

	case model.KindItem:
		it, err := p.liveItem(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if err := p.store.Items().Delete(ctx, a.ID, t); err != nil {
			return nil, err
		}
		it.DeleteTime = t
		return &Result{Outcome: Deleted, Entity: it}, nil
	}
	return nil, model.NewValidationError("type", string(a.Kind)+" cannot be deleted")
}

func (p *Processor) liveList(ctx context.Context, id string) (*model.List, error) {
	l, err := p.store.Lists().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Deleted() {
		return nil, model.NewNotFoundError(model.KindList, id)
	}
	return l, nil
}

func (p *Processor) liveItem(ctx context.Context, id string) (*model.Item, error) {
	it, err := p.store.Items().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Deleted() {
		return nil, model.NewNotFoundError(model.KindItem, id)
	}
	return it, nil
}

func (p *Processor) existingMembership(ctx context.Context, listID, userID string) (*model.Membership, error) {
	m, err := p.store.Memberships().Find(ctx, listID, userID)
	if model.IsNotFoundError(err) {
		return nil, nil
	}
	return m, err
}

func requireString(f model.Fields, key string) (string, error) {
	v, ok := f.String(key)
	if !ok || v == "" {
		return "", model.NewValidationError(key, "is required")
	}
	return v, nil
}

func optionalString(f model.Fields, key string) (string, error) {
	if !f.Has(key) {
		return "", nil
	}
	v, ok := f.String(key)
	if !ok {
		return "", model.NewValidationError(key, "must be a string")
	}
	return v, nil
}

func mutableString(f model.Fields, key string) (string, error) {
	v, ok := f.String(key)
	if !ok {
		return "", model.NewValidationError(key, "must be a string")
	}
	return v, nil
}

func requireTime(f model.Fields, key string) (int64, error) {
	v, ok := f.Int(key)
	if !ok || v <= 0 {
		return 0, model.NewValidationError(key, "is required")
	}
	return v, nil
}

func immutable(key string) error {
	return model.NewValidationError(key, "cannot be changed")
}
