// Package access decides whether an actor may perform an operation on an entity.
package access

import (
	"context"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
)

// Op is the operation being authorised.
type Op string

const (
	OpCreate Op = "create"
	OpChange Op = "change"
	OpDelete Op = "delete"
	OpRead   Op = "read"
)

// Request describes one access check. Fields are the proposed values for
// create and change; ID is the target entity.
type Request struct {
	Actor  string
	Kind   model.Kind
	Op     Op
	ID     string
	Fields model.Fields
}

// Evaluator answers access questions against the record store. Rules are
// evaluated in order and the first match wins. Soft-deleted lists and items
// count as absent.
type Evaluator struct {
	store store.Store
}

func NewEvaluator(s store.Store) *Evaluator { return &Evaluator{store: s} }

// Authorize returns nil when allowed, model.ErrUnauthorized when denied, and a
// not-found error when a referenced entity does not resolve.
func (e *Evaluator) Authorize(ctx context.Context, req Request) error {
	ok, err := e.allowed(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrUnauthorized
	}
	return nil
}

// CanRead is Authorize for OpRead folded into a bool. Lookup failures other
// than not-found are returned.
func (e *Evaluator) CanRead(ctx context.Context, actor string, kind model.Kind, id string) (bool, error) {
	ok, err := e.allowed(ctx, Request{Actor: actor, Kind: kind, Op: OpRead, ID: id})
	if model.IsNotFoundError(err) {
		return false, nil
	}
	return ok, err
}

func (e *Evaluator) allowed(ctx context.Context, req Request) (bool, error) {
	if req.Actor == "" {
		return false, nil
	}
	switch req.Kind {
	case model.KindList:
		return e.list(ctx, req)
	case model.KindItem:
		return e.item(ctx, req)
	case model.KindBoost:
		return e.boost(ctx, req)
	case model.KindMembership:
		return e.membership(ctx, req)
	case model.KindUser:
		return e.user(req), nil
	}
	return false, nil
}

func (e *Evaluator) list(ctx context.Context, req Request) (bool, error) {
	if req.Op == OpCreate {
		return createdByActor(req), nil
	}
	l, err := e.liveList(ctx, req.ID)
	if err != nil {
		return false, err
	}
	switch req.Op {
	case OpChange:
		if l.UserID == req.Actor {
			return true, nil
		}
		// Members may rotate or revoke the invitation link, nothing else.
		if len(req.Fields) == 1 && req.Fields.Has(model.FieldInvitationID) {
			return e.isMember(ctx, l.ID, req.Actor)
		}
		return false, nil
	case OpDelete:
		return l.UserID == req.Actor, nil
	case OpRead:
		return e.readList(ctx, l, req.Actor)
	}
	return false, nil
}

func (e *Evaluator) readList(ctx context.Context, l *model.List, actor string) (bool, error) {
	if l.InvitationID != "" || l.UserID == actor {
		return true, nil
	}
	return e.isMember(ctx, l.ID, actor)
}

func (e *Evaluator) item(ctx context.Context, req Request) (bool, error) {
	if req.Op == OpCreate {
		return createdByActor(req), nil
	}
	it, err := e.store.Items().Get(ctx, req.ID)
	if err != nil {
		return false, err
	}
	if it.Deleted() {
		return false, model.NewNotFoundError(model.KindItem, req.ID)
	}
	switch req.Op {
	case OpChange, OpDelete:
		if it.UserID == req.Actor {
			return true, nil
		}
		l, err := e.liveList(ctx, it.ListID)
		if err != nil {
			return false, err
		}
		// Plain members may add items but not edit other members' items.
		return l.UserID == req.Actor, nil
	case OpRead:
		l, err := e.liveList(ctx, it.ListID)
		if err != nil {
			return false, err
		}
		if l.UserID == req.Actor {
			return true, nil
		}
		return e.isMember(ctx, l.ID, req.Actor)
	}
	return false, nil
}

func (e *Evaluator) boost(ctx context.Context, req Request) (bool, error) {
	switch req.Op {
	case OpCreate:
		return createdByActor(req), nil
	case OpRead:
		b, err := e.store.Boosts().Get(ctx, req.ID)
		if err != nil {
			return false, err
		}
		if b.UserID == req.Actor {
			return true, nil
		}
		l, err := e.liveList(ctx, b.ListID)
		if err != nil {
			return false, err
		}
		if l.UserID == req.Actor {
			return true, nil
		}
		return e.isMember(ctx, l.ID, req.Actor)
	}
	return false, nil
}

func (e *Evaluator) membership(ctx context.Context, req Request) (bool, error) {
	switch req.Op {
	case OpCreate:
		return e.redeem(ctx, req)
	case OpRead:
		m, err := e.store.Memberships().Get(ctx, req.ID)
		if err != nil {
			return false, err
		}
		l, err := e.liveList(ctx, m.ListID)
		if err != nil {
			return false, err
		}
		return e.readList(ctx, l, req.Actor)
	}
	return false, nil
}

// redeem admits an actor to a list through its current invitation id.
func (e *Evaluator) redeem(ctx context.Context, req Request) (bool, error) {
	if !createdByActor(req) {
		return false, nil
	}
	listID, _ := req.Fields.String(model.FieldListID)
	if listID == "" {
		return false, nil
	}
	l, err := e.liveList(ctx, listID)
	if err != nil {
		return false, err
	}
	inv, _ := req.Fields.String(model.FieldInvitationID)
	if l.InvitationID == "" || inv != l.InvitationID {
		return false, nil
	}
	return l.UserID != req.Actor, nil
}

func (e *Evaluator) user(req Request) bool {
	switch req.Op {
	case OpCreate:
		return req.ID == req.Actor
	case OpChange:
		if req.ID != req.Actor {
			return false
		}
		for k := range req.Fields {
			if k != model.FieldName {
				return false
			}
		}
		return true
	case OpRead:
		return true
	}
	return false
}

func (e *Evaluator) liveList(ctx context.Context, id string) (*model.List, error) {
	l, err := e.store.Lists().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Deleted() {
		return nil, model.NewNotFoundError(model.KindList, id)
	}
	return l, nil
}

func (e *Evaluator) isMember(ctx context.Context, listID, userID string) (bool, error) {
	_, err := e.store.Memberships().Find(ctx, listID, userID)
	if err == nil {
		return true, nil
	}
	if model.IsNotFoundError(err) {
		return false, nil
	}
	return false, err
}

func createdByActor(req Request) bool {
	uid, _ := req.Fields.String(model.FieldUserID)
	return uid != "" && uid == req.Actor
}
