package mutation

import (
	"fmt"
	"strings"

	"github.com/zegl/eligo/internal/access"
	"github.com/zegl/eligo/internal/model"
)

// Action is one of Create, Change or Delete.
type Action interface {
	Target() (model.Kind, string)
	// AccessRequest is the check the actor must pass before the action is applied.
	AccessRequest(actor string) access.Request
	isAction()
}

// Create inserts a new entity. Time stamps every mutable field; zero means now.
type Create struct {
	Kind   model.Kind
	ID     string
	Fields model.Fields
	Time   int64
}

// Change proposes new values for mutable fields of an existing entity.
type Change struct {
	Kind   model.Kind
	ID     string
	Fields model.Fields
	Time   int64
}

// Delete soft-deletes a list or item.
type Delete struct {
	Kind model.Kind
	ID   string
	Time int64
}

func (Create) isAction() {}
func (Change) isAction() {}
func (Delete) isAction() {}

func (a Create) Target() (model.Kind, string) { return a.Kind, a.ID }
func (a Change) Target() (model.Kind, string) { return a.Kind, a.ID }
func (a Delete) Target() (model.Kind, string) { return a.Kind, a.ID }

func (a Create) AccessRequest(actor string) access.Request {
	return access.Request{Actor: actor, Kind: a.Kind, Op: access.OpCreate, ID: a.ID, Fields: a.Fields}
}

func (a Change) AccessRequest(actor string) access.Request {
	return access.Request{Actor: actor, Kind: a.Kind, Op: access.OpChange, ID: a.ID, Fields: a.Fields}
}

func (a Delete) AccessRequest(actor string) access.Request {
	return access.Request{Actor: actor, Kind: a.Kind, Op: access.OpDelete, ID: a.ID}
}

// Parse decodes a wire action such as "lists.create" or "items.changed".
func Parse(typ, id string, fields model.Fields, time int64) (Action, error) {
	i := strings.LastIndexByte(typ, '.')
	if i < 0 {
		return nil, model.NewValidationError("type", fmt.Sprintf("malformed action type %q", typ))
	}
	kind, ok := model.ParseKind(typ[:i])
	if !ok {
		return nil, model.NewValidationError("type", fmt.Sprintf("unknown collection %q", typ[:i]))
	}
	if fields == nil {
		fields = model.Fields{}
	}
	switch typ[i+1:] {
	case "create", "created":
		return Create{Kind: kind, ID: id, Fields: fields, Time: time}, nil
	case "change", "changed":
		return Change{Kind: kind, ID: id, Fields: fields, Time: time}, nil
	case "delete", "deleted":
		return Delete{Kind: kind, ID: id, Time: time}, nil
	}
	return nil, model.NewValidationError("type", fmt.Sprintf("unknown operation %q", typ[i+1:]))
}
