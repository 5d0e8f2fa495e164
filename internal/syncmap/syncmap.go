// Package syncmap encodes entities into per-field replication maps and merges
// them with a last-writer-wins rule.
package syncmap

import (
	"fmt"

	"github.com/zegl/eligo/internal/model"
)

// Strategy tells a replica how to merge a field.
type Strategy string

const (
	StrategyImmutable Strategy = "immutable"
	StrategyLWW       Strategy = "lww"
)

// Field is one replicated attribute.
type Field struct {
	Value      any      `json:"value"`
	Strategy   Strategy `json:"strategy"`
	ChangeTime int64    `json:"changeTime,omitempty"`
}

// Immutable returns a field that keeps the first value a replica observes.
func Immutable(v any) Field { return Field{Value: v, Strategy: StrategyImmutable} }

// ChangedAt returns a last-writer-wins field stamped with t.
func ChangedAt(v any, t int64) Field { return Field{Value: v, Strategy: StrategyLWW, ChangeTime: t} }

// Value is the wire form of an entity.
type Value struct {
	ID     string           `json:"id"`
	Fields map[string]Field `json:"fields"`
}

// Encode converts an entity into its replicated form.
func Encode(e model.Entity) Value {
	v := Value{ID: e.EntityID(), Fields: map[string]Field{}}
	switch x := e.(type) {
	case *model.User:
		v.Fields[model.FieldName] = ChangedAt(x.Name, x.NameChangeTime)
		v.Fields[model.FieldCreateTime] = Immutable(x.CreateTime)
	case *model.List:
		v.Fields[model.FieldTitle] = ChangedAt(x.Title, x.TitleChangeTime)
		v.Fields[model.FieldUserID] = Immutable(x.UserID)
		v.Fields[model.FieldCreateTime] = Immutable(x.CreateTime)
		v.Fields[model.FieldInvitationID] = ChangedAt(x.InvitationID, x.InvitationIDChangeTime)
		if x.DeleteTime != 0 {
			v.Fields["deleteTime"] = Immutable(x.DeleteTime)
		}
	case *model.Membership:
		v.Fields[model.FieldListID] = Immutable(x.ListID)
		v.Fields[model.FieldUserID] = Immutable(x.UserID)
		v.Fields[model.FieldCreateTime] = Immutable(x.CreateTime)
	case *model.Item:
		v.Fields[model.FieldListID] = Immutable(x.ListID)
		v.Fields[model.FieldUserID] = Immutable(x.UserID)
		v.Fields[model.FieldText] = ChangedAt(x.Text, x.TextChangeTime)
		v.Fields[model.FieldCreateTime] = Immutable(x.CreateTime)
		if x.DeleteTime != 0 {
			v.Fields["deleteTime"] = Immutable(x.DeleteTime)
		}
	case *model.Boost:
		v.Fields[model.FieldItemID] = Immutable(x.ItemID)
		v.Fields[model.FieldListID] = Immutable(x.ListID)
		v.Fields[model.FieldUserID] = Immutable(x.UserID)
		v.Fields[model.FieldCreateTime] = Immutable(x.CreateTime)
	}
	return v
}

// Wins reports whether an incoming write replaces the current one. A strictly
// later change time wins; at equal times the lexicographically greater value
// wins, so every replica picks the same survivor. Equal values never win.
func Wins(curValue string, curTime int64, newValue string, newTime int64) bool {
	if newTime != curTime {
		return newTime > curTime
	}
	return newValue > curValue
}

// Merge folds update into base field by field and returns the result. base is
// not modified.
func Merge(base, update Value) Value {
	out := Value{ID: base.ID, Fields: make(map[string]Field, len(base.Fields)+len(update.Fields))}
	if out.ID == "" {
		out.ID = update.ID
	}
	for k, f := range base.Fields {
		out.Fields[k] = f
	}
	for k, in := range update.Fields {
		cur, ok := out.Fields[k]
		if !ok {
			out.Fields[k] = in
			continue
		}
		if cur.Strategy == StrategyImmutable {
			continue
		}
		if Wins(valueString(cur.Value), cur.ChangeTime, valueString(in.Value), in.ChangeTime) {
			out.Fields[k] = in
		}
	}
	return out
}

func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
