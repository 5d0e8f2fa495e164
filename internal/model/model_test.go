package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateTimeIsLatestTimestamp(t *testing.T) {
	l := &List{CreateTime: 100, TitleChangeTime: 150, InvitationIDChangeTime: 120}
	assert.Equal(t, int64(150), l.UpdateTime())

	l.DeleteTime = 400
	assert.Equal(t, int64(400), l.UpdateTime())
	assert.True(t, l.Deleted())

	i := &Item{CreateTime: 10, TextChangeTime: 5}
	assert.Equal(t, int64(10), i.UpdateTime())

	b := &Boost{CreateTime: 77}
	assert.Equal(t, int64(77), b.UpdateTime())

	u := &User{CreateTime: 1, NameChangeTime: 9}
	assert.Equal(t, int64(9), u.UpdateTime())
}

func TestListIDOf(t *testing.T) {
	assert.Equal(t, "L1", ListIDOf(&List{ID: "L1"}))
	assert.Equal(t, "L2", ListIDOf(&Item{ID: "I1", ListID: "L2"}))
	assert.Equal(t, "L3", ListIDOf(&Boost{ID: "B1", ListID: "L3"}))
	assert.Equal(t, "L4", ListIDOf(&Membership{ID: "M1", ListID: "L4"}))
	assert.Equal(t, "", ListIDOf(&User{ID: "U1"}))
}

func TestFieldsDecodedFromJSON(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Groceries","createTime":1700000000000,"bad":1.5,"text":""}`), &f))

	title, ok := f.String(FieldTitle)
	assert.True(t, ok)
	assert.Equal(t, "Groceries", title)

	ct, ok := f.Int(FieldCreateTime)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), ct)

	_, ok = f.Int("bad")
	assert.False(t, ok)

	_, ok = f.Int(FieldTitle)
	assert.False(t, ok)

	assert.True(t, f.Has(FieldText))
	assert.False(t, f.Has(FieldListID))
	assert.Equal(t, []string{"bad", "createTime", "text", "title"}, f.Keys())
}

func TestErrorTaxonomy(t *testing.T) {
	ve := NewValidationError("title", "required")
	wrapped := fmt.Errorf("apply: %w", ve)
	assert.True(t, IsValidationError(wrapped))
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	nf := NewNotFoundError(KindList, "L1")
	assert.True(t, IsNotFoundError(fmt.Errorf("x: %w", nf)))
	assert.Equal(t, "not found lists: L1", nf.Error())

	base := errors.New("disk full")
	se := WrapStorage("lists.create", base)
	assert.True(t, errors.Is(se, ErrStorage))
	assert.True(t, errors.Is(se, base))

	assert.Equal(t, error(nf), WrapStorage("lists.get", nf))
	assert.Nil(t, WrapStorage("noop", nil))
}
