package model

import (
	"encoding/json"
	"math"
	"sort"
)

// Field names accepted in mutation payloads.
const (
	FieldID           = "id"
	FieldUserID       = "userId"
	FieldListID       = "listId"
	FieldItemID       = "itemId"
	FieldTitle        = "title"
	FieldText         = "text"
	FieldName         = "name"
	FieldInvitationID = "invitationId"
	FieldCreateTime   = "createTime"
)

// Fields carries the attribute values of an inbound create or change request.
// Values arrive decoded from JSON, so numbers may be float64 or json.Number.
type Fields map[string]any

// Has reports whether key is present, even with an empty value.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// String returns the value of key when it is present and a string.
func (f Fields) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the value of key as an int64 when it is an integral number.
func (f Fields) Int(key string) (int64, bool) {
	switch v := f[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Keys returns the present keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
