package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID identifies a record. The API uses both numeric and string ids; they
// are normalized to their decimal or literal string form.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, b)
	}
	*id = ID(n.String())
	return nil
}

// Lookup finds records by id. Loaded models satisfy it.
type Lookup[T any] interface {
	Find(id string) (T, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc[T any] func(id string) (T, bool)

func (f LookupFunc[T]) Find(id string) (T, bool) { return f(id) }

// Resolve looks up a single reference. An empty id resolves to nothing.
func Resolve[T any](l Lookup[T], id ID) (T, bool) {
	var zero T
	if id == "" || l == nil {
		return zero, false
	}
	return l.Find(string(id))
}

// ResolveAll looks up every reference in order, skipping the ones that are
// not known (yet).
func ResolveAll[T any](l Lookup[T], ids []ID) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := Resolve(l, id); ok {
			out = append(out, v)
		}
	}
	return out
}
