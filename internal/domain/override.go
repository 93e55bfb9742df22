package domain

import (
	"bytes"
	"encoding/json"
)

// Override is a value that is either explicitly set or inherited from the next layer down.
// The zero value inherits.
type Override[T any] struct {
	value T
	set   bool
}

// Inherit returns an override that falls through to the next layer.
func Inherit[T any]() Override[T] {
	return Override[T]{}
}

// Set returns an override carrying v.
func Set[T any](v T) Override[T] {
	return Override[T]{value: v, set: true}
}

// FromPtr maps nil to Inherit and anything else to Set.
func FromPtr[T any](p *T) Override[T] {
	if p == nil {
		return Inherit[T]()
	}
	return Set(*p)
}

func (o Override[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Override[T]) IsSet() bool {
	return o.set
}

// OrElse returns the set value or fallback.
func (o Override[T]) OrElse(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

// Ptr returns nil when inheriting.
func (o Override[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// MarshalJSON encodes Inherit as null.
func (o Override[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null (or an absent field) as Inherit.
func (o *Override[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Inherit[T]()
		return nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Set(v)
	return nil
}
