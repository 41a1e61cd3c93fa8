// Package optional holds a value that may be absent.
package optional

type Optional[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// FromPtr returns None for a nil pointer.
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Optional[T]) IsPresent() bool {
	return o.ok
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// OrElseErr returns err when the value is absent.
func (o Optional[T]) OrElseErr(err error) (T, error) {
	if o.ok {
		return o.value, nil
	}
	var zero T
	return zero, err
}
