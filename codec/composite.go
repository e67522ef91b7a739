package codec

import (
	"cmp"
	"maps"
	"slices"

	"github.com/wippyai/callback-runtime/errors"
)

// Optional encodes *T as a presence flag followed by the value.
func Optional[T any](elem Converter[T]) Converter[*T] {
	return optional[T]{elem: elem}
}

type optional[T any] struct {
	elem Converter[T]
}

func (o optional[T]) Write(w *Writer, v *T) {
	if v == nil {
		w.WriteU8(0)
		return
	}
	w.WriteU8(1)
	o.elem.Write(w, *v)
}

func (o optional[T]) Read(r *Reader) (*T, error) {
	flag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		v, err := o.elem.Read(r)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.currentPath()...).
			WireType("optional").
			Value(flag).
			Detail("invalid presence flag %d", flag).
			Build()
	}
}

// Sequence encodes []T as a 4-byte count followed by the elements.
func Sequence[T any](elem Converter[T]) Converter[[]T] {
	return sequence[T]{elem: elem}
}

type sequence[T any] struct {
	elem Converter[T]
}

func (s sequence[T]) Write(w *Writer, v []T) {
	w.WriteLen(len(v))
	for _, e := range v {
		s.elem.Write(w, e)
	}
}

func (s sequence[T]) Read(r *Reader) ([]T, error) {
	n, err := r.ReadLen()
	if err != nil {
		return nil, err
	}
	// every element takes at least one byte except zero-width ones, so cap the
	// preallocation by what is left in the buffer
	out := make([]T, 0, min(n, r.Remaining()))
	for i := 0; i < n; i++ {
		r.EnterIndex(i)
		e, err := s.elem.Read(r)
		r.Leave()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Map encodes map[K]V as a 4-byte count followed by key/value pairs in
// ascending key order, so equal maps always encode to equal bytes.
func Map[K cmp.Ordered, V any](key Converter[K], val Converter[V]) Converter[map[K]V] {
	return mapConverter[K, V]{key: key, val: val}
}

type mapConverter[K cmp.Ordered, V any] struct {
	key Converter[K]
	val Converter[V]
}

func (m mapConverter[K, V]) Write(w *Writer, v map[K]V) {
	w.WriteLen(len(v))
	for _, k := range slices.Sorted(maps.Keys(v)) {
		m.key.Write(w, k)
		m.val.Write(w, v[k])
	}
}

func (m mapConverter[K, V]) Read(r *Reader) (map[K]V, error) {
	n, err := r.ReadLen()
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, min(n, r.Remaining()))
	for i := 0; i < n; i++ {
		r.EnterIndex(i)
		k, err := m.key.Read(r)
		if err != nil {
			r.Leave()
			return nil, err
		}
		v, err := m.val.Read(r)
		r.Leave()
		if err != nil {
			return nil, err
		}
		if _, dup := out[k]; dup {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(r.currentPath()...).
				WireType("map").
				Value(k).
				Detail("duplicate key %v", k).
				Build()
		}
		out[k] = v
	}
	return out, nil
}

// Func builds a Converter from a pair of functions. Record converters are
// usually written this way, one field after another in declaration order.
func Func[T any](write func(*Writer, T), read func(*Reader) (T, error)) Converter[T] {
	return scalar[T]{write: write, read: read}
}

// Failing returns a converter whose writes record err and whose reads
// decode with read. It models types that can be lifted but never lowered.
func Failing[T any](err error, read func(*Reader) (T, error)) Converter[T] {
	return scalar[T]{
		write: func(w *Writer, _ T) { w.Fail(err) },
		read:  read,
	}
}
