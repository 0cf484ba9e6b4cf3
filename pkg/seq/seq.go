// Package seq provides a generic, single-pass, lazy pull sequence.
// Nothing is fetched or computed until a consumer calls Next; composition
// is done with decorator sequences so laziness survives chaining.
package seq

import "context"

// Seq is a pull-based sequence of T. Next returns the next element, or
// ok=false once the sequence is exhausted. A sequence is single-pass:
// after exhaustion (or an error) Next keeps returning ok=false.
type Seq[T any] interface {
	Next(ctx context.Context) (T, bool, error)
}

// Func adapts a pull function into a Seq.
type Func[T any] func(ctx context.Context) (T, bool, error)

// Next implements Seq.
func (f Func[T]) Next(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

// FromSlice returns a Seq yielding the elements of s in order.
func FromSlice[T any](s []T) Seq[T] {
	return &sliceSeq[T]{items: s}
}

type sliceSeq[T any] struct {
	items []T
	pos   int
}

func (s *sliceSeq[T]) Next(_ context.Context) (T, bool, error) {
	var zero T
	if s.pos >= len(s.items) {
		return zero, false, nil
	}
	v := s.items[s.pos]
	s.pos++
	return v, true, nil
}

// Map returns a Seq applying fn to each element as it is pulled.
func Map[T, U any](src Seq[T], fn func(T) U) Seq[U] {
	return &mapSeq[T, U]{src: src, fn: fn}
}

type mapSeq[T, U any] struct {
	src Seq[T]
	fn  func(T) U
}

func (m *mapSeq[T, U]) Next(ctx context.Context) (U, bool, error) {
	var zero U
	v, ok, err := m.src.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	return m.fn(v), true, nil
}

// Filter returns a Seq yielding only elements for which pred is true.
func Filter[T any](src Seq[T], pred func(T) bool) Seq[T] {
	return &filterSeq[T]{src: src, pred: pred}
}

type filterSeq[T any] struct {
	src  Seq[T]
	pred func(T) bool
}

func (f *filterSeq[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		v, ok, err := f.src.Next(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		if f.pred(v) {
			return v, true, nil
		}
	}
}

// Take returns a Seq yielding at most n elements. Take(src, 0) never
// pulls from src at all; laziness here is part of the contract, not an
// optimization, because upstream producers may have side effects.
func Take[T any](src Seq[T], n int) Seq[T] {
	return &takeSeq[T]{src: src, remaining: n}
}

type takeSeq[T any] struct {
	src       Seq[T]
	remaining int
}

func (t *takeSeq[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if t.remaining <= 0 {
		return zero, false, nil
	}
	v, ok, err := t.src.Next(ctx)
	if err != nil || !ok {
		t.remaining = 0
		return zero, false, err
	}
	t.remaining--
	return v, true, nil
}

// Collect drains src into a slice, in order. Draining exhausts the
// sequence; collecting again yields nothing further.
func Collect[T any](ctx context.Context, src Seq[T]) ([]T, error) {
	var out []T
	for {
		v, ok, err := src.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}
