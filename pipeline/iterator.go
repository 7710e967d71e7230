package pipeline

import (
	"context"
	"iter"
)

// Iterator provides pull-based sequential access to a stream of values.
// Stages return an Iterator of requests so the engine can start routing the
// first requests before the stage has produced the last.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	// A non-nil error ends the sequence.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Of returns an iterator over items.
func Of[T any](items ...T) Iterator[T] {
	return &sliceIter[T]{items: items}
}

// Empty returns an exhausted iterator.
func Empty[T any]() Iterator[T] {
	return &sliceIter[T]{}
}

// FromFunc adapts a next function into an Iterator.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error)) Iterator[T] {
	return &funcIter[T]{next: next}
}

// FromSeq adapts a range-over-func sequence into an Iterator. The sequence
// ends at the first non-nil error, which Next returns.
//
//	return pipeline.FromSeq(func(yield func(pipeline.Request, error) bool) {
//	    if !yield(pipeline.NewQuery(meta, first), nil) {
//	        return
//	    }
//	    yield(nil, errSplit)
//	}), nil
func FromSeq[T any](seq iter.Seq2[T, error]) Iterator[T] {
	return &seqIter[T]{seq: seq}
}

// Collect drains it and closes it, returning the values pulled before any error.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var result []T
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}
		result = append(result, val)
	}
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type funcIter[T any] struct {
	next func(ctx context.Context) (T, bool, error)
	done bool
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	val, ok, err := it.next(ctx)
	if err != nil || !ok {
		it.done = true
		return zero, false, err
	}
	return val, true, nil
}

func (it *funcIter[T]) Close() error {
	it.done = true
	return nil
}

type seqIter[T any] struct {
	seq  iter.Seq2[T, error]
	next func() (T, error, bool)
	stop func()
	done bool
}

func (it *seqIter[T]) Next(_ context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	if it.next == nil {
		it.next, it.stop = iter.Pull2(it.seq)
	}
	val, err, ok := it.next()
	if !ok || err != nil {
		it.done = true
		it.stop()
		return zero, false, err
	}
	return val, true, nil
}

func (it *seqIter[T]) Close() error {
	it.done = true
	if it.stop != nil {
		it.stop()
	}
	return nil
}
