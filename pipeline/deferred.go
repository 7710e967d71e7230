package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/panics"

	apperrors "github.com/kbukum/tiered/errors"
)

// Deferred is a batch of requests that will be known later. The engine
// awaits it and routes the resolved requests as if the stage had returned
// them directly; a Deferred is never handed to a stage.
type Deferred struct {
	meta *Metadata
	done chan struct{}
	reqs []Request
	err  error
}

// Defer starts fn on its own goroutine and returns the Deferred that
// resolves to its result. fn should return promptly once ctx is done.
func Defer(ctx context.Context, meta *Metadata, fn func(ctx context.Context) ([]Request, error)) *Deferred {
	d := &Deferred{meta: meta, done: make(chan struct{})}
	go func() {
		defer close(d.done)
		var pc panics.Catcher
		pc.Try(func() { d.reqs, d.err = fn(ctx) })
		if r := pc.Recovered(); r != nil {
			d.reqs, d.err = nil, apperrors.Internal(r.AsError())
		}
	}()
	return d
}

// Resolved returns a Deferred that has already resolved to reqs.
func Resolved(meta *Metadata, reqs ...Request) *Deferred {
	d := &Deferred{meta: meta, done: make(chan struct{}), reqs: reqs}
	close(d.done)
	return d
}

func (d *Deferred) Metadata() *Metadata { return d.meta }

// Done is closed once the Deferred has resolved.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Await blocks until the Deferred resolves or ctx is done.
func (d *Deferred) Await(ctx context.Context) ([]Request, error) {
	select {
	case <-d.done:
		return d.reqs, d.err
	default:
	}
	select {
	case <-d.done:
		return d.reqs, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
