package stage

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/kbukum/tiered/pipeline"
)

type requestHandler func(ctx context.Context, req pipeline.Request) (pipeline.Iterator[pipeline.Request], error)

type eventHandler func(ctx context.Context, ev pipeline.Event) error

// Dispatcher is a pipeline.Stage that routes each request to the handler
// registered for its exact dynamic type. A request with no handler is
// passed on unchanged and an event with no handler is ignored.
//
// The zero value is ready to use and safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	requests map[reflect.Type]requestHandler
	events   map[reflect.Type]eventHandler
}

var _ pipeline.Stage = (*Dispatcher)(nil)

// Handle registers fn for requests whose dynamic type is exactly T. T must
// be a concrete type such as *pipeline.Query[string]; registering an
// interface type panics. A later registration for T replaces the earlier.
func Handle[T pipeline.Request](d *Dispatcher, fn func(ctx context.Context, req T) (pipeline.Iterator[pipeline.Request], error)) {
	t := concreteType[T]()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.requests == nil {
		d.requests = make(map[reflect.Type]requestHandler)
	}
	d.requests[t] = func(ctx context.Context, req pipeline.Request) (pipeline.Iterator[pipeline.Request], error) {
		return fn(ctx, req.(T))
	}
}

// OnEvent registers fn for broadcast events whose dynamic type is exactly
// T. A later registration for T replaces the earlier.
func OnEvent[T pipeline.Event](d *Dispatcher, fn func(ctx context.Context, ev T) error) {
	t := concreteType[T]()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.events == nil {
		d.events = make(map[reflect.Type]eventHandler)
	}
	d.events[t] = func(ctx context.Context, ev pipeline.Event) error {
		return fn(ctx, ev.(T))
	}
}

// Process implements pipeline.Stage.
func (d *Dispatcher) Process(ctx context.Context, req pipeline.Request) (pipeline.Iterator[pipeline.Request], error) {
	d.mu.RLock()
	fn, ok := d.requests[reflect.TypeOf(req)]
	d.mu.RUnlock()
	if !ok {
		return pipeline.Of(req), nil
	}
	return fn(ctx, req)
}

// Signal implements pipeline.Stage.
func (d *Dispatcher) Signal(ctx context.Context, ev pipeline.Event) error {
	d.mu.RLock()
	fn, ok := d.events[reflect.TypeOf(ev)]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return fn(ctx, ev)
}

func concreteType[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		panic(fmt.Sprintf("stage: cannot register handler for interface type %s", t))
	}
	return t
}
