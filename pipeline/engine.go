package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	apperrors "github.com/kbukum/tiered/errors"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/observability"
)

// Pipeline routes retrievals through an ordered chain of stages in front of
// one source. It keeps no per-call state and is safe for concurrent use.
type Pipeline[K comparable, V any] struct {
	source  Source[K, V]
	stages  []Stage
	machine StateMachine[K, V]
	info    Info
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// New creates a Pipeline with the default configuration.
func New[K comparable, V any](source Source[K, V], stages ...Stage) (*Pipeline[K, V], error) {
	return NewWithConfig(source, DefaultConfig[K, V](), stages...)
}

// NewWithConfig creates a Pipeline. stages are ordered from the caller
// toward the source.
func NewWithConfig[K comparable, V any](source Source[K, V], cfg *Config[K, V], stages ...Stage) (*Pipeline[K, V], error) {
	if isNil(source) {
		return nil, apperrors.InvalidArgument("source", "must not be nil")
	}
	if cfg == nil {
		return nil, apperrors.InvalidArgument("config", "must not be nil")
	}
	for i, s := range stages {
		if isNil(s) {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("stages[%d]", i), "must not be nil")
		}
	}

	c := *cfg
	c.ApplyDefaults()
	info := Info{
		Name:       c.Name,
		SourceType: fmt.Sprintf("%T", source),
		Stages:     len(stages),
	}
	return &Pipeline[K, V]{
		source:  source,
		stages:  append([]Stage(nil), stages...),
		machine: c.InitialMachine,
		info:    info,
		log:     c.Logger.WithFields(logger.Fields(logger.FieldPipeline, c.Name)),
		metrics: c.Metrics,
	}, nil
}

// Info describes the pipeline.
func (p *Pipeline[K, V]) Info() Info { return p.info }

// Retrieve fetches the data for ids. ctx is the call's cancellation signal:
// work abandoned because ctx was cancelled is dropped quietly and whatever
// was recorded is returned without error. Any other failure yields an
// *Error carrying the partial results.
func (p *Pipeline[K, V]) Retrieve(ctx context.Context, ids []K) (map[K]V, error) {
	if ids == nil {
		return nil, apperrors.InvalidArgument("ids", "must not be nil")
	}
	for i, id := range ids {
		if isNil(id) {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("ids[%d]", i), "must not be nil")
		}
	}

	meta := &Metadata{CallID: uuid.New(), Pipeline: p.info}
	state := NewState(meta, p.machine)
	ctx, span, op := observability.StartOperation(ctx, observability.SpanRetrieve,
		p.info.Name, meta.CallID.String(), p.metrics)

	c := &call[K, V]{
		Pipeline: p,
		meta:     meta,
		log:      p.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldCallID, meta.CallID.String())),
	}
	c.log.Debug("retrieve started", logger.Fields(logger.FieldIDs, len(ids)))

	err := c.run(ctx, state, NewQuery(meta, ids))
	data := state.Results().Merge()

	if err == nil {
		outcome := observability.OutcomeOK
		if ctx.Err() != nil {
			outcome = observability.OutcomeCancelled
		}
		c.log.Debug("retrieve finished", logger.Fields(
			logger.FieldResults, len(data),
			logger.FieldDuration, op.Duration().Milliseconds(),
			"outcome", outcome,
		))
		op.EndRetrieve(ctx, span, outcome, len(ids), len(data), nil)
		return data, nil
	}

	failure := &Error[K, V]{Results: data, Errors: flatten(err)}
	for _, leaf := range failure.Errors {
		p.metrics.RecordError(ctx, codeOf(leaf), "pipeline")
	}
	outcome := observability.OutcomeError
	if len(data) > 0 {
		outcome = observability.OutcomePartial
	}
	c.log.Warn("retrieve failed", logger.Fields(
		logger.FieldError, failure,
		logger.FieldResults, len(data),
		"errors", len(failure.Errors),
	))
	op.EndRetrieve(ctx, span, outcome, len(ids), len(data), failure)
	return nil, failure
}

// call is the routing context of one Retrieve.
type call[K comparable, V any] struct {
	*Pipeline[K, V]
	meta *Metadata
	log  *logger.Logger
}

// run routes q and then announces completion to every stage, even when
// routing failed.
func (c *call[K, V]) run(ctx context.Context, s State[K, V], q *Query[K]) error {
	err := catch(func() error { return c.route(ctx, s, q) })
	return multierr.Append(err, c.broadcast(ctx, &PipelineComplete{EventBase: NewEventBase(c.meta)}))
}

// route delivers req to whatever s.Index addresses.
func (c *call[K, V]) route(ctx context.Context, s State[K, V], req Request) error {
	n := len(c.stages)
	switch {
	case s.Index < -1 || s.Index > n:
		return apperrors.InvalidState(fmt.Sprintf("index %d is outside [-1, %d]", s.Index, n)).
			WithDetail("index", s.Index).
			WithDetail("request", c.kind(req))
	case s.Index == -1:
		return nil
	case s.Index == n:
		q, ok := req.(Querier[K])
		if !ok {
			return apperrors.InvalidState(fmt.Sprintf("%s request cannot be sent to the source", c.kind(req))).
				WithDetail("request", c.kind(req))
		}
		return c.read(ctx, s, q)
	}

	c.metrics.RecordStageRequest(ctx, c.info.Name, s.Index, c.kind(req))
	seq, err := c.stages[s.Index].Process(ctx, req)
	if err != nil {
		if ownCancellation(ctx, err) {
			return nil
		}
		return err
	}
	if seq == nil {
		return nil
	}
	return c.batch(ctx, s, seq)
}

// read queries the source, then announces the read and routes the data
// back concurrently.
func (c *call[K, V]) read(ctx context.Context, s State[K, V], q Querier[K]) error {
	start := time.Now()
	data, err := c.source.Read(ctx, q)
	if err != nil {
		if ownCancellation(ctx, err) {
			c.metrics.RecordSourceRead(ctx, c.info.SourceType, observability.OutcomeCancelled, time.Since(start))
			return nil
		}
		c.metrics.RecordSourceRead(ctx, c.info.SourceType, observability.OutcomeError, time.Since(start))
		return err
	}
	c.metrics.RecordSourceRead(ctx, c.info.SourceType, observability.OutcomeOK, time.Since(start))
	c.log.Debug("source read", logger.Fields(logger.FieldIDs, len(q.IDs()), logger.FieldResults, len(data)))

	rs := NewResultSet(c.meta, data)
	p := pool.New().WithErrors()
	p.Go(func() error {
		return c.broadcast(ctx, &SourceRead{EventBase: NewEventBase(c.meta), Found: rs.Len()})
	})
	p.Go(func() error {
		return catch(func() error { return c.process(ctx, s, rs) })
	})
	return p.Wait()
}

// batch routes every request seq yields, starting each branch as soon as
// its request is produced. An error ending the sequence is reported after
// the branches already started have finished.
func (c *call[K, V]) batch(ctx context.Context, s State[K, V], seq Iterator[Request]) error {
	branches := pool.New().WithErrors()
	var seqErr error
	for {
		var (
			req Request
			ok  bool
		)
		err := catch(func() error {
			var err error
			req, ok, err = seq.Next(ctx)
			return err
		})
		if err != nil {
			if !ownCancellation(ctx, err) {
				seqErr = err
			}
			break
		}
		if !ok {
			break
		}
		branches.Go(func() error {
			return catch(func() error { return c.process(ctx, s, req) })
		})
	}
	if err := seq.Close(); err != nil && !ownCancellation(ctx, err) {
		seqErr = multierr.Append(seqErr, err)
	}
	return multierr.Append(seqErr, branches.Wait())
}

// process handles one request emitted by a stage or the source.
func (c *call[K, V]) process(ctx context.Context, s State[K, V], req Request) error {
	switch r := req.(type) {
	case nil:
		return apperrors.InvalidState("a nil request was emitted")
	case *Deferred:
		reqs, err := r.Await(ctx)
		if err != nil {
			if ownCancellation(ctx, err) {
				return nil
			}
			return err
		}
		return c.batch(ctx, s, Of(reqs...))
	case Event:
		return c.broadcast(ctx, r)
	}

	next, err := c.transition(s, req)
	if err != nil {
		return err
	}
	return c.route(ctx, next, req)
}

// transition applies the branch's active machine.
func (c *call[K, V]) transition(s State[K, V], req Request) (next State[K, V], err error) {
	if s.Machine == nil {
		return s, apperrors.InvalidState("no state machine is active").WithDetail("request", c.kind(req))
	}
	var pc panics.Catcher
	pc.Try(func() { next, err = s.Machine.Handle(s, req) })
	if r := pc.Recovered(); r != nil {
		return s, apperrors.InvalidState(fmt.Sprintf("state machine %T panicked", s.Machine)).
			WithCause(r.AsError())
	}
	if err != nil {
		return s, err
	}
	next.results, next.meta = s.results, s.meta
	return next, nil
}

// broadcast delivers ev to every stage concurrently.
func (c *call[K, V]) broadcast(ctx context.Context, ev Event) error {
	c.metrics.RecordEvent(ctx, c.info.Name, c.kind(ev))
	p := pool.New().WithErrors()
	for _, st := range c.stages {
		p.Go(func() error {
			err := catch(func() error { return st.Signal(ctx, ev) })
			if ownCancellation(ctx, err) {
				return nil
			}
			return err
		})
	}
	return p.Wait()
}

func (c *call[K, V]) kind(req Request) string {
	switch req.(type) {
	case *Query[K]:
		return "query"
	case *Retry[K]:
		return "retry"
	case *ResultSet[K, V]:
		return "result_set"
	case *Deferred:
		return "deferred"
	case *PipelineComplete:
		return "pipeline_complete"
	case *SourceRead:
		return "source_read"
	}
	return fmt.Sprintf("%T", req)
}

// catch converts a panic in fn into an INTERNAL_ERROR.
func catch(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return apperrors.Internal(r.AsError())
	}
	return err
}

// isNil reports whether v is nil or a typed nil.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
