package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/kbukum/tiered/errors"
)

func TestRetrieve_FromSource(t *testing.T) {
	data := map[int]int{1: 2, 2: 2, 3: 5}
	p := newTestPipeline(t, staticSource(data))

	got, err := p.Retrieve(context.Background(), []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieve_EmptyIDs(t *testing.T) {
	p := newTestPipeline(t, staticSource{1: 1})

	got, err := p.Retrieve(context.Background(), []int{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestRetrieve_PassesThroughStages(t *testing.T) {
	var queries, resultSets atomic.Int32
	stage := &funcStage{process: func(_ context.Context, req Request) (Iterator[Request], error) {
		switch req.(type) {
		case *Query[int]:
			queries.Add(1)
		case *ResultSet[int, int]:
			resultSets.Add(1)
		}
		return Of(req), nil
	}}
	p := newTestPipeline(t, staticSource{1: 1}, stage)

	if _, err := p.Retrieve(context.Background(), []int{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queries.Load() != 1 || resultSets.Load() != 1 {
		t.Errorf("expected one query and one result set, got %d and %d", queries.Load(), resultSets.Load())
	}
}

func TestRetrieve_CombinesStagesAndSource(t *testing.T) {
	stage := &staticStage{data: map[int]int{1: 4, 5: 9}}
	p := newTestPipeline(t, staticSource{2: 3}, stage)

	got, err := p.Retrieve(context.Background(), []int{1, 2, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]int{1: 4, 2: 3, 5: 9}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieve_RecordsResultSetOnce(t *testing.T) {
	var (
		mu      sync.Mutex
		results *Results[int, int]
	)
	machine := MachineFunc[int, int](func(s State[int, int], req Request) (State[int, int], error) {
		mu.Lock()
		results = s.Results()
		mu.Unlock()
		return CoreMachine[int, int]{}.Handle(s, req)
	})

	// Three pass-through stages re-emit the source's result set on its way back.
	p := newTestPipelineWithMachine(t, staticSource{1: 1, 2: 2}, machine,
		&funcStage{}, &funcStage{}, &funcStage{})

	got, err := p.Retrieve(context.Background(), []int{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[int]int{1: 1, 2: 2}, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if n := results.Len(); n != 1 {
		t.Errorf("expected the result set to be recorded once, got %d", n)
	}
}

func TestRetrieve_DeferredRequests(t *testing.T) {
	data := map[int]int{1: 1, 6: 1, 7: 9}
	stage := &funcStage{process: func(ctx context.Context, req Request) (Iterator[Request], error) {
		if _, ok := req.(*Query[int]); !ok {
			return Of(req), nil
		}
		return Of[Request](Defer(ctx, req.Metadata(), func(context.Context) ([]Request, error) {
			time.Sleep(time.Millisecond)
			return []Request{req}, nil
		})), nil
	}}
	p := newTestPipeline(t, staticSource(data), stage)

	got, err := p.Retrieve(context.Background(), []int{1, 6, 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieve_RetryFromFirstStageIsDropped(t *testing.T) {
	var reads atomic.Int32
	src := SourceFunc[int, int](func(context.Context, Querier[int]) (map[int]int, error) {
		reads.Add(1)
		return nil, errors.New("source must not be read")
	})
	stage := &funcStage{process: func(_ context.Context, req Request) (Iterator[Request], error) {
		if q, ok := req.(*Query[int]); ok {
			return Of[Request](NewRetry(q.Metadata(), q.IDs())), nil
		}
		return Of(req), nil
	}}
	p := newTestPipeline(t, src, stage)

	got, err := p.Retrieve(context.Background(), []int{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty results, got %v", got)
	}
	if reads.Load() != 0 {
		t.Errorf("expected no source reads, got %d", reads.Load())
	}
}

func TestRetrieve_SourceReadBeforePipelineComplete(t *testing.T) {
	first, second := &funcStage{}, &funcStage{}
	p := newTestPipeline(t, staticSource{1: 1, 2: 2}, first, second)

	if _, err := p.Retrieve(context.Background(), []int{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, stage := range []*funcStage{first, second} {
		events := stage.seen()
		if len(events) != 2 {
			t.Fatalf("stage %d: expected 2 events, got %d", i, len(events))
		}
		read, ok := events[0].(*SourceRead)
		if !ok {
			t.Errorf("stage %d: expected SourceRead first, got %T", i, events[0])
		} else if read.Found != 2 {
			t.Errorf("stage %d: expected Found=2, got %d", i, read.Found)
		}
		if _, ok := events[1].(*PipelineComplete); !ok {
			t.Errorf("stage %d: expected PipelineComplete last, got %T", i, events[1])
		}
	}
}

type flushed struct {
	EventBase
}

func TestRetrieve_CustomEventsReachEveryStage(t *testing.T) {
	stageOne := &funcStage{process: func(_ context.Context, req Request) (Iterator[Request], error) {
		return Of[Request](&flushed{EventBase: NewEventBase(req.Metadata())}), nil
	}}
	stageTwo := &funcStage{}
	p := newTestPipeline(t, staticSource{1: 1, 2: 2}, stageOne, stageTwo)

	if _, err := p.Retrieve(context.Background(), []int{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := countEvents[*flushed](stageTwo.seen()); n != 1 {
		t.Errorf("expected stage two to see the custom event once, got %d", n)
	}
	if n := countEvents[*flushed](stageOne.seen()); n != 1 {
		t.Errorf("expected stage one to see the custom event once, got %d", n)
	}
}

func TestRetrieve_MetadataIsSharedWithinACall(t *testing.T) {
	var (
		mu    sync.Mutex
		metas = map[*Metadata]bool{}
	)
	stage := &funcStage{
		process: func(_ context.Context, req Request) (Iterator[Request], error) {
			mu.Lock()
			metas[req.Metadata()] = true
			mu.Unlock()
			return Of(req), nil
		},
	}
	p := newTestPipeline(t, staticSource{1: 1}, stage)
	if _, err := p.Retrieve(context.Background(), []int{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("expected one metadata instance, got %d", len(metas))
	}
	for meta := range metas {
		if meta.Pipeline.Name != t.Name() || meta.Pipeline.Stages != 1 {
			t.Errorf("unexpected pipeline info %+v", meta.Pipeline)
		}
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	var reads atomic.Int32
	src := SourceFunc[int, int](func(context.Context, Querier[int]) (map[int]int, error) {
		reads.Add(1)
		return nil, nil
	})
	var nilStage *funcStage
	var nilFunc SourceFunc[int, int]

	tests := []struct {
		name  string
		build func() (*Pipeline[int, int], error)
	}{
		{"nil source", func() (*Pipeline[int, int], error) { return New[int, int](nil) }},
		{"nil func source", func() (*Pipeline[int, int], error) { return New[int, int](nilFunc) }},
		{"nil config", func() (*Pipeline[int, int], error) { return NewWithConfig[int, int](src, nil) }},
		{"nil stage", func() (*Pipeline[int, int], error) { return New[int, int](src, &funcStage{}, nil) }},
		{"typed nil stage", func() (*Pipeline[int, int], error) { return New[int, int](src, nilStage) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := tc.build()
			if p != nil {
				t.Error("expected no pipeline")
			}
			if !IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}
	if reads.Load() != 0 {
		t.Errorf("source must not be read, got %d reads", reads.Load())
	}
}

func TestNew_ZeroStages(t *testing.T) {
	p, err := New[int, int](staticSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Info().Stages != 0 || p.Info().Name != "pipeline" {
		t.Errorf("unexpected info %+v", p.Info())
	}
}

func TestRetrieve_NilIDs(t *testing.T) {
	p := newTestPipeline(t, staticSource{})
	if _, err := p.Retrieve(context.Background(), nil); !IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for nil ids, got %v", err)
	}

	var reads atomic.Int32
	ptrSource := SourceFunc[*int, int](func(context.Context, Querier[*int]) (map[*int]int, error) {
		reads.Add(1)
		return nil, nil
	})
	pp, err := NewWithConfig(ptrSource, &Config[*int, int]{})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	one := 1
	if _, err := pp.Retrieve(context.Background(), []*int{&one, nil}); !IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for a nil id, got %v", err)
	}
	if reads.Load() != 0 {
		t.Errorf("source must not be read, got %d reads", reads.Load())
	}
}

func TestRetrieve_OwnCancellationReturnsPartialResults(t *testing.T) {
	data := map[int]int{5: 2, 6: 3, 7: 4}
	started := make(chan struct{})
	src := SourceFunc[int, int](func(ctx context.Context, _ Querier[int]) (map[int]int, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := newTestPipeline(t, src, &staticStage{data: data})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	got, err := p.Retrieve(ctx, []int{5, 6, 7})
	if err != nil {
		t.Fatalf("expected own cancellation to be benign, got %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieve_EnumerationErrorKeepsEarlierRequests(t *testing.T) {
	data := map[int]int{2: 3, 3: 4}
	deferredErr := errors.New("deferred failed")
	stageErr := errors.New("stage failed")

	stage := &funcStage{process: func(ctx context.Context, req Request) (Iterator[Request], error) {
		q, ok := req.(*Query[int])
		if !ok {
			return Empty[Request](), nil
		}
		return FromSeq(func(yield func(Request, error) bool) {
			failed := Defer(ctx, q.Metadata(), func(context.Context) ([]Request, error) {
				return nil, deferredErr
			})
			if !yield(failed, nil) {
				return
			}
			if !yield(NewQuery(q.Metadata(), q.IDs()[:len(q.IDs())/2]), nil) {
				return
			}
			yield(nil, stageErr)
		}), nil
	}}
	p := newTestPipeline(t, staticSource(data), stage)

	_, err := p.Retrieve(context.Background(), []int{2, 3, 1, 4, 5})

	var failure *Error[int, int]
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if diff := cmp.Diff(data, failure.Results); diff != "" {
		t.Errorf("partial results mismatch (-want +got):\n%s", diff)
	}
	if len(failure.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(failure.Errors), failure.Errors)
	}
	if !errors.Is(err, deferredErr) || !errors.Is(err, stageErr) {
		t.Errorf("expected both leaf errors, got %v", failure.Errors)
	}
}

func TestRetrieve_CustomMachineErrors(t *testing.T) {
	machineErr := errors.New("not implemented")
	machine := MachineFunc[int, int](func(s State[int, int], _ Request) (State[int, int], error) {
		return s, machineErr
	})
	// No stages: the source result is the first request the machine sees.
	p := newTestPipelineWithMachine(t, staticSource{1: 1, 2: 2}, machine)

	_, err := p.Retrieve(context.Background(), []int{1, 2})
	var failure *Error[int, int]
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(failure.Errors) != 1 || failure.Errors[0] != machineErr {
		t.Errorf("expected only the machine error, got %v", failure.Errors)
	}
}

func TestRetrieve_CustomMachinePanics(t *testing.T) {
	machine := MachineFunc[int, int](func(State[int, int], Request) (State[int, int], error) {
		panic("broken machine")
	})
	p := newTestPipelineWithMachine(t, staticSource{1: 1}, machine, &funcStage{})

	_, err := p.Retrieve(context.Background(), []int{1})
	if !IsStructural(err) {
		t.Errorf("expected a structural error, got %v", err)
	}
}

func TestRetrieve_InvalidIndex(t *testing.T) {
	for _, index := range []int{2, -2} {
		machine := MachineFunc[int, int](func(s State[int, int], _ Request) (State[int, int], error) {
			s.Index = index
			return s, nil
		})
		p := newTestPipelineWithMachine(t, staticSource{1: 1, 2: 2}, machine, &staticStage{})

		_, err := p.Retrieve(context.Background(), []int{1, 2})
		var failure *Error[int, int]
		if !errors.As(err, &failure) {
			t.Fatalf("index %d: expected *Error, got %v", index, err)
		}
		// The stage emits a result set and a query; both land out of range.
		for _, leaf := range failure.Errors {
			if !apperrors.IsCode(leaf, apperrors.ErrCodeInvalidState) {
				t.Errorf("index %d: expected INVALID_STATE, got %v", index, leaf)
			}
		}
		if len(failure.Errors) == 0 {
			t.Errorf("index %d: expected errors", index)
		}
	}
}

func TestRetrieve_NonQueryAtSourceIsStructural(t *testing.T) {
	// Sends a result set forward: the machine moves every request one step
	// toward the source.
	forward := MachineFunc[int, int](func(s State[int, int], _ Request) (State[int, int], error) {
		s.Index++
		return s, nil
	})
	stage := &funcStage{process: func(_ context.Context, req Request) (Iterator[Request], error) {
		return Of[Request](NewResultSet(req.Metadata(), map[int]int{1: 1})), nil
	}}
	p := newTestPipelineWithMachine(t, staticSource{1: 1}, forward, stage)

	_, err := p.Retrieve(context.Background(), []int{1})
	if !IsStructural(err) {
		t.Errorf("expected a structural error, got %v", err)
	}
}

func TestRetrieve_UnknownRequestKind(t *testing.T) {
	type custom struct{ Query[int] }
	stage := &funcStage{process: func(_ context.Context, req Request) (Iterator[Request], error) {
		return Of[Request](&custom{}), nil
	}}
	p := newTestPipeline(t, staticSource{}, stage)

	_, err := p.Retrieve(context.Background(), []int{1})
	if !apperrors.IsCode(err, apperrors.ErrCodeUnknownRequest) {
		t.Errorf("expected UNKNOWN_REQUEST, got %v", err)
	}
}

func TestRetrieve_PipelineCompleteSentOnFailure(t *testing.T) {
	stage := &funcStage{process: func(context.Context, Request) (Iterator[Request], error) {
		return nil, errors.New("stage down")
	}}
	p := newTestPipeline(t, failingSource(errors.New("unused")), stage)

	if _, err := p.Retrieve(context.Background(), []int{1}); err == nil {
		t.Fatal("expected an error")
	}
	if n := countEvents[*PipelineComplete](stage.seen()); n != 1 {
		t.Errorf("expected one PipelineComplete, got %d", n)
	}
}

func TestRetrieve_SignalErrorsAreReported(t *testing.T) {
	signalErr := errors.New("signal failed")
	stage := &funcStage{signal: func(_ context.Context, ev Event) error {
		if _, ok := ev.(*PipelineComplete); ok {
			return signalErr
		}
		return nil
	}}
	p := newTestPipeline(t, staticSource{1: 1}, stage)

	_, err := p.Retrieve(context.Background(), []int{1})
	var failure *Error[int, int]
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if diff := cmp.Diff(map[int]int{1: 1}, failure.Results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, signalErr) {
		t.Errorf("expected signal error, got %v", err)
	}
}

func TestRetrieve_StagePanicIsReported(t *testing.T) {
	stage := &funcStage{process: func(context.Context, Request) (Iterator[Request], error) {
		panic("stage exploded")
	}}
	p := newTestPipeline(t, staticSource{}, stage)

	_, err := p.Retrieve(context.Background(), []int{1})
	if !apperrors.IsCode(err, apperrors.ErrCodeInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}
