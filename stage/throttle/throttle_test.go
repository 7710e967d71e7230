package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/tiered/errors"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/resilience"
)

func echoSource() pipeline.Source[int, int] {
	return pipeline.SourceFunc[int, int](func(_ context.Context, q pipeline.Querier[int]) (map[int]int, error) {
		out := make(map[int]int)
		for _, id := range q.IDs() {
			out[id] = id * 10
		}
		return out, nil
	})
}

func TestStage_DefersQueries(t *testing.T) {
	s := New[int](Config{RateLimiterConfig: resilience.RateLimiterConfig{Rate: 1000, Burst: 10}}, logger.Nop())
	ctx := context.Background()
	q := pipeline.NewQuery(&pipeline.Metadata{CallID: uuid.New()}, []int{1, 2})

	seq, err := s.Process(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reqs, err := pipeline.Collect(ctx, seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected one deferred request, got %d", len(reqs))
	}
	d, ok := reqs[0].(*pipeline.Deferred)
	if !ok {
		t.Fatalf("expected *pipeline.Deferred, got %T", reqs[0])
	}
	resolved, err := d.Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 1 || resolved[0] != pipeline.Request(q) {
		t.Errorf("expected the original query back, got %v", resolved)
	}
}

func TestStage_ResultSetPassesThrough(t *testing.T) {
	s := New[int](Config{}, logger.Nop())
	rs := pipeline.NewResultSet(&pipeline.Metadata{}, map[int]int{1: 1})

	seq, _ := s.Process(context.Background(), rs)
	reqs, _ := pipeline.Collect(context.Background(), seq)
	if len(reqs) != 1 || reqs[0] != pipeline.Request(rs) {
		t.Errorf("expected the result set unchanged, got %v", reqs)
	}
}

func TestStage_InPipeline(t *testing.T) {
	s := New[int](Config{RateLimiterConfig: resilience.RateLimiterConfig{Rate: 1000, Burst: 5}, PerID: true}, logger.Nop())
	p, err := pipeline.New[int, int](echoSource(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := p.Retrieve(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[3] != 30 {
		t.Errorf("unexpected results %v", got)
	}
}

func TestStage_RejectsWhenDeadlineTooClose(t *testing.T) {
	s := New[int](Config{RateLimiterConfig: resilience.RateLimiterConfig{Name: "slow", Rate: 0.01, Burst: 1}}, logger.Nop())
	p, _ := pipeline.New[int, int](echoSource(), s)

	if _, err := p.Retrieve(context.Background(), []int{1}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Retrieve(ctx, []int{1})
	if !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestStage_CallerCancellationIsQuiet(t *testing.T) {
	s := New[int](Config{RateLimiterConfig: resilience.RateLimiterConfig{Rate: 0.01, Burst: 1}}, logger.Nop())
	p, _ := pipeline.New[int, int](echoSource(), s)
	_, _ = p.Retrieve(context.Background(), []int{1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	got, err := p.Retrieve(ctx, []int{1})
	if err != nil {
		t.Fatalf("expected cancellation to be benign, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}
