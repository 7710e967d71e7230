package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/kbukum/tiered/errors"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/resilience"
)

func query(ids ...int) pipeline.Querier[int] {
	return pipeline.NewQuery(&pipeline.Metadata{}, ids)
}

func TestMap(t *testing.T) {
	data := map[int]string{1: "a", 2: "b"}
	m := NewMap(data)
	data[3] = "c"

	got, err := m.Read(context.Background(), query(1, 3, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[int]string{1: "a"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Read(ctx, query(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBounded_LimitsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := pipeline.SourceFunc[int, int](func(_ context.Context, q pipeline.Querier[int]) (map[int]int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return map[int]int{q.IDs()[0]: 1}, nil
	})
	src := Bounded(slow, resilience.BulkheadConfig{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := src.Read(context.Background(), query(i)); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 reads in flight, saw %d", p)
	}
}

func TestBounded_CancelledWhileWaiting(t *testing.T) {
	block := make(chan struct{})
	src := Bounded(pipeline.SourceFunc[int, int](func(context.Context, pipeline.Querier[int]) (map[int]int, error) {
		<-block
		return nil, nil
	}), resilience.BulkheadConfig{MaxConcurrent: 1})
	defer close(block)

	go func() { _, _ = src.Read(context.Background(), query(1)) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Read(ctx, query(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the caller's deadline, got %v", err)
	}
}

func TestWithResilience_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	flaky := pipeline.SourceFunc[int, int](func(context.Context, pipeline.Querier[int]) (map[int]int, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return map[int]int{1: 1}, nil
	})
	src := WithResilience(flaky, ResilienceConfig{
		Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})

	got, err := src.Read(context.Background(), query(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || calls.Load() != 3 {
		t.Errorf("expected success on the third attempt, got %v after %d calls", got, calls.Load())
	}
}

func TestWithResilience_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	bad := pipeline.SourceFunc[int, int](func(context.Context, pipeline.Querier[int]) (map[int]int, error) {
		calls.Add(1)
		return nil, apperrors.InvalidArgument("ids", "unsupported")
	})
	src := WithResilience(bad, ResilienceConfig{
		Retry: &resilience.RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond},
	})

	_, err := src.Read(context.Background(), query(1))
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestWithResilience_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	down := pipeline.SourceFunc[int, int](func(context.Context, pipeline.Querier[int]) (map[int]int, error) {
		calls.Add(1)
		return nil, errors.New("down")
	})
	src := WithResilience(down, ResilienceConfig{
		Breaker: &resilience.CircuitBreakerConfig{Name: "db", MaxFailures: 2, Timeout: time.Hour},
	})
	ctx := context.Background()

	for range 2 {
		_, _ = src.Read(ctx, query(1))
	}
	_, err := src.Read(ctx, query(1))
	if !errors.Is(err, resilience.ErrCircuitOpen) || !apperrors.IsCode(err, apperrors.ErrCodeSourceUnavailable) {
		t.Fatalf("expected an open circuit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected the open breaker to skip the source, got %d calls", calls.Load())
	}
}

func TestWithResilience_RateLimited(t *testing.T) {
	src := WithResilience(NewMap(map[int]int{1: 1}), ResilienceConfig{
		RateLimit: &resilience.RateLimiterConfig{Name: "db", Rate: 0.01, Burst: 1},
	})
	if _, err := src.Read(context.Background(), query(1)); err != nil {
		t.Fatalf("first read should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Read(ctx, query(1))
	if !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestInstrument(t *testing.T) {
	boom := errors.New("boom")
	src := Instrument("test", pipeline.SourceFunc[int, int](func(_ context.Context, q pipeline.Querier[int]) (map[int]int, error) {
		if q.IDs()[0] < 0 {
			return nil, boom
		}
		return map[int]int{q.IDs()[0]: 1}, nil
	}), logger.Nop(), nil)

	got, err := src.Read(context.Background(), query(1))
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result %v, %v", got, err)
	}
	if _, err := src.Read(context.Background(), query(-1)); !errors.Is(err, boom) {
		t.Errorf("expected the source error unchanged, got %v", err)
	}
}

func TestWrappersInPipeline(t *testing.T) {
	src := Instrument("orders", Bounded(
		WithResilience[int, string](NewMap(map[int]string{1: "one", 2: "two"}), ResilienceConfig{
			Retry: &resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond},
		}),
		resilience.BulkheadConfig{MaxConcurrent: 1},
	), logger.Nop(), nil)

	p, err := pipeline.New[int, string](src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := p.Retrieve(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[int]string{1: "one", 2: "two"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
