package chunk

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kbukum/tiered/pipeline"
)

func TestStage_Split(t *testing.T) {
	tests := []struct {
		name string
		size int
		ids  []int
		want [][]int
	}{
		{"under size", 3, []int{1, 2}, [][]int{{1, 2}}},
		{"exact size", 2, []int{1, 2}, [][]int{{1, 2}}},
		{"uneven", 2, []int{1, 2, 3, 4, 5}, [][]int{{1, 2}, {3, 4}, {5}}},
		{"size one", 1, []int{7, 8}, [][]int{{7}, {8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New[int](tt.size)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ctx := context.Background()
			seq, err := s.Process(ctx, pipeline.NewQuery(&pipeline.Metadata{}, tt.ids))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			reqs, _ := pipeline.Collect(ctx, seq)

			var got [][]int
			for _, r := range reqs {
				q, ok := r.(*pipeline.Query[int])
				if !ok {
					t.Fatalf("expected queries only, got %T", r)
				}
				got = append(got, q.IDs())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStage_ChunksDoNotAlias(t *testing.T) {
	s, _ := New[int](2)
	ctx := context.Background()
	seq, _ := s.Process(ctx, pipeline.NewQuery(&pipeline.Metadata{}, []int{1, 2, 3}))
	reqs, _ := pipeline.Collect(ctx, seq)

	first := reqs[0].(*pipeline.Query[int]).IDs()
	if cap(first) != len(first) {
		t.Errorf("expected chunk capacity to be clipped, got cap %d len %d", cap(first), len(first))
	}
}

func TestStage_RetryPassesThrough(t *testing.T) {
	s, _ := New[int](1)
	r := pipeline.NewRetry(&pipeline.Metadata{}, []int{1, 2, 3})
	seq, _ := s.Process(context.Background(), r)
	reqs, _ := pipeline.Collect(context.Background(), seq)
	if len(reqs) != 1 || reqs[0] != pipeline.Request(r) {
		t.Errorf("expected the retry unchanged, got %v", reqs)
	}
}

func TestNew_InvalidSize(t *testing.T) {
	if _, err := New[int](0); err == nil {
		t.Error("expected size 0 to be rejected")
	}
}

func TestStage_InPipeline(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	src := pipeline.SourceFunc[int, int](func(_ context.Context, q pipeline.Querier[int]) (map[int]int, error) {
		mu.Lock()
		batches = append(batches, len(q.IDs()))
		mu.Unlock()
		out := make(map[int]int)
		for _, id := range q.IDs() {
			out[id] = id
		}
		return out, nil
	})
	s, _ := New[int](3)
	p, err := pipeline.New[int, int](src, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := []int{1, 2, 3, 4, 5, 6, 7}
	got, err := p.Retrieve(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(ids) {
		t.Errorf("expected %d results, got %d", len(ids), len(got))
	}
	slices.Sort(batches)
	if diff := cmp.Diff([]int{1, 3, 3}, batches); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}
