package pipeline

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/kbukum/tiered/errors"
)

func TestCoreMachine(t *testing.T) {
	meta := &Metadata{}
	tests := []struct {
		name      string
		req       Request
		wantIndex int
		wantSets  int
		wantCache bool
	}{
		{"query advances", NewQuery(meta, []int{1}), 2, 0, false},
		{"retry retreats", NewRetry(meta, []int{1}), 0, 0, false},
		{"result set is recorded", NewResultSet(meta, map[int]int{1: 1}), 0, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState[int, int](meta, CoreMachine[int, int]{})
			s.Index = 1

			next, err := s.Machine.Handle(s, tc.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next.Index != tc.wantIndex {
				t.Errorf("expected index %d, got %d", tc.wantIndex, next.Index)
			}
			if n := next.Results().Len(); n != tc.wantSets {
				t.Errorf("expected %d recorded sets, got %d", tc.wantSets, n)
			}
			if _, ok := next.Machine.(CacheMachine[int, int]); ok != tc.wantCache {
				t.Errorf("expected cache machine=%v, got %T", tc.wantCache, next.Machine)
			}
			if s.Index != 1 {
				t.Error("the input state must not change")
			}
		})
	}
}

func TestCoreMachine_UnknownRequest(t *testing.T) {
	meta := &Metadata{}
	s := NewState[int, int](meta, CoreMachine[int, int]{})
	_, err := s.Machine.Handle(s, &PipelineComplete{EventBase: NewEventBase(meta)})
	if !apperrors.IsCode(err, apperrors.ErrCodeUnknownRequest) {
		t.Errorf("expected UNKNOWN_REQUEST, got %v", err)
	}
	// A query with a different key type is unknown as well.
	if _, err := s.Machine.Handle(s, NewQuery(meta, []string{"a"})); err == nil {
		t.Error("expected an error for a mismatched query type")
	}
}

func TestCacheMachine(t *testing.T) {
	meta := &Metadata{}
	s := NewState[int, int](meta, CacheMachine[int, int]{})
	s.Index = 2

	next, err := s.Machine.Handle(s, NewResultSet(meta, map[int]int{1: 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Index != 1 {
		t.Errorf("expected index 1, got %d", next.Index)
	}
	if next.Results().Len() != 0 {
		t.Error("cache machine must not record results")
	}

	if _, err := s.Machine.Handle(s, NewQuery(meta, []int{1})); !apperrors.IsCode(err, apperrors.ErrCodeUnknownRequest) {
		t.Errorf("expected UNKNOWN_REQUEST for a query, got %v", err)
	}
}

func TestResults_MergeOrder(t *testing.T) {
	var r Results[string, int]
	r.Add(map[string]int{"a": 1, "b": 1})
	r.Add(nil)
	r.Add(map[string]int{"b": 2, "c": 2})

	want := map[string]int{"a": 1, "b": 2, "c": 2}
	if diff := cmp.Diff(want, r.Merge()); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 3 {
		t.Errorf("expected 3 sets, got %d", r.Len())
	}
}

func TestResults_ConcurrentAdd(t *testing.T) {
	var r Results[int, int]
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add(map[int]int{i: i})
		}()
	}
	wg.Wait()
	if got := len(r.Merge()); got != 50 {
		t.Errorf("expected 50 entries, got %d", got)
	}
}

func TestResultSet_CopiesData(t *testing.T) {
	data := map[int]int{1: 1}
	rs := NewResultSet(&Metadata{}, data)
	data[2] = 2
	if rs.Len() != 1 {
		t.Errorf("result set must not observe later changes, got %v", rs.Data())
	}
}
