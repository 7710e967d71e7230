package pipeline

import "sync"

// State is the position of one branch of a call. It is passed by value;
// each transition yields a new State. Only the Results collection is shared
// between branches.
type State[K comparable, V any] struct {
	// Index is the stage the request goes to next. len(stages) addresses
	// the source and -1 means the branch is finished.
	Index int
	// Machine computes the next State for a request. A machine may replace
	// itself by returning a State with a different Machine.
	Machine StateMachine[K, V]

	results *Results[K, V]
	meta    *Metadata
}

// NewState returns the initial position of a call.
func NewState[K comparable, V any](meta *Metadata, machine StateMachine[K, V]) State[K, V] {
	return State[K, V]{Machine: machine, results: &Results[K, V]{}, meta: meta}
}

// Results returns the collection shared by every branch of the call.
func (s State[K, V]) Results() *Results[K, V] { return s.results }

// Metadata returns the call metadata.
func (s State[K, V]) Metadata() *Metadata { return s.meta }

// Results accumulates the result sets recorded during a call. It is safe
// for concurrent use.
type Results[K comparable, V any] struct {
	mu   sync.Mutex
	sets []map[K]V
}

// Add appends set.
func (r *Results[K, V]) Add(set map[K]V) {
	r.mu.Lock()
	r.sets = append(r.sets, set)
	r.mu.Unlock()
}

// Len returns the number of recorded sets.
func (r *Results[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

// Merge folds the recorded sets into one mapping in the order they were
// added. An identifier present in several sets takes its last value.
func (r *Results[K, V]) Merge() map[K]V {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := 0
	for _, set := range r.sets {
		size += len(set)
	}
	out := make(map[K]V, size)
	for _, set := range r.sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
