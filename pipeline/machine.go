package pipeline

import (
	apperrors "github.com/kbukum/tiered/errors"
)

// StateMachine computes where a request goes next. Handle must not block.
type StateMachine[K comparable, V any] interface {
	Handle(s State[K, V], req Request) (State[K, V], error)
}

// MachineFunc adapts a function into a StateMachine.
type MachineFunc[K comparable, V any] func(s State[K, V], req Request) (State[K, V], error)

// Handle calls f.
func (f MachineFunc[K, V]) Handle(s State[K, V], req Request) (State[K, V], error) {
	return f(s, req)
}

// CoreMachine is the default state machine. Queries advance toward the
// source and retries retreat from it. A result set is recorded, retreats,
// and hands the branch to CacheMachine so the same data is not recorded
// again as earlier stages re-emit it.
type CoreMachine[K comparable, V any] struct{}

func (CoreMachine[K, V]) Handle(s State[K, V], req Request) (State[K, V], error) {
	switch r := req.(type) {
	case *Query[K]:
		s.Index++
	case *Retry[K]:
		s.Index--
	case *ResultSet[K, V]:
		s.results.Add(r.Data())
		s.Index--
		s.Machine = CacheMachine[K, V]{}
	default:
		return s, apperrors.UnknownRequest("CoreMachine", req)
	}
	return s, nil
}

// CacheMachine walks an already recorded result set back toward the caller.
type CacheMachine[K comparable, V any] struct{}

func (CacheMachine[K, V]) Handle(s State[K, V], req Request) (State[K, V], error) {
	if _, ok := req.(*ResultSet[K, V]); !ok {
		return s, apperrors.UnknownRequest("CacheMachine", req)
	}
	s.Index--
	return s, nil
}
