package pipeline

import "context"

// Stage is one link of the chain. Process receives every request routed to
// the stage and returns the requests it wants routed next; unknown kinds
// should be returned unchanged. Signal receives every broadcast event.
//
// A stage may abandon work by returning the call context's error.
type Stage interface {
	Process(ctx context.Context, req Request) (Iterator[Request], error)
	Signal(ctx context.Context, ev Event) error
}
