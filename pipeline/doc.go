// Package pipeline routes data retrievals through an ordered chain of
// stages in front of an authoritative source.
//
// A call to Retrieve seeds a Query at the first stage. Each stage answers
// with further requests, and a StateMachine decides where each of them goes:
// by default a Query moves one stage toward the source, a Retry moves one
// stage back, and a ResultSet is recorded once and then walked back through
// the earlier stages so they can cache it. Requests reaching index -1 are
// done. Index len(stages) is the source, which only accepts queries.
//
// Requests emitted together are routed concurrently. A Deferred request is
// awaited and its resolved batch routed as though the stage had returned it
// directly. Events bypass routing and are delivered to every stage; the
// engine broadcasts SourceRead after each source read and PipelineComplete
// at the end of every call, even a failed one.
//
// # Cancellation
//
// The context passed to Retrieve is the call's cancellation signal. A
// collaborator failing with that context's error is treated as having
// abandoned its work: the branch is dropped and no error is reported. A
// cancellation error from any other context is a failure like any other.
//
// # Errors
//
// Failures are gathered from every branch and returned together as an
// *Error that also carries the results recorded so far:
//
//	data, err := p.Retrieve(ctx, ids)
//	var failure *pipeline.Error[string, User]
//	if errors.As(err, &failure) {
//	    data = failure.Results
//	}
//
// # Usage
//
//	p, err := pipeline.New[string, User](usersSource, memoryTier, redisTier)
//	users, err := p.Retrieve(ctx, []string{"a", "b"})
package pipeline
