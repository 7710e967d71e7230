package pipeline

// Event is a request delivered to every stage's Signal method instead of
// being routed by position. Custom events embed EventBase:
//
//	type Evicted struct {
//	    pipeline.EventBase
//	    Keys []string
//	}
type Event interface {
	Request
	isEvent()
}

// EventBase implements Event for embedding types.
type EventBase struct {
	Meta *Metadata
}

// NewEventBase returns an EventBase for the call described by meta.
func NewEventBase(meta *Metadata) EventBase {
	return EventBase{Meta: meta}
}

func (e EventBase) Metadata() *Metadata { return e.Meta }

func (EventBase) isEvent() {}

// PipelineComplete is broadcast once per call after routing has finished,
// whether or not it failed.
type PipelineComplete struct {
	EventBase
}

// SourceRead is broadcast after the source returned data for a query.
type SourceRead struct {
	EventBase
	// Found is the number of identifiers the source supplied.
	Found int
}
