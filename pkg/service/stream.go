package service

import (
	"sync"

	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

/*
EventStream carries one consumer's live event sequence. Events arrive on
Events() in publish order; once the channel closes, Err tells a clean
end-of-stream apart from a stream that was cut off mid-flight.
*/
type EventStream struct {
	events chan a2a.Event
	mu     sync.Mutex
	err    *errors.RpcError
}

func newEventStream(buffer int) *EventStream {
	return &EventStream{events: make(chan a2a.Event, buffer)}
}

// Events returns the channel events are delivered on.
func (stream *EventStream) Events() <-chan a2a.Event {
	return stream.events
}

// Err reports why the stream ended. It is nil after a clean close, so it is
// only meaningful once Events() is drained.
func (stream *EventStream) Err() *errors.RpcError {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.err
}

func (stream *EventStream) fail(err *errors.RpcError) {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	stream.err = err
}
