package client

import (
	"io"
	"sync"

	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/sse"
)

/*
Stream is one open SSE subscription. Events arrive on Events() in the order
the server emitted them; the channel closes when the stream ends, after
which Err tells a clean close from a failure.
*/
type Stream struct {
	events chan a2a.Event
	reader *sse.Reader
	body   io.Closer

	mu       sync.Mutex
	err      error
	finished bool
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		events: make(chan a2a.Event),
		reader: sse.NewReader(body),
		body:   body,
	}
}

// Events returns the channel events are delivered on.
func (stream *Stream) Events() <-chan a2a.Event {
	return stream.events
}

// Err reports why the stream ended; nil means a clean close.
func (stream *Stream) Err() error {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.err
}

// Close abandons the stream. The underlying execution keeps running on the
// server side.
func (stream *Stream) Close() {
	_ = stream.body.Close()
}

func (stream *Stream) finish(err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	if stream.finished {
		return
	}

	stream.finished = true
	stream.err = err
	close(stream.events)
}
