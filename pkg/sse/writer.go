package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

/*
Writer emits server-sent events over an HTTP response. Each record carries
a monotonically increasing id, an optional event type and one JSON payload,
terminated by a blank line, and is flushed immediately.
*/
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int
}

// NewWriter prepares w for streaming, setting the SSE headers. It fails
// when the underlying connection cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one record of the default event type.
func (writer *Writer) Send(payload any) error {
	return writer.send("", payload)
}

// SendError writes a terminal record with event type "error".
func (writer *Writer) SendError(payload any) error {
	return writer.send("error", payload)
}

func (writer *Writer) send(eventType string, payload any) error {
	data, err := json.Marshal(payload)

	if err != nil {
		return err
	}

	writer.nextID++

	if _, err := fmt.Fprintf(writer.w, "id: %d\n", writer.nextID); err != nil {
		return err
	}

	if eventType != "" {
		if _, err := fmt.Fprintf(writer.w, "event: %s\n", eventType); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(writer.w, "data: %s\n\n", data); err != nil {
		return err
	}

	writer.flusher.Flush()
	return nil
}
