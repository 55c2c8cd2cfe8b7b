package sse

import (
	"bufio"
	"io"
	"strings"
)

/*
Event is one parsed server-sent event: the record id, the event type (empty
means the default type) and the concatenated data payload.
*/
type Event struct {
	ID    string
	Event string
	Data  []byte
}

/*
Reader parses a text/event-stream body one record at a time. Multi-line
data fields are joined with newlines, comment lines are skipped.
*/
type Reader struct {
	scanner *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewReader(r),
	}
}

// Next blocks until a complete event is read. It returns io.EOF when the
// stream ends cleanly between records.
func (reader *Reader) Next() (*Event, error) {
	event := &Event{}
	var data strings.Builder
	inEvent := false

	for {
		// A read error may still carry the partial final line, so the
		// line is parsed before the error is acted on.
		line, readErr := reader.scanner.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// A blank line terminates the record.
			if inEvent && readErr == nil {
				event.Data = []byte(data.String())
				return event, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			inEvent = true
			event.ID = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "event:"):
			inEvent = true
			event.Event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			inEvent = true
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if readErr != nil {
			if inEvent {
				event.Data = []byte(data.String())
				return event, nil
			}
			return nil, readErr
		}
	}
}
