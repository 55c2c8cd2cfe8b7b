package a2a

import (
	"encoding/json"
	"fmt"
)

// Kind discriminators used on the wire for the event union.
const (
	KindTask           = "task"
	KindMessage        = "message"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

/*
Event is the union of everything an executor may publish on the execution
stream: the full Task snapshot, a Message (the final result of an
interaction), a status transition or an artifact chunk.
*/
type Event interface {
	EventKind() string
	EventTaskID() string
}

/*
TaskStatusUpdateEvent is sent when the agent wishes to inform the client of
a status transition.
*/
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewStatusUpdateEvent(taskID, contextID string, state TaskState, message *Message, final bool) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		Kind:      KindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status: TaskStatus{
			State:     state,
			Message:   message,
			Timestamp: Timestamp(),
		},
		Final: final,
	}
}

func (evt *TaskStatusUpdateEvent) EventKind() string { return KindStatusUpdate }

func (evt *TaskStatusUpdateEvent) EventTaskID() string { return evt.TaskID }

/*
TaskArtifactUpdateEvent is emitted when a new or updated artifact chunk is
available for a task.
*/
type TaskArtifactUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewArtifactUpdateEvent(taskID, contextID string, artifact Artifact) *TaskArtifactUpdateEvent {
	return &TaskArtifactUpdateEvent{
		Kind:      KindArtifactUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Artifact:  artifact,
	}
}

func (evt *TaskArtifactUpdateEvent) EventKind() string { return KindArtifactUpdate }

func (evt *TaskArtifactUpdateEvent) EventTaskID() string { return evt.TaskID }

/*
UnmarshalEvent decodes a wire payload into the concrete event type by
peeking at the kind discriminator.
*/
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case KindTask:
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		return &task, nil
	case KindMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case KindStatusUpdate:
		var evt TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}
		return &evt, nil
	case KindArtifactUpdate:
		var evt TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}
		return &evt, nil
	}

	return nil, fmt.Errorf("unknown event kind %q", probe.Kind)
}
