package a2a

/*
TaskState enumerates the mutually‑exclusive states a task may be in.
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateAuthReq   TaskState = "auth-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateRejected  TaskState = "rejected"
	TaskStateUnknown   TaskState = "unknown"
)

// Terminal reports whether the state permits no further transitions.
func (state TaskState) Terminal() bool {
	switch state {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}
	return false
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"` // RFC3339 UTC
}
