package a2a

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type Task struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewTask(id string, contextID string) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}
	return &Task{
		Kind:      KindTask,
		ID:        id,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: Timestamp(),
		},
	}
}

// Timestamp returns the wire representation of "now".
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (task *Task) EventKind() string { return KindTask }

func (task *Task) EventTaskID() string { return task.ID }

// Terminal reports whether the task reached a final state.
func (task *Task) Terminal() bool {
	return task.Status.State.Terminal()
}

func (task *Task) ToStatus(state TaskState, message *Message) {
	log.Debug("task status update", "task_id", task.ID, "state", state)

	task.Status.State = state
	task.Status.Timestamp = Timestamp()
	task.Status.Message = message
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

func (task *Task) AddArtifact(artifact Artifact) {
	task.Artifacts = append(task.Artifacts, artifact)
}

// TrimHistory caps the retained history to the most recent length entries.
// A negative length leaves the history untouched.
func (task *Task) TrimHistory(length int) {
	if length < 0 {
		return
	}
	if length == 0 {
		task.History = nil
		return
	}
	if length < len(task.History) {
		task.History = task.History[len(task.History)-length:]
	}
}

// Clone returns a deep copy so stores can hand out records without aliasing
// the caller's slices and maps.
func (task *Task) Clone() *Task {
	buf, err := json.Marshal(task)
	if err != nil {
		log.Error("failed to clone task", "task_id", task.ID, "error", err)
		clone := *task
		return &clone
	}

	var clone Task
	if err := json.Unmarshal(buf, &clone); err != nil {
		log.Error("failed to clone task", "task_id", task.ID, "error", err)
		shallow := *task
		return &shallow
	}

	return &clone
}

func (task *Task) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	if task.ContextID != "" {
		sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(task.ContextID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}
	if task.Status.Timestamp != "" {
		sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp) + "\n")
	}

	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("ID: ") + valueStyle.Render(artifact.ArtifactID) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
			if artifact.Description != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Description: ") + valueStyle.Render(*artifact.Description) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(task.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", task.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
