package a2a

import (
	"strings"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

/*
Message represents all non‑artifact communication between client & agent.
A Message doubles as an event on the execution stream, in which case it is
the final result of the interaction.
*/
type Message struct {
	Kind             string         `json:"kind"`
	MessageID        string         `json:"messageId"`
	Role             string         `json:"role"` // "user" or "agent"
	Parts            []Part         `json:"parts"`
	TaskID           string         `json:"taskId,omitempty"`
	ContextID        string         `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Extensions       []string       `json:"extensions,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func NewTextMessage(role string, text string) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      role,
		Parts: []Part{
			{Kind: PartKindText, Text: text},
		},
	}
}

func NewFileMessage(role string, file *FilePart) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      role,
		Parts: []Part{
			{Kind: PartKindFile, File: file},
		},
	}
}

func NewDataMessage(role string, data map[string]any) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      role,
		Parts: []Part{
			{Kind: PartKindData, Data: data},
		},
	}
}

func (msg *Message) EventKind() string { return KindMessage }

func (msg *Message) EventTaskID() string { return msg.TaskID }

// String concatenates the text parts, which is what callers want when they
// treat a message as plain prose.
func (msg *Message) String() string {
	var sb strings.Builder

	for _, part := range msg.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String()
}
