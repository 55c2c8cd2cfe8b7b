package a2a

import "github.com/google/uuid"

/*
Artifact is the output of a task.
*/
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Extensions  []string       `json:"extensions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewTextArtifact(name string, text string) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Name:       &name,
		Parts: []Part{
			{Kind: PartKindText, Text: text},
		},
	}
}

func NewFileArtifact(name string, mimeType string, data string) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Name:       &name,
		Parts: []Part{
			{
				Kind: PartKindFile,
				File: &FilePart{
					MimeType: &mimeType,
					Bytes:    data,
				},
			},
		},
	}
}
