package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEventTask(t *testing.T) {
	data, err := json.Marshal(NewTask("t1", "c1"))
	require.Nil(t, err)

	event, err := UnmarshalEvent(data)
	require.Nil(t, err)

	task, ok := event.(*Task)
	require.True(t, ok)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, KindTask, task.EventKind())
}

func TestUnmarshalEventMessage(t *testing.T) {
	data, err := json.Marshal(NewTextMessage(RoleAgent, "hello"))
	require.Nil(t, err)

	event, err := UnmarshalEvent(data)
	require.Nil(t, err)

	msg, ok := event.(*Message)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.String())
}

func TestUnmarshalEventStatusUpdate(t *testing.T) {
	data, err := json.Marshal(NewStatusUpdateEvent("t1", "c1", TaskStateWorking, nil, false))
	require.Nil(t, err)

	event, err := UnmarshalEvent(data)
	require.Nil(t, err)

	update, ok := event.(*TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, TaskStateWorking, update.Status.State)
	assert.False(t, update.Final)
	assert.Equal(t, "t1", update.EventTaskID())
}

func TestUnmarshalEventArtifactUpdate(t *testing.T) {
	data, err := json.Marshal(NewArtifactUpdateEvent("t1", "c1", NewTextArtifact("echo", "chunk")))
	require.Nil(t, err)

	event, err := UnmarshalEvent(data)
	require.Nil(t, err)

	update, ok := event.(*TaskArtifactUpdateEvent)
	require.True(t, ok)
	require.Len(t, update.Artifact.Parts, 1)
	assert.Equal(t, "chunk", update.Artifact.Parts[0].Text)
}

func TestUnmarshalEventUnknownKind(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"kind":"mystery"}`))
	assert.NotNil(t, err)
}

func TestUnmarshalEventMalformed(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{`))
	assert.NotNil(t, err)
}
