package result

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

func TestTaskEventReplacesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	task := a2a.NewTask("t1", "c1")
	require.Nil(t, manager.Process(ctx, task))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, stored.Status.State)
}

func TestTaskSnapshotKeepsEarlierHistory(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	seed := a2a.NewTask("t1", "c1")
	userMsg := a2a.NewTextMessage(a2a.RoleUser, "hello")
	seed.History = append(seed.History, *userMsg)
	manager.SeedTask(seed)

	snapshot := a2a.NewTask("t1", "c1")
	require.Nil(t, manager.Process(ctx, snapshot))

	current := manager.CurrentTask()
	require.Len(t, current.History, 1)
	assert.Equal(t, userMsg.MessageID, current.History[0].MessageID)
}

func TestStatusUpdateMergesAndAppendsMessage(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	note := a2a.NewTextMessage(a2a.RoleAgent, "working on it")
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateWorking, note, false)))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateWorking, stored.Status.State)
	require.Len(t, stored.History, 1)

	// Replaying the same status message must not duplicate history.
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateWorking, note, false)))
	stored, err = store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Len(t, stored.History, 1)
}

func TestStatusUpdateLoadsTaskFromStore(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	require.Nil(t, store.Save(ctx, a2a.NewTask("t1", "c1")))

	manager := NewManager(store)
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateWorking, nil, false)))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateWorking, stored.Status.State)
}

func TestArtifactAppendConcatenatesParts(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	first := a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Parts:      []a2a.Part{a2a.NewTextPart("foo")},
	})
	require.Nil(t, manager.Process(ctx, first))

	second := a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Parts:      []a2a.Part{a2a.NewTextPart("bar")},
	})
	second.Append = true
	require.Nil(t, manager.Process(ctx, second))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	require.Len(t, stored.Artifacts, 1)
	require.Len(t, stored.Artifacts[0].Parts, 2)
	assert.Equal(t, "foo", stored.Artifacts[0].Parts[0].Text)
	assert.Equal(t, "bar", stored.Artifacts[0].Parts[1].Text)
}

func TestArtifactReplaceWithoutAppend(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	require.Nil(t, manager.Process(ctx, a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Parts:      []a2a.Part{a2a.NewTextPart("old")},
	})))

	require.Nil(t, manager.Process(ctx, a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Parts:      []a2a.Part{a2a.NewTextPart("new")},
	})))

	current := manager.CurrentTask()
	require.Len(t, current.Artifacts, 1)
	require.Len(t, current.Artifacts[0].Parts, 1)
	assert.Equal(t, "new", current.Artifacts[0].Parts[0].Text)
}

func TestArtifactAppendMergesMetadata(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	name := "report"
	require.Nil(t, manager.Process(ctx, a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Name:       &name,
		Parts:      []a2a.Part{a2a.NewTextPart("chunk")},
	})))

	renamed := "final report"
	update := a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Name:       &renamed,
		Parts:      []a2a.Part{a2a.NewTextPart("more")},
		Metadata:   map[string]any{"pages": 3},
	})
	update.Append = true
	require.Nil(t, manager.Process(ctx, update))

	current := manager.CurrentTask()
	require.Len(t, current.Artifacts, 1)
	assert.Equal(t, "final report", *current.Artifacts[0].Name)
	assert.Len(t, current.Artifacts[0].Parts, 2)
	assert.NotNil(t, current.Artifacts[0].Metadata)
}

func TestMessageEventBecomesFinalResult(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	reply := a2a.NewTextMessage(a2a.RoleAgent, "done")
	require.Nil(t, manager.Process(ctx, reply))

	final := manager.Result()
	msg, ok := final.(*a2a.Message)
	require.True(t, ok)
	assert.Equal(t, "done", msg.String())
}

func TestResultIsTaskWithoutMessageEvent(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateCompleted, nil, true)))

	final := manager.Result()
	task, ok := final.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestTerminalStateIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateCompleted, nil, true)))

	// A straggling status update must not reopen the record.
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("t1", "c1", a2a.TaskStateWorking, nil, false)))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, stored.Status.State)

	// Nor may a late artifact chunk mutate it.
	require.Nil(t, manager.Process(ctx, a2a.NewArtifactUpdateEvent("t1", "c1", a2a.Artifact{
		ArtifactID: "A",
		Parts:      []a2a.Part{a2a.NewTextPart("late")},
	})))

	stored, err = store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Empty(t, stored.Artifacts)

	// A full snapshot after the terminal state is dropped as well.
	stale := a2a.NewTask("t1", "c1")
	stale.ToStatus(a2a.TaskStateWorking, nil)
	require.Nil(t, manager.Process(ctx, stale))

	stored, err = store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, stored.Status.State)
}

func TestUserMessagePrependedToBareSnapshot(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	userMsg := a2a.NewTextMessage(a2a.RoleUser, "hello")
	manager.SeedUserMessage(*userMsg)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))

	stored, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	require.Len(t, stored.History, 1)
	assert.Equal(t, userMsg.MessageID, stored.History[0].MessageID)

	// A snapshot that already carries the message must not gain a duplicate.
	snapshot := a2a.NewTask("t1", "c1")
	snapshot.History = append(snapshot.History, *userMsg)
	require.Nil(t, manager.Process(ctx, snapshot))

	stored, err = store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Len(t, stored.History, 1)
}

func TestMismatchedTaskIDIsDropped(t *testing.T) {
	ctx := context.Background()
	store := stores.NewInMemoryTaskStore()
	manager := NewManager(store)

	require.Nil(t, manager.Process(ctx, a2a.NewTask("t1", "c1")))
	require.Nil(t, manager.Process(ctx, a2a.NewStatusUpdateEvent("other", "c1", a2a.TaskStateFailed, nil, true)))

	assert.Equal(t, a2a.TaskStateSubmitted, manager.CurrentTask().Status.State)
}
