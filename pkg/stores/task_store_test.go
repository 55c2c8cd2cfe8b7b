package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

func TestTaskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()

	task := a2a.NewTask("t1", "c1")
	require.Nil(t, store.Save(ctx, task))

	loaded, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, "t1", loaded.ID)
	assert.Equal(t, "c1", loaded.ContextID)
	assert.Equal(t, a2a.TaskStateSubmitted, loaded.Status.State)
}

func TestTaskStoreCopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()

	task := a2a.NewTask("t1", "c1")
	require.Nil(t, store.Save(ctx, task))

	// Mutating the record we saved must not leak into the store.
	task.Status.State = a2a.TaskStateFailed

	loaded, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, loaded.Status.State)

	// Nor may mutating what we read.
	loaded.History = append(loaded.History, *a2a.NewTextMessage(a2a.RoleUser, "hi"))

	again, err := store.Get(ctx, "t1")
	require.Nil(t, err)
	assert.Empty(t, again.History)
}

func TestTaskStoreGetMissing(t *testing.T) {
	store := NewInMemoryTaskStore()

	_, err := store.Get(context.Background(), "nope")
	require.NotNil(t, err)
	assert.Equal(t, errors.ErrTaskNotFound.Code, err.Code)
}

func TestTaskStoreSaveRequiresID(t *testing.T) {
	store := NewInMemoryTaskStore()

	err := store.Save(context.Background(), &a2a.Task{})
	require.NotNil(t, err)
	assert.Equal(t, errors.ErrInvalidParams.Code, err.Code)
}

func TestTaskStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()

	require.Nil(t, store.Save(ctx, a2a.NewTask("t1", "")))
	require.Nil(t, store.Delete(ctx, "t1"))

	_, err := store.Get(ctx, "t1")
	assert.Equal(t, errors.ErrTaskNotFound.Code, err.Code)

	assert.Equal(t, errors.ErrTaskNotFound.Code, store.Delete(ctx, "t1").Code)
}

func TestTaskStoreListSorted(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()

	for _, id := range []string{"c", "a", "b"} {
		require.Nil(t, store.Save(ctx, a2a.NewTask(id, "")))
	}

	tasks, err := store.List(ctx)
	require.Nil(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
	assert.Equal(t, "c", tasks[2].ID)
}
