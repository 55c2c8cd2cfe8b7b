package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

/*
TaskStore is the persistence contract for canonical task records. The
record returned by Get and the record passed to Save are never aliased by
the store; implementations copy both ways.
*/
type TaskStore interface {
	Get(ctx context.Context, id string) (*a2a.Task, *errors.RpcError)
	Save(ctx context.Context, task *a2a.Task) *errors.RpcError
	Delete(ctx context.Context, id string) *errors.RpcError
	List(ctx context.Context) ([]*a2a.Task, *errors.RpcError)
}

/*
InMemoryTaskStore keeps task records in a mutex-guarded map. Suitable for
single-process deployments and tests.
*/
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*a2a.Task),
	}
}

func (store *InMemoryTaskStore) Get(
	ctx context.Context, id string,
) (*a2a.Task, *errors.RpcError) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	task, ok := store.tasks[id]
	if !ok {
		return nil, errors.ErrTaskNotFound
	}

	return task.Clone(), nil
}

func (store *InMemoryTaskStore) Save(
	ctx context.Context, task *a2a.Task,
) *errors.RpcError {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	store.tasks[task.ID] = task.Clone()
	log.Debug("task saved", "task_id", task.ID, "state", task.Status.State)
	return nil
}

func (store *InMemoryTaskStore) Delete(
	ctx context.Context, id string,
) *errors.RpcError {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.tasks[id]; !ok {
		return errors.ErrTaskNotFound
	}

	delete(store.tasks, id)
	return nil
}

func (store *InMemoryTaskStore) List(
	ctx context.Context,
) ([]*a2a.Task, *errors.RpcError) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	tasks := make([]*a2a.Task, 0, len(store.tasks))
	for _, task := range store.tasks {
		tasks = append(tasks, task.Clone())
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})

	return tasks, nil
}
