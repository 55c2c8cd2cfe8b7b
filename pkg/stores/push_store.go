package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

/*
PushNotificationStore maps a task identifier to the set of callback
endpoints registered for it, keyed by (taskId, configId).
*/
type PushNotificationStore interface {
	Save(ctx context.Context, config a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, *errors.RpcError)
	Get(ctx context.Context, taskID, configID string) (*a2a.TaskPushNotificationConfig, *errors.RpcError)
	List(ctx context.Context, taskID string) ([]a2a.TaskPushNotificationConfig, *errors.RpcError)
	Delete(ctx context.Context, taskID, configID string) *errors.RpcError
}

/*
InMemoryPushNotificationStore keeps push configs in a mutex-guarded nested
map.
*/
type InMemoryPushNotificationStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]a2a.TaskPushNotificationConfig
}

func NewInMemoryPushNotificationStore() *InMemoryPushNotificationStore {
	return &InMemoryPushNotificationStore{
		configs: make(map[string]map[string]a2a.TaskPushNotificationConfig),
	}
}

func (store *InMemoryPushNotificationStore) Save(
	ctx context.Context, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if config.TaskID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	// A config without an explicit id takes the task id, so a plain
	// register-once flow needs no id bookkeeping on the caller's side.
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = config.TaskID
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	byID, ok := store.configs[config.TaskID]
	if !ok {
		byID = make(map[string]a2a.TaskPushNotificationConfig)
		store.configs[config.TaskID] = byID
	}

	byID[config.PushNotificationConfig.ID] = config
	saved := config
	return &saved, nil
}

func (store *InMemoryPushNotificationStore) Get(
	ctx context.Context, taskID, configID string,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if configID == "" {
		configID = taskID
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	config, ok := store.configs[taskID][configID]
	if !ok {
		return nil, errors.ErrPushNotificationConfigNotFound
	}

	found := config
	return &found, nil
}

func (store *InMemoryPushNotificationStore) List(
	ctx context.Context, taskID string,
) ([]a2a.TaskPushNotificationConfig, *errors.RpcError) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	configs := make([]a2a.TaskPushNotificationConfig, 0, len(store.configs[taskID]))
	for _, config := range store.configs[taskID] {
		configs = append(configs, config)
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].PushNotificationConfig.ID < configs[j].PushNotificationConfig.ID
	})

	return configs, nil
}

func (store *InMemoryPushNotificationStore) Delete(
	ctx context.Context, taskID, configID string,
) *errors.RpcError {
	if configID == "" {
		configID = taskID
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.configs[taskID][configID]; !ok {
		return errors.ErrPushNotificationConfigNotFound
	}

	delete(store.configs[taskID], configID)
	if len(store.configs[taskID]) == 0 {
		delete(store.configs, taskID)
	}

	return nil
}
