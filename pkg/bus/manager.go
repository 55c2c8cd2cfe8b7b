package bus

import (
	"sync"

	"github.com/charmbracelet/log"
)

/*
Manager keeps one Bus per task identifier for the duration of one execution
attempt. Access is serialized so a subscribe racing a cleanup either sees
the live bus or fails cleanly on a finished one.
*/
type Manager struct {
	mu    sync.Mutex
	buses map[string]*Bus
}

func NewManager() *Manager {
	return &Manager{
		buses: make(map[string]*Bus),
	}
}

// GetOrCreate returns the bus for taskID, creating one if absent.
func (manager *Manager) GetOrCreate(taskID string) *Bus {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if existing, ok := manager.buses[taskID]; ok {
		return existing
	}

	created := New(taskID)
	manager.buses[taskID] = created
	log.Debug("created event bus", "task_id", taskID)
	return created
}

// Get returns the live bus for taskID, if any.
func (manager *Manager) Get(taskID string) (*Bus, bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	existing, ok := manager.buses[taskID]
	return existing, ok
}

// Cleanup finishes the bus for taskID and removes it from the registry.
func (manager *Manager) Cleanup(taskID string) {
	manager.mu.Lock()
	existing, ok := manager.buses[taskID]
	delete(manager.buses, taskID)
	manager.mu.Unlock()

	if ok {
		existing.Finished()
		log.Debug("cleaned up event bus", "task_id", taskID)
	}
}
