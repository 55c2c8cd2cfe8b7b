package result

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

/*
Manager folds the event stream of one execution into the canonical task
record, persisting after every mutation. When the executor answers with a
bare Message instead of task events, that message becomes the final result
and the task record is left untouched.
*/
type Manager struct {
	store         stores.TaskStore
	task          *a2a.Task
	message       *a2a.Message
	userMessage   *a2a.Message
	historyLength int
}

func NewManager(store stores.TaskStore) *Manager {
	return &Manager{
		store:         store,
		historyLength: -1,
	}
}

// SetHistoryLength caps the history retained on the aggregated record. A
// negative value keeps everything.
func (manager *Manager) SetHistoryLength(length int) {
	manager.historyLength = length
}

// SeedTask primes the aggregator with the task record the request started
// from, so status updates arriving before any full snapshot still merge.
func (manager *Manager) SeedTask(task *a2a.Task) {
	if task != nil {
		manager.task = task.Clone()
	}
}

// SeedUserMessage records the message that triggered the execution. Task
// snapshots that omit it get it prepended to their history, so the
// conversation always starts with what the user asked.
func (manager *Manager) SeedUserMessage(message a2a.Message) {
	manager.userMessage = &message
}

/*
Process merges one event into the aggregated result. Events for other tasks
are logged and skipped rather than corrupting the record.
*/
func (manager *Manager) Process(ctx context.Context, event a2a.Event) *errors.RpcError {
	switch evt := event.(type) {
	case *a2a.Message:
		manager.message = evt
		return nil
	case *a2a.Task:
		return manager.processTask(ctx, evt)
	case *a2a.TaskStatusUpdateEvent:
		return manager.processStatusUpdate(ctx, evt)
	case *a2a.TaskArtifactUpdateEvent:
		return manager.processArtifactUpdate(ctx, evt)
	}

	log.Warn("ignoring unknown event kind", "kind", event.EventKind())
	return nil
}

func (manager *Manager) processTask(ctx context.Context, task *a2a.Task) *errors.RpcError {
	if manager.terminal() {
		log.Warn("dropping task snapshot after terminal state", "task_id", task.ID)
		return nil
	}

	incoming := task.Clone()

	// A full snapshot replaces whatever was aggregated so far, but the
	// conversation that led here must survive the swap.
	if manager.task != nil {
		incoming.History = mergeHistory(manager.task.History, incoming.History)
	}

	if manager.userMessage != nil && !containsMessage(incoming.History, manager.userMessage.MessageID) {
		incoming.History = append([]a2a.Message{*manager.userMessage}, incoming.History...)
	}

	manager.task = incoming
	return manager.save(ctx)
}

func (manager *Manager) processStatusUpdate(
	ctx context.Context, evt *a2a.TaskStatusUpdateEvent,
) *errors.RpcError {
	if err := manager.ensureTask(ctx, evt.TaskID, evt.ContextID); err != nil {
		return err
	}

	if manager.task.ID != evt.TaskID {
		log.Warn(
			"status update for different task",
			"task_id", manager.task.ID,
			"event_task_id", evt.TaskID,
		)
		return nil
	}

	if manager.terminal() {
		log.Warn(
			"dropping status update after terminal state",
			"task_id", evt.TaskID,
			"state", evt.Status.State,
		)
		return nil
	}

	manager.task.Status = evt.Status

	if evt.Status.Message != nil {
		manager.appendHistory(*evt.Status.Message)
	}

	return manager.save(ctx)
}

func (manager *Manager) processArtifactUpdate(
	ctx context.Context, evt *a2a.TaskArtifactUpdateEvent,
) *errors.RpcError {
	if err := manager.ensureTask(ctx, evt.TaskID, evt.ContextID); err != nil {
		return err
	}

	if manager.task.ID != evt.TaskID {
		log.Warn(
			"artifact update for different task",
			"task_id", manager.task.ID,
			"event_task_id", evt.TaskID,
		)
		return nil
	}

	if manager.terminal() {
		log.Warn(
			"dropping artifact update after terminal state",
			"task_id", evt.TaskID,
			"artifact_id", evt.Artifact.ArtifactID,
		)
		return nil
	}

	index := -1
	for i := range manager.task.Artifacts {
		if manager.task.Artifacts[i].ArtifactID == evt.Artifact.ArtifactID {
			index = i
			break
		}
	}

	switch {
	case index < 0:
		if evt.Append {
			log.Warn(
				"append chunk for unknown artifact, treating as first chunk",
				"task_id", evt.TaskID,
				"artifact_id", evt.Artifact.ArtifactID,
			)
		}
		manager.task.AddArtifact(evt.Artifact)
	case evt.Append:
		existing := &manager.task.Artifacts[index]
		existing.Parts = append(existing.Parts, evt.Artifact.Parts...)
		if evt.Artifact.Name != nil {
			existing.Name = evt.Artifact.Name
		}
		if evt.Artifact.Description != nil {
			existing.Description = evt.Artifact.Description
		}
		if evt.Artifact.Metadata != nil {
			existing.Metadata = evt.Artifact.Metadata
		}
	default:
		manager.task.Artifacts[index] = evt.Artifact
	}

	return manager.save(ctx)
}

// ensureTask makes sure an aggregated record exists, loading the stored one
// or starting a fresh record when updates arrive before any snapshot.
func (manager *Manager) ensureTask(
	ctx context.Context, taskID string, contextID string,
) *errors.RpcError {
	if manager.task != nil {
		return nil
	}

	stored, err := manager.store.Get(ctx, taskID)

	if err != nil {
		if err.Code != errors.ErrTaskNotFound.Code {
			return err
		}
		manager.task = a2a.NewTask(taskID, contextID)
		return nil
	}

	manager.task = stored
	return nil
}

// terminal reports whether the aggregated record already reached a final
// state, after which no event may mutate it.
func (manager *Manager) terminal() bool {
	return manager.task != nil && manager.task.Terminal()
}

func (manager *Manager) appendHistory(message a2a.Message) {
	if containsMessage(manager.task.History, message.MessageID) {
		return
	}

	manager.task.History = append(manager.task.History, message)
}

func containsMessage(history []a2a.Message, messageID string) bool {
	for i := range history {
		if history[i].MessageID == messageID {
			return true
		}
	}
	return false
}

func (manager *Manager) save(ctx context.Context) *errors.RpcError {
	manager.task.TrimHistory(manager.historyLength)
	return manager.store.Save(ctx, manager.task)
}

// CurrentTask returns the aggregated record so far, or nil before the first
// task event.
func (manager *Manager) CurrentTask() *a2a.Task {
	if manager.task == nil {
		return nil
	}

	return manager.task.Clone()
}

/*
Result returns what the interaction produced: the executor's direct Message
when one was published, otherwise the aggregated Task record.
*/
func (manager *Manager) Result() a2a.Event {
	if manager.message != nil {
		return manager.message
	}

	if manager.task == nil {
		return nil
	}

	return manager.task.Clone()
}

// mergeHistory keeps prior conversation entries that the incoming snapshot
// dropped, preserving the snapshot's own ordering for entries it carries.
func mergeHistory(prior []a2a.Message, incoming []a2a.Message) []a2a.Message {
	seen := make(map[string]struct{}, len(incoming))
	for i := range incoming {
		seen[incoming[i].MessageID] = struct{}{}
	}

	merged := make([]a2a.Message, 0, len(prior)+len(incoming))
	for i := range prior {
		if _, ok := seen[prior[i].MessageID]; !ok {
			merged = append(merged, prior[i])
		}
	}

	return append(merged, incoming...)
}
