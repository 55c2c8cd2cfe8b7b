package service

import (
	"context"

	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/bus"
)

/*
EchoExecutor repeats the user's message back as an artifact. It exercises
the full task lifecycle, which makes it useful for smoke tests and as a
reference for real executor implementations.
*/
type EchoExecutor struct{}

func NewEchoExecutor() *EchoExecutor {
	return &EchoExecutor{}
}

func (echo *EchoExecutor) Execute(
	ctx context.Context, reqCtx *RequestContext, eventBus *bus.Bus,
) error {
	task := reqCtx.Task

	if task == nil {
		task = a2a.NewTask(reqCtx.TaskID, reqCtx.ContextID)
		task.History = append(task.History, reqCtx.UserMessage)
	}

	eventBus.Publish(task)

	eventBus.Publish(a2a.NewStatusUpdateEvent(
		task.ID, task.ContextID, a2a.TaskStateWorking, nil, false,
	))

	eventBus.Publish(a2a.NewArtifactUpdateEvent(
		task.ID, task.ContextID, a2a.NewTextArtifact("echo", reqCtx.UserMessage.String()),
	))

	eventBus.Publish(a2a.NewStatusUpdateEvent(
		task.ID, task.ContextID, a2a.TaskStateCompleted, nil, true,
	))

	return nil
}

func (echo *EchoExecutor) Cancel(
	ctx context.Context, taskID string, eventBus *bus.Bus,
) error {
	eventBus.Publish(a2a.NewStatusUpdateEvent(
		taskID, "", a2a.TaskStateCanceled, nil, true,
	))

	return nil
}
