package service

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/auth"
	"github.com/theapemachine/a2a-core/pkg/bus"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/push"
	"github.com/theapemachine/a2a-core/pkg/result"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

/*
Executor is the agent logic plugged into the handler. Execute publishes
events on the bus as work progresses and returns when the execution is
over; the handler owns finishing the bus. Cancel asks a running execution
to stop, which it acknowledges by publishing a canceled status update.
*/
type Executor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, eventBus *bus.Bus) error
	Cancel(ctx context.Context, taskID string, eventBus *bus.Bus) error
}

/*
RequestHandler implements every protocol operation once, independent of
transport. The JSON-RPC and REST surfaces are thin wrappers around it.
*/
type RequestHandler struct {
	card         a2a.AgentCard
	extendedCard *a2a.AgentCard
	executor     Executor
	taskStore    stores.TaskStore
	pushStore    stores.PushNotificationStore
	buses        *bus.Manager
	builder      *RequestContextBuilder
	sender       *push.Sender
	verifier     *auth.Verifier
}

func NewRequestHandler(
	card a2a.AgentCard,
	executor Executor,
	taskStore stores.TaskStore,
	pushStore stores.PushNotificationStore,
) *RequestHandler {
	return &RequestHandler{
		card:      card,
		executor:  executor,
		taskStore: taskStore,
		pushStore: pushStore,
		buses:     bus.NewManager(),
		builder:   NewRequestContextBuilder(taskStore),
		sender:    push.NewSender(pushStore),
	}
}

// SetExtendedCard enables agent/getAuthenticatedExtendedCard.
func (handler *RequestHandler) SetExtendedCard(card *a2a.AgentCard) {
	handler.extendedCard = card
}

// SetPushSigningKey forwards the JWT signing key to the push sender.
func (handler *RequestHandler) SetPushSigningKey(key []byte) {
	handler.sender.SetSigningKey(key)
}

// SetVerifier enables bearer-token authentication. Without a verifier every
// caller stays anonymous and the extended card is served unauthenticated.
func (handler *RequestHandler) SetVerifier(verifier *auth.Verifier) {
	handler.verifier = verifier
}

// Principal resolves an Authorization header to a principal, or "" for
// anonymous callers.
func (handler *RequestHandler) Principal(authHeader string) string {
	if handler.verifier == nil || authHeader == "" {
		return ""
	}

	principal, err := handler.verifier.Verify(authHeader)

	if err != nil {
		log.Warn("authentication failed", "error", err)
		return ""
	}

	return principal
}

// Card returns the public agent card.
func (handler *RequestHandler) Card() a2a.AgentCard {
	return handler.card
}

// ExtendedCard returns the authenticated card when one is configured. With
// a verifier in place, anonymous callers are rejected.
func (handler *RequestHandler) ExtendedCard(call ServerCallContext) (*a2a.AgentCard, *errors.RpcError) {
	if handler.extendedCard == nil {
		return nil, errors.ErrAuthenticatedExtendedCardNotConfigured
	}

	if handler.verifier != nil && call.Principal == "" {
		return nil, errors.ErrUnauthorized
	}

	return handler.extendedCard, nil
}

/*
execution tracks one running executor attempt: the aggregator folding its
events, a signal for the first task-bearing event and a signal for full
drain completion.
*/
type execution struct {
	results   *result.Manager
	firstTask chan struct{}
	done      chan struct{}
}

/*
start wires up one execution: aggregation and push dispatch drain their
subscription while the executor publishes. The bus is finished and removed
from the registry when the executor returns, whatever the outcome.
*/
func (handler *RequestHandler) start(
	ctx context.Context, reqCtx *RequestContext,
) *execution {
	eventBus := handler.buses.GetOrCreate(reqCtx.TaskID)

	exec := &execution{
		results:   result.NewManager(handler.taskStore),
		firstTask: make(chan struct{}),
		done:      make(chan struct{}),
	}

	if reqCtx.Task != nil {
		exec.results.SeedTask(reqCtx.Task)
	}
	exec.results.SeedUserMessage(reqCtx.UserMessage)

	sub := eventBus.Subscribe()

	// The executor outlives the request on non-blocking and streaming
	// sends, so it must not inherit the request's cancellation.
	execCtx := context.WithoutCancel(ctx)

	go handler.drain(execCtx, exec, sub)

	go func() {
		defer handler.buses.Cleanup(reqCtx.TaskID)

		if err := handler.executor.Execute(execCtx, reqCtx, eventBus); err != nil {
			log.Error("executor failed", "task_id", reqCtx.TaskID, "error", err)

			eventBus.Publish(a2a.NewStatusUpdateEvent(
				reqCtx.TaskID,
				reqCtx.ContextID,
				a2a.TaskStateFailed,
				a2a.NewTextMessage(a2a.RoleAgent, err.Error()),
				true,
			))
		}
	}()

	return exec
}

// drain folds every event into the result manager and hands each resulting
// snapshot to the push sender without stalling the fold.
func (handler *RequestHandler) drain(
	ctx context.Context, exec *execution, sub *bus.Subscription,
) {
	defer close(exec.done)

	var (
		signalled bool
		pushes    sync.WaitGroup
	)

	for evt := range sub.Events() {
		if err := exec.results.Process(ctx, evt); err != nil {
			log.Error("failed to aggregate event", "kind", evt.EventKind(), "error", err)
		}

		switch evt.(type) {
		case *a2a.Task, *a2a.TaskStatusUpdateEvent:
			if !signalled {
				signalled = true
				close(exec.firstTask)
			}
		}

		if handler.card.Capabilities.PushNotifications {
			if snapshot := exec.results.CurrentTask(); snapshot != nil {
				pushes.Add(1)
				go func() {
					defer pushes.Done()
					handler.sender.Notify(ctx, snapshot)
				}()
			}
		}
	}

	pushes.Wait()

	if !signalled {
		close(exec.firstTask)
	}
}

/*
OnSendMessage executes one message/send call. Blocking sends wait for the
executor to finish and return the final result; non-blocking sends return
the first task snapshot and leave aggregation running in the background.
*/
func (handler *RequestHandler) OnSendMessage(
	ctx context.Context, params a2a.MessageSendParams, call ServerCallContext,
) (a2a.Event, *errors.RpcError) {
	reqCtx, err := handler.builder.Build(ctx, params, call)

	if err != nil {
		return nil, err
	}

	if err := handler.registerSendConfig(ctx, reqCtx.TaskID, params); err != nil {
		return nil, err
	}

	exec := handler.start(ctx, reqCtx)

	if params.Blocking() {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return nil, errors.ErrInternal.WithMessagef("request aborted: %v", ctx.Err())
		}

		return handler.finalize(exec.results.Result(), params)
	}

	if reqCtx.Task != nil {
		return handler.finalize(reqCtx.Task, params)
	}

	select {
	case <-exec.firstTask:
	case <-ctx.Done():
		return nil, errors.ErrInternal.WithMessagef("request aborted: %v", ctx.Err())
	}

	res := exec.results.Result()

	if res == nil {
		// Executor finished without publishing anything.
		return nil, errors.ErrInvalidAgentResponse.WithMessagef("executor produced no events")
	}

	return handler.finalize(res, params)
}

/*
OnSendMessageStream executes a message/stream call. The returned stream
yields every event in publish order and closes at the first message event,
at a final status update, or when the execution finishes. A stream cut off
because the consumer lagged behind reports that through Err.
*/
func (handler *RequestHandler) OnSendMessageStream(
	ctx context.Context, params a2a.MessageSendParams, call ServerCallContext,
) (*EventStream, *errors.RpcError) {
	reqCtx, err := handler.builder.Build(ctx, params, call)

	if err != nil {
		return nil, err
	}

	if err := handler.registerSendConfig(ctx, reqCtx.TaskID, params); err != nil {
		return nil, err
	}

	// Subscribe before the executor starts so the stream observes every
	// event from the first publish.
	eventBus := handler.buses.GetOrCreate(reqCtx.TaskID)
	sub := eventBus.Subscribe()

	handler.start(ctx, reqCtx)

	stream := newEventStream(0)
	go forward(ctx, sub, stream, nil)

	return stream, nil
}

/*
OnResubscribe re-opens the event stream of an in-progress task. The current
Task record is yielded first so the subscriber has context, then live
events follow. A terminal task yields its record and closes immediately.
*/
func (handler *RequestHandler) OnResubscribe(
	ctx context.Context, params a2a.TaskIDParams, call ServerCallContext,
) (*EventStream, *errors.RpcError) {
	task, err := handler.taskStore.Get(ctx, params.ID)

	if err != nil {
		return nil, err
	}

	eventBus, live := handler.buses.Get(params.ID)

	if !live {
		if !task.Terminal() {
			return nil, errors.ErrInvalidRequest.WithMessagef(
				"task %s has no active execution", params.ID,
			)
		}

		stream := newEventStream(1)
		stream.events <- task
		close(stream.events)
		return stream, nil
	}

	sub := eventBus.Subscribe()

	stream := newEventStream(0)
	go forward(ctx, sub, stream, task)

	return stream, nil
}

// forward pumps a subscription into the stream, optionally seeding a
// snapshot, stopping at terminal signals or when the consumer goes away.
// A subscription dropped for lagging surfaces as a stream error rather
// than a silent close.
func forward(ctx context.Context, sub *bus.Subscription, stream *EventStream, seed a2a.Event) {
	defer close(stream.events)
	defer sub.Close()

	if seed != nil {
		select {
		case stream.events <- seed:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				// A bus that finished between lookup and subscribe is a
				// clean close, not a fault.
				if err := sub.Err(); err != nil && err != bus.ErrBusFinished {
					stream.fail(errors.ErrInternal.WithMessagef(
						"event stream interrupted: %v", err,
					))
				}
				return
			}

			select {
			case stream.events <- evt:
			case <-ctx.Done():
				return
			}

			if terminalEvent(evt) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// terminalEvent reports whether evt ends a stream: a direct message result
// or a status update marked final.
func terminalEvent(evt a2a.Event) bool {
	switch e := evt.(type) {
	case *a2a.Message:
		return true
	case *a2a.TaskStatusUpdateEvent:
		return e.Final
	}
	return false
}

// OnGetTask returns the stored task, history capped to the requested length.
func (handler *RequestHandler) OnGetTask(
	ctx context.Context, params a2a.TaskQueryParams,
) (*a2a.Task, *errors.RpcError) {
	task, err := handler.taskStore.Get(ctx, params.ID)

	if err != nil {
		return nil, err
	}

	if params.HistoryLength != nil {
		task.TrimHistory(*params.HistoryLength)
	}

	return task, nil
}

// OnListTasks returns every stored task record.
func (handler *RequestHandler) OnListTasks(
	ctx context.Context,
) ([]*a2a.Task, *errors.RpcError) {
	return handler.taskStore.List(ctx)
}

/*
OnCancelTask invokes the executor's cancel hook and returns the current
snapshot right away; the transition to canceled arrives asynchronously on
the bus. Terminal tasks are not cancelable.
*/
func (handler *RequestHandler) OnCancelTask(
	ctx context.Context, params a2a.TaskIDParams,
) (*a2a.Task, *errors.RpcError) {
	task, err := handler.taskStore.Get(ctx, params.ID)

	if err != nil {
		return nil, err
	}

	if task.Terminal() {
		return nil, errors.ErrTaskNotCancelable.WithMessagef(
			"task %s is already %s", task.ID, task.Status.State,
		)
	}

	cancelCtx := context.WithoutCancel(ctx)
	eventBus, live := handler.buses.Get(params.ID)

	if live {
		go func() {
			if err := handler.executor.Cancel(cancelCtx, params.ID, eventBus); err != nil {
				log.Error("cancel hook failed", "task_id", params.ID, "error", err)
			}
		}()

		return task, nil
	}

	// No live execution: run the hook against a detached bus so the
	// canceled transition it publishes still reaches the store.
	detached := bus.New(params.ID)
	results := result.NewManager(handler.taskStore)
	results.SeedTask(task)
	sub := detached.Subscribe()

	go func() {
		for evt := range sub.Events() {
			if err := results.Process(cancelCtx, evt); err != nil {
				log.Error("failed to aggregate cancel event", "task_id", params.ID, "error", err)
			}
		}
	}()

	go func() {
		defer detached.Finished()

		if err := handler.executor.Cancel(cancelCtx, params.ID, detached); err != nil {
			log.Error("cancel hook failed", "task_id", params.ID, "error", err)
		}
	}()

	return task, nil
}

// OnSetPushConfig registers a callback endpoint for a task.
func (handler *RequestHandler) OnSetPushConfig(
	ctx context.Context, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if err := handler.requirePushCapability(); err != nil {
		return nil, err
	}

	return handler.pushStore.Save(ctx, config)
}

// OnGetPushConfig returns one registered callback endpoint.
func (handler *RequestHandler) OnGetPushConfig(
	ctx context.Context, params a2a.GetTaskPushNotificationConfigParams,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if err := handler.requirePushCapability(); err != nil {
		return nil, err
	}

	return handler.pushStore.Get(ctx, params.ID, params.PushNotificationConfigID)
}

// OnListPushConfigs returns every callback endpoint registered for a task.
func (handler *RequestHandler) OnListPushConfigs(
	ctx context.Context, params a2a.ListTaskPushNotificationConfigParams,
) ([]a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if err := handler.requirePushCapability(); err != nil {
		return nil, err
	}

	return handler.pushStore.List(ctx, params.ID)
}

// OnDeletePushConfig removes one registered callback endpoint.
func (handler *RequestHandler) OnDeletePushConfig(
	ctx context.Context, params a2a.DeleteTaskPushNotificationConfigParams,
) *errors.RpcError {
	if err := handler.requirePushCapability(); err != nil {
		return err
	}

	return handler.pushStore.Delete(ctx, params.ID, params.PushNotificationConfigID)
}

func (handler *RequestHandler) requirePushCapability() *errors.RpcError {
	if !handler.card.Capabilities.PushNotifications {
		return errors.ErrPushNotificationNotSupported
	}
	return nil
}

// StreamingSupported reports whether the card advertises streaming.
func (handler *RequestHandler) StreamingSupported() bool {
	return handler.card.Capabilities.Streaming
}

// registerSendConfig persists a push config carried inline on a send call.
func (handler *RequestHandler) registerSendConfig(
	ctx context.Context, taskID string, params a2a.MessageSendParams,
) *errors.RpcError {
	if params.Configuration == nil || params.Configuration.PushNotificationConfig == nil {
		return nil
	}

	if err := handler.requirePushCapability(); err != nil {
		return err
	}

	_, err := handler.pushStore.Save(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 taskID,
		PushNotificationConfig: *params.Configuration.PushNotificationConfig,
	})

	return err
}

// finalize applies the caller's history cap to a task result.
func (handler *RequestHandler) finalize(
	evt a2a.Event, params a2a.MessageSendParams,
) (a2a.Event, *errors.RpcError) {
	if evt == nil {
		return nil, errors.ErrInvalidAgentResponse.WithMessagef("executor produced no result")
	}

	task, ok := evt.(*a2a.Task)
	if !ok {
		return evt, nil
	}

	if params.Configuration != nil && params.Configuration.HistoryLength != nil {
		task.TrimHistory(*params.Configuration.HistoryLength)
	}

	return task, nil
}
