package service

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

// ExtensionsHeader carries the comma-separated extension URIs a client
// requests, and the ones the server activated on the way back.
const ExtensionsHeader = "X-A2A-Extensions"

/*
ServerCallContext carries per-call transport facts into the handler: the
authenticated principal (when the transport established one) and the
protocol extensions the client asked for.
*/
type ServerCallContext struct {
	Principal  string
	Extensions []string
}

// ParseExtensions splits the extension header into its URIs.
func ParseExtensions(header string) []string {
	if header == "" {
		return nil
	}

	var out []string
	for _, raw := range strings.Split(header, ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

/*
RequestContext is the immutable view of one message-send call handed to the
executor: the triggering message, the resolved identifiers, the existing
task record if the message continued one, and any referenced tasks.
*/
type RequestContext struct {
	UserMessage    a2a.Message
	TaskID         string
	ContextID      string
	Task           *a2a.Task
	ReferenceTasks []*a2a.Task
	Call           ServerCallContext
}

/*
RequestContextBuilder resolves inbound send parameters against the task
store. Continuations of an existing task get the incoming message appended
to history and persisted before the executor sees anything.
*/
type RequestContextBuilder struct {
	store              stores.TaskStore
	populateReferences bool
}

func NewRequestContextBuilder(store stores.TaskStore) *RequestContextBuilder {
	return &RequestContextBuilder{
		store:              store,
		populateReferences: true,
	}
}

// SetPopulateReferences toggles loading of referenceTaskIds.
func (builder *RequestContextBuilder) SetPopulateReferences(enabled bool) {
	builder.populateReferences = enabled
}

func (builder *RequestContextBuilder) Build(
	ctx context.Context, params a2a.MessageSendParams, call ServerCallContext,
) (*RequestContext, *errors.RpcError) {
	message := params.Message

	validation := valgo.Is(
		valgo.String(message.Role, "role").Not().Blank(),
	).Is(
		valgo.Int(len(message.Parts), "parts").Not().Zero(),
	)

	if !validation.Valid() {
		return nil, errors.ErrInvalidParams.WithData(validation.Errors())
	}

	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}

	reqCtx := &RequestContext{
		UserMessage: message,
		Call:        call,
	}

	if message.TaskID != "" {
		task, err := builder.store.Get(ctx, message.TaskID)

		if err != nil {
			return nil, err
		}

		if task.Terminal() {
			return nil, errors.ErrInvalidRequest.WithMessagef(
				"task %s is in terminal state %s", task.ID, task.Status.State,
			)
		}

		task.History = append(task.History, message)

		if err := builder.store.Save(ctx, task); err != nil {
			return nil, err
		}

		reqCtx.Task = task
		reqCtx.TaskID = task.ID
	} else {
		reqCtx.TaskID = uuid.NewString()
	}

	if builder.populateReferences {
		for _, refID := range message.ReferenceTaskIDs {
			ref, err := builder.store.Get(ctx, refID)

			if err != nil {
				log.Warn(
					"referenced task not found",
					"task_id", reqCtx.TaskID,
					"reference_task_id", refID,
				)
				continue
			}

			reqCtx.ReferenceTasks = append(reqCtx.ReferenceTasks, ref)
		}
	}

	// Context resolution order: the message's own contextId wins, then the
	// continued task's, then a fresh one.
	switch {
	case message.ContextID != "":
		reqCtx.ContextID = message.ContextID
	case reqCtx.Task != nil && reqCtx.Task.ContextID != "":
		reqCtx.ContextID = reqCtx.Task.ContextID
	default:
		reqCtx.ContextID = uuid.NewString()
	}

	return reqCtx, nil
}
