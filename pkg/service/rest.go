package service

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/sse"
)

/*
RESTServer exposes the handler over HTTP+JSON routes under /v1. Streaming
routes emit raw event payloads over SSE, without the JSON-RPC envelope the
RPC transport wraps around them.
*/
type RESTServer struct {
	handler *RequestHandler
}

func NewRESTServer(handler *RequestHandler) *RESTServer {
	return &RESTServer{handler: handler}
}

// Register mounts every route on the supplied router.
func (server *RESTServer) Register(app fiber.Router) {
	app.Post("/v1/message\\:send", server.handleSendMessage)
	app.Post("/v1/message\\:stream", server.handleStreamMessage)
	app.Get("/v1/tasks", server.handleListTasks)
	app.Get("/v1/tasks/:taskId", server.handleGetTask)
	app.Post("/v1/tasks/:taskId\\:cancel", server.handleCancelTask)
	app.Post("/v1/tasks/:taskId\\:subscribe", server.handleSubscribeTask)
	app.Post("/v1/tasks/:taskId/pushNotificationConfigs", server.handleSetPushConfig)
	app.Get("/v1/tasks/:taskId/pushNotificationConfigs", server.handleListPushConfigs)
	app.Get("/v1/tasks/:taskId/pushNotificationConfigs/:configId", server.handleGetPushConfig)
	app.Delete("/v1/tasks/:taskId/pushNotificationConfigs/:configId", server.handleDeletePushConfig)
	app.Get("/v1/card", server.handleCard)
}

func (server *RESTServer) callContext(ctx fiber.Ctx) ServerCallContext {
	return ServerCallContext{
		Principal:  server.handler.Principal(ctx.Get("Authorization")),
		Extensions: ParseExtensions(ctx.Get(ExtensionsHeader)),
	}
}

func (server *RESTServer) handleSendMessage(ctx fiber.Ctx) error {
	var params a2a.MessageSendParams

	if err := ctx.Bind().Body(&params); err != nil {
		return respondError(ctx, errors.ErrParseError.WithMessagef("%v", err))
	}

	result, rpcErr := server.handler.OnSendMessage(
		ctx.RequestCtx(), params, server.callContext(ctx),
	)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.Status(fiber.StatusCreated).JSON(result)
}

func (server *RESTServer) handleStreamMessage(ctx fiber.Ctx) error {
	if !server.handler.StreamingSupported() {
		return respondError(ctx, errors.ErrUnsupportedOperation.WithMessagef(
			"streaming is not supported by this agent",
		))
	}

	call := server.callContext(ctx)

	handler := func(w http.ResponseWriter, r *http.Request) {
		var params a2a.MessageSendParams

		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeRESTError(w, errors.ErrParseError.WithMessagef("%v", err))
			return
		}

		stream, rpcErr := server.handler.OnSendMessageStream(r.Context(), params, call)

		if rpcErr != nil {
			writeRESTError(w, rpcErr)
			return
		}

		streamEvents(w, stream)
	}

	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (server *RESTServer) handleGetTask(ctx fiber.Ctx) error {
	params := a2a.TaskQueryParams{
		TaskIDParams: a2a.TaskIDParams{ID: ctx.Params("taskId")},
	}

	if raw := ctx.Query("historyLength"); raw != "" {
		length, err := strconv.Atoi(raw)

		if err != nil {
			return respondError(ctx, errors.ErrInvalidParams.WithMessagef(
				"invalid historyLength %q", raw,
			))
		}

		params.HistoryLength = &length
	}

	task, rpcErr := server.handler.OnGetTask(ctx.RequestCtx(), params)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.JSON(task)
}

func (server *RESTServer) handleListTasks(ctx fiber.Ctx) error {
	tasks, rpcErr := server.handler.OnListTasks(ctx.RequestCtx())

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.JSON(tasks)
}

func (server *RESTServer) handleCancelTask(ctx fiber.Ctx) error {
	task, rpcErr := server.handler.OnCancelTask(
		ctx.RequestCtx(), a2a.TaskIDParams{ID: ctx.Params("taskId")},
	)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(task)
}

func (server *RESTServer) handleSubscribeTask(ctx fiber.Ctx) error {
	if !server.handler.StreamingSupported() {
		return respondError(ctx, errors.ErrUnsupportedOperation.WithMessagef(
			"streaming is not supported by this agent",
		))
	}

	taskID := ctx.Params("taskId")
	call := server.callContext(ctx)

	handler := func(w http.ResponseWriter, r *http.Request) {
		stream, rpcErr := server.handler.OnResubscribe(
			r.Context(), a2a.TaskIDParams{ID: taskID}, call,
		)

		if rpcErr != nil {
			writeRESTError(w, rpcErr)
			return
		}

		streamEvents(w, stream)
	}

	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (server *RESTServer) handleSetPushConfig(ctx fiber.Ctx) error {
	var config a2a.PushNotificationConfig

	if err := ctx.Bind().Body(&config); err != nil {
		return respondError(ctx, errors.ErrParseError.WithMessagef("%v", err))
	}

	saved, rpcErr := server.handler.OnSetPushConfig(ctx.RequestCtx(), a2a.TaskPushNotificationConfig{
		TaskID:                 ctx.Params("taskId"),
		PushNotificationConfig: config,
	})

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.Status(fiber.StatusCreated).JSON(saved)
}

func (server *RESTServer) handleListPushConfigs(ctx fiber.Ctx) error {
	configs, rpcErr := server.handler.OnListPushConfigs(
		ctx.RequestCtx(), a2a.ListTaskPushNotificationConfigParams{ID: ctx.Params("taskId")},
	)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.JSON(configs)
}

func (server *RESTServer) handleGetPushConfig(ctx fiber.Ctx) error {
	config, rpcErr := server.handler.OnGetPushConfig(
		ctx.RequestCtx(), a2a.GetTaskPushNotificationConfigParams{
			ID:                       ctx.Params("taskId"),
			PushNotificationConfigID: ctx.Params("configId"),
		},
	)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.JSON(config)
}

func (server *RESTServer) handleDeletePushConfig(ctx fiber.Ctx) error {
	rpcErr := server.handler.OnDeletePushConfig(
		ctx.RequestCtx(), a2a.DeleteTaskPushNotificationConfigParams{
			ID:                       ctx.Params("taskId"),
			PushNotificationConfigID: ctx.Params("configId"),
		},
	)

	if rpcErr != nil {
		return respondError(ctx, rpcErr)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (server *RESTServer) handleCard(ctx fiber.Ctx) error {
	return ctx.JSON(server.handler.Card())
}

// streamEvents writes raw event payloads as SSE until the stream closes. A
// stream that ended abnormally gets a final record with event type error.
func streamEvents(w http.ResponseWriter, stream *EventStream) {
	writer, err := sse.NewWriter(w)

	if err != nil {
		writeRESTError(w, errors.ErrInternal.WithMessagef("%v", err))
		return
	}

	for evt := range stream.Events() {
		if err := writer.Send(evt); err != nil {
			_ = writer.SendError(errors.ErrInternal.WithMessagef("%v", err))
			return
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		_ = writer.SendError(streamErr)
	}
}

func respondError(ctx fiber.Ctx, rpcErr *errors.RpcError) error {
	return ctx.Status(rpcErr.HTTPStatus()).JSON(rpcErr)
}

func writeRESTError(w http.ResponseWriter, rpcErr *errors.RpcError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rpcErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(rpcErr)
}
