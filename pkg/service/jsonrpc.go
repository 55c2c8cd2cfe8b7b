package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/sse"
)

// RPCRequest is the JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // string | number | null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

/*
JSONRPCServer exposes the handler over a single JSON-RPC 2.0 POST endpoint,
including the SSE upgrade for the streaming methods. It is an http.Handler
so it can be mounted on any mux.
*/
type JSONRPCServer struct {
	handler *RequestHandler
}

func NewJSONRPCServer(handler *RequestHandler) *JSONRPCServer {
	return &JSONRPCServer{handler: handler}
}

func (server *JSONRPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)

	if err != nil {
		respond(w, errorResponse(nil, errors.ErrParseError))
		return
	}

	body = bytes.TrimSpace(body)

	if len(body) == 0 {
		respond(w, errorResponse(nil, errors.ErrInvalidRequest))
		return
	}

	call := ServerCallContext{
		Principal:  server.handler.Principal(r.Header.Get("Authorization")),
		Extensions: ParseExtensions(r.Header.Get(ExtensionsHeader)),
	}

	// Batch envelopes hold unary calls only.
	if body[0] == '[' {
		server.serveBatch(w, r, body, call)
		return
	}

	var req RPCRequest

	if err := json.Unmarshal(body, &req); err != nil {
		respond(w, errorResponse(nil, errors.ErrParseError))
		return
	}

	if streamingMethod(req.Method) {
		server.serveStream(w, r, &req, call)
		return
	}

	resp := server.handle(r.Context(), &req, call)

	// Notifications carry no id and get no response.
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respond(w, resp)
}

func (server *JSONRPCServer) serveBatch(
	w http.ResponseWriter, r *http.Request, body []byte, call ServerCallContext,
) {
	var batch []RPCRequest

	if err := json.Unmarshal(body, &batch); err != nil {
		respond(w, errorResponse(nil, errors.ErrParseError))
		return
	}

	if len(batch) == 0 {
		respond(w, errorResponse(nil, errors.ErrInvalidRequest))
		return
	}

	var responses []RPCResponse

	for i := range batch {
		req := &batch[i]

		var resp RPCResponse

		if streamingMethod(req.Method) {
			resp = errorResponse(req.ID, errors.ErrInvalidRequest.WithMessagef(
				"method %s cannot be batched", req.Method,
			))
		} else {
			resp = server.handle(r.Context(), req, call)
		}

		if len(req.ID) != 0 {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(responses)
}

func (server *JSONRPCServer) handle(
	ctx context.Context, req *RPCRequest, call ServerCallContext,
) RPCResponse {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, errors.ErrInvalidRequest)
	}

	result, rpcErr := server.dispatch(ctx, req, call)

	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}

	return RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (server *JSONRPCServer) dispatch(
	ctx context.Context, req *RPCRequest, call ServerCallContext,
) (any, *errors.RpcError) {
	switch req.Method {
	case a2a.MethodMessageSend:
		var params a2a.MessageSendParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnSendMessage(ctx, params, call)

	case a2a.MethodTasksGet:
		var params a2a.TaskQueryParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnGetTask(ctx, params)

	case a2a.MethodTasksCancel:
		var params a2a.TaskIDParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnCancelTask(ctx, params)

	case a2a.MethodPushConfigSet:
		var params a2a.TaskPushNotificationConfig
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnSetPushConfig(ctx, params)

	case a2a.MethodPushConfigGet:
		var params a2a.GetTaskPushNotificationConfigParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnGetPushConfig(ctx, params)

	case a2a.MethodPushConfigList:
		var params a2a.ListTaskPushNotificationConfigParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return server.handler.OnListPushConfigs(ctx, params)

	case a2a.MethodPushConfigDelete:
		var params a2a.DeleteTaskPushNotificationConfigParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if err := server.handler.OnDeletePushConfig(ctx, params); err != nil {
			return nil, err
		}
		return map[string]any{}, nil

	case a2a.MethodExtendedCard:
		return server.handler.ExtendedCard(call)
	}

	return nil, errors.ErrMethodNotFound.WithMessagef("unknown method %s", req.Method)
}

/*
serveStream handles message/stream and tasks/resubscribe. Each SSE record
is a full JSON-RPC success envelope whose result holds one event; errors
after the stream opened arrive as a final record with event type error.
*/
func (server *JSONRPCServer) serveStream(
	w http.ResponseWriter, r *http.Request, req *RPCRequest, call ServerCallContext,
) {
	if !server.handler.StreamingSupported() {
		respond(w, errorResponse(req.ID, errors.ErrUnsupportedOperation.WithMessagef(
			"streaming is not supported by this agent",
		)))
		return
	}

	var (
		stream *EventStream
		rpcErr *errors.RpcError
	)

	switch req.Method {
	case a2a.MethodMessageStream:
		var params a2a.MessageSendParams
		if rpcErr = unmarshalParams(req.Params, &params); rpcErr == nil {
			stream, rpcErr = server.handler.OnSendMessageStream(r.Context(), params, call)
		}
	case a2a.MethodTasksResubscribe:
		var params a2a.TaskIDParams
		if rpcErr = unmarshalParams(req.Params, &params); rpcErr == nil {
			stream, rpcErr = server.handler.OnResubscribe(r.Context(), params, call)
		}
	}

	// Nothing written yet, so a plain error envelope is still possible.
	if rpcErr != nil {
		respond(w, errorResponse(req.ID, rpcErr))
		return
	}

	writer, err := sse.NewWriter(w)

	if err != nil {
		respond(w, errorResponse(req.ID, errors.ErrInternal.WithMessagef("%v", err)))
		return
	}

	for evt := range stream.Events() {
		envelope := RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: evt}

		if err := writer.Send(envelope); err != nil {
			log.Warn("stream write failed", "method", req.Method, "error", err)
			_ = writer.SendError(errorResponse(req.ID, errors.ErrInternal.WithMessagef("%v", err)))
			return
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		log.Warn("stream ended with error", "method", req.Method, "error", streamErr)
		_ = writer.SendError(errorResponse(req.ID, streamErr))
	}
}

func streamingMethod(method string) bool {
	return method == a2a.MethodMessageStream || method == a2a.MethodTasksResubscribe
}

func unmarshalParams(raw json.RawMessage, out any) *errors.RpcError {
	if len(raw) == 0 {
		return errors.ErrInvalidParams.WithMessagef("params are required")
	}

	if err := json.Unmarshal(raw, out); err != nil {
		log.Error("failed to unmarshal params", "error", err)
		return errors.ErrInvalidParams.WithMessagef("failed to unmarshal params: %v", err)
	}

	return nil
}

func errorResponse(id json.RawMessage, rpcErr *errors.RpcError) RPCResponse {
	if rpcErr == nil {
		rpcErr = errors.ErrInternal
	}

	return RPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func respond(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
