package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
	"github.com/theapemachine/a2a-core/pkg/sse"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

// rpcReply mirrors RPCResponse with a raw result for decoding in tests.
type rpcReply struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *errors.RpcError `json:"error"`
}

func newRPCServer(executor Executor) (*JSONRPCServer, stores.TaskStore) {
	handler, taskStore := newHandler(executor)
	return NewJSONRPCServer(handler), taskStore
}

func postRPC(server *JSONRPCServer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func decodeReply(t *testing.T, recorder *httptest.ResponseRecorder) rpcReply {
	t.Helper()

	var reply rpcReply
	require.Nil(t, json.NewDecoder(recorder.Body).Decode(&reply))
	return reply
}

func TestRPCSendMessage(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	recorder := postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "message/send",
		"params": {
			"message": {
				"kind": "message",
				"role": "user",
				"parts": [{"kind": "text", "text": "hello"}]
			}
		}
	}`)

	require.Equal(t, http.StatusOK, recorder.Code)

	reply := decodeReply(t, recorder)
	assert.Equal(t, "2.0", reply.JSONRPC)
	assert.Equal(t, "1", string(reply.ID))
	require.Nil(t, reply.Error)

	event, err := a2a.UnmarshalEvent(reply.Result)
	require.Nil(t, err)

	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestRPCMethodNotFound(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `{"jsonrpc":"2.0","id":1,"method":"no/such"}`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrMethodNotFound.Code, reply.Error.Code)
}

func TestRPCInvalidVersion(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrInvalidRequest.Code, reply.Error.Code)
}

func TestRPCParseError(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `{not json`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrParseError.Code, reply.Error.Code)
}

func TestRPCMissingParams(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `{"jsonrpc":"2.0","id":1,"method":"tasks/get"}`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrInvalidParams.Code, reply.Error.Code)
}

func TestRPCTaskNotFound(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(
		server, `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"nope"}}`,
	))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, reply.Error.Code)
}

func TestRPCNotification(t *testing.T) {
	server, taskStore := newRPCServer(NewEchoExecutor())

	done := a2a.NewTask("t-done", "c1")
	done.ToStatus(a2a.TaskStateCompleted, nil)
	require.Nil(t, taskStore.Save(context.Background(), done))

	// No id means no response body.
	recorder := postRPC(server, `{"jsonrpc":"2.0","method":"tasks/get","params":{"id":"t-done"}}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Empty(t, recorder.Body.String())
}

func TestRPCMethodNotAllowed(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestRPCBatch(t *testing.T) {
	server, taskStore := newRPCServer(NewEchoExecutor())

	done := a2a.NewTask("t-done", "c1")
	done.ToStatus(a2a.TaskStateCompleted, nil)
	require.Nil(t, taskStore.Save(context.Background(), done))

	recorder := postRPC(server, `[
		{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"t-done"}},
		{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"missing"}}
	]`)

	require.Equal(t, http.StatusOK, recorder.Code)

	var replies []rpcReply
	require.Nil(t, json.NewDecoder(recorder.Body).Decode(&replies))
	require.Len(t, replies, 2)

	assert.Nil(t, replies[0].Error)
	require.NotNil(t, replies[1].Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, replies[1].Error.Code)
}

func TestRPCBatchRejectsStreaming(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	recorder := postRPC(server, `[
		{"jsonrpc":"2.0","id":1,"method":"message/stream","params":{}}
	]`)

	var replies []rpcReply
	require.Nil(t, json.NewDecoder(recorder.Body).Decode(&replies))
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Error)
	assert.Equal(t, errors.ErrInvalidRequest.Code, replies[0].Error.Code)
	assert.Contains(t, replies[0].Error.Message, "cannot be batched")
}

func TestRPCBatchOfNotifications(t *testing.T) {
	server, taskStore := newRPCServer(NewEchoExecutor())

	done := a2a.NewTask("t-done", "c1")
	done.ToStatus(a2a.TaskStateCompleted, nil)
	require.Nil(t, taskStore.Save(context.Background(), done))

	recorder := postRPC(server, `[
		{"jsonrpc":"2.0","method":"tasks/get","params":{"id":"t-done"}}
	]`)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestRPCEmptyBatch(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `[]`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrInvalidRequest.Code, reply.Error.Code)
}

func TestRPCStream(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	recorder := postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 7,
		"method": "message/stream",
		"params": {
			"message": {
				"kind": "message",
				"role": "user",
				"parts": [{"kind": "text", "text": "stream me"}]
			}
		}
	}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

	// Every record carries a full JSON-RPC success envelope.
	reader := sse.NewReader(recorder.Body)

	var events []a2a.Event
	for {
		record, err := reader.Next()
		if err != nil {
			break
		}

		var reply rpcReply
		require.Nil(t, json.Unmarshal(record.Data, &reply))
		assert.Equal(t, "7", string(reply.ID))
		require.Nil(t, reply.Error)

		event, err := a2a.UnmarshalEvent(reply.Result)
		require.Nil(t, err)
		events = append(events, event)
	}

	require.Len(t, events, 4)
	assert.IsType(t, &a2a.Task{}, events[0])

	final, ok := events[3].(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

func TestRPCStreamUnsupported(t *testing.T) {
	card := testCard()
	card.Capabilities.Streaming = false

	handler := NewRequestHandler(
		card, NewEchoExecutor(),
		stores.NewInMemoryTaskStore(), stores.NewInMemoryPushNotificationStore(),
	)
	server := NewJSONRPCServer(handler)

	// Refused before the stream opens, so a plain envelope comes back.
	reply := decodeReply(t, postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "message/stream",
		"params": {"message": {"kind":"message","role":"user","parts":[{"kind":"text","text":"x"}]}}
	}`))

	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrUnsupportedOperation.Code, reply.Error.Code)
}

func TestRPCResubscribeTerminalTask(t *testing.T) {
	server, taskStore := newRPCServer(NewEchoExecutor())

	done := a2a.NewTask("t-done", "c1")
	done.ToStatus(a2a.TaskStateCompleted, nil)
	require.Nil(t, taskStore.Save(context.Background(), done))

	recorder := postRPC(
		server, `{"jsonrpc":"2.0","id":1,"method":"tasks/resubscribe","params":{"id":"t-done"}}`,
	)

	require.Equal(t, http.StatusOK, recorder.Code)

	reader := sse.NewReader(recorder.Body)
	record, err := reader.Next()
	require.Nil(t, err)

	var reply rpcReply
	require.Nil(t, json.Unmarshal(record.Data, &reply))

	event, err := a2a.UnmarshalEvent(reply.Result)
	require.Nil(t, err)

	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestRPCPushConfigRoundTrip(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/pushNotificationConfig/set",
		"params": {
			"taskId": "t1",
			"pushNotificationConfig": {"url": "http://callback"}
		}
	}`))
	require.Nil(t, reply.Error)

	reply = decodeReply(t, postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 2,
		"method": "tasks/pushNotificationConfig/list",
		"params": {"id": "t1"}
	}`))
	require.Nil(t, reply.Error)

	var configs []a2a.TaskPushNotificationConfig
	require.Nil(t, json.Unmarshal(reply.Result, &configs))
	require.Len(t, configs, 1)
	assert.Equal(t, "http://callback", configs[0].PushNotificationConfig.URL)

	reply = decodeReply(t, postRPC(server, `{
		"jsonrpc": "2.0",
		"id": 3,
		"method": "tasks/pushNotificationConfig/delete",
		"params": {"id": "t1", "pushNotificationConfigId": "t1"}
	}`))
	require.Nil(t, reply.Error)
	assert.Equal(t, "{}", string(reply.Result))
}

func TestRPCExtendedCardNotConfigured(t *testing.T) {
	server, _ := newRPCServer(NewEchoExecutor())

	reply := decodeReply(t, postRPC(
		server, `{"jsonrpc":"2.0","id":1,"method":"agent/getAuthenticatedExtendedCard"}`,
	))
	require.NotNil(t, reply.Error)
	assert.Equal(t, errors.ErrAuthenticatedExtendedCardNotConfigured.Code, reply.Error.Code)
}
