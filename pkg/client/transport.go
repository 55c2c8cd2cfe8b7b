package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcReply struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

func (client *Client) do(ctx context.Context, info CallInfo, out any) error {
	if client.transport == a2a.TransportJSONRPC {
		return client.doJSONRPC(ctx, info, out)
	}

	return client.doREST(ctx, info, out)
}

func (client *Client) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	if len(client.extensions) > 0 {
		headers["X-A2A-Extensions"] = strings.Join(client.extensions, ", ")
	}

	for key, value := range headersFromContext(ctx) {
		headers[key] = value
	}

	return headers
}

func (client *Client) doJSONRPC(ctx context.Context, info CallInfo, out any) error {
	envelope := rpcEnvelope{
		JSONRPC: "2.0",
		ID:      client.nextID.Add(1),
		Method:  info.Method,
		Params:  info.Params,
	}

	res, err := client.conn.Post(client.endpoint, fiberClient.Config{
		Ctx:    ctx,
		Header: client.headers(ctx),
		Body:   envelope,
	})

	if err != nil {
		return fmt.Errorf("rpc call %s failed: %w", info.Method, err)
	}

	defer res.Close()

	var reply rpcReply

	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		return fmt.Errorf("rpc call %s returned malformed response: %w", info.Method, err)
	}

	if reply.Error != nil {
		return reply.Error
	}

	if out != nil && len(reply.Result) > 0 {
		return json.Unmarshal(reply.Result, out)
	}

	return nil
}

func (client *Client) doREST(ctx context.Context, info CallInfo, out any) error {
	cfg := fiberClient.Config{
		Ctx:    ctx,
		Header: client.headers(ctx),
	}

	var (
		res *fiberClient.Response
		err error
	)

	switch info.Method {
	case a2a.MethodMessageSend:
		cfg.Body = info.Params
		res, err = client.conn.Post(client.endpoint+"/v1/message:send", cfg)

	case a2a.MethodTasksGet:
		params := info.Params.(a2a.TaskQueryParams)
		if params.HistoryLength != nil {
			cfg.Param = map[string]string{
				"historyLength": strconv.Itoa(*params.HistoryLength),
			}
		}
		res, err = client.conn.Get(client.taskURL(params.ID, ""), cfg)

	case a2a.MethodTasksCancel:
		params := info.Params.(a2a.TaskIDParams)
		res, err = client.conn.Post(client.taskURL(params.ID, ":cancel"), cfg)

	case a2a.MethodPushConfigSet:
		params := info.Params.(a2a.TaskPushNotificationConfig)
		cfg.Body = params.PushNotificationConfig
		res, err = client.conn.Post(client.taskURL(params.TaskID, "/pushNotificationConfigs"), cfg)

	case a2a.MethodPushConfigGet:
		params := info.Params.(a2a.GetTaskPushNotificationConfigParams)
		configID := params.PushNotificationConfigID
		if configID == "" {
			configID = params.ID
		}
		res, err = client.conn.Get(
			client.taskURL(params.ID, "/pushNotificationConfigs/"+url.PathEscape(configID)), cfg,
		)

	case a2a.MethodPushConfigList:
		params := info.Params.(a2a.ListTaskPushNotificationConfigParams)
		res, err = client.conn.Get(client.taskURL(params.ID, "/pushNotificationConfigs"), cfg)

	case a2a.MethodPushConfigDelete:
		params := info.Params.(a2a.DeleteTaskPushNotificationConfigParams)
		res, err = client.conn.Delete(
			client.taskURL(params.ID, "/pushNotificationConfigs/"+url.PathEscape(params.PushNotificationConfigID)), cfg,
		)

	default:
		return fmt.Errorf("method %s is not available over %s", info.Method, client.transport)
	}

	if err != nil {
		return fmt.Errorf("rest call %s failed: %w", info.Method, err)
	}

	defer res.Close()

	if res.StatusCode() >= http.StatusBadRequest {
		return rpcErrorOf(res.Body(), res.StatusCode())
	}

	if out != nil && len(res.Body()) > 0 {
		return json.Unmarshal(res.Body(), out)
	}

	return nil
}

func (client *Client) taskURL(taskID string, suffix string) string {
	return client.endpoint + "/v1/tasks/" + url.PathEscape(taskID) + suffix
}

/*
stream opens an SSE connection for message/stream or tasks/resubscribe and
pumps decoded events into a Stream until the server closes it.
*/
func (client *Client) stream(ctx context.Context, method string, params any) (*Stream, error) {
	var (
		endpoint string
		payload  any
	)

	if client.transport == a2a.TransportJSONRPC {
		endpoint = client.endpoint
		payload = rpcEnvelope{
			JSONRPC: "2.0",
			ID:      client.nextID.Add(1),
			Method:  method,
			Params:  params,
		}
	} else {
		switch method {
		case a2a.MethodMessageStream:
			endpoint = client.endpoint + "/v1/message:stream"
			payload = params
		case a2a.MethodTasksResubscribe:
			idParams := params.(a2a.TaskIDParams)
			endpoint = client.taskURL(idParams.ID, ":subscribe")
			payload = map[string]any{}
		default:
			return nil, fmt.Errorf("method %s is not a streaming method", method)
		}
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))

	if err != nil {
		return nil, err
	}

	for key, value := range client.headers(ctx) {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return nil, fmt.Errorf("stream call %s failed: %w", method, err)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		defer resp.Body.Close()

		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)

		// A JSON body here is an error raised before the stream opened.
		if client.transport == a2a.TransportJSONRPC {
			var reply rpcReply
			if err := json.Unmarshal(buf.Bytes(), &reply); err == nil && reply.Error != nil {
				return nil, reply.Error
			}
		}

		return nil, rpcErrorOf(buf.Bytes(), resp.StatusCode)
	}

	stream := newStream(resp.Body)
	go client.pump(ctx, resp, stream)

	return stream, nil
}

func (client *Client) pump(ctx context.Context, resp *http.Response, stream *Stream) {
	defer stream.finish(nil)
	defer resp.Body.Close()

	reader := stream.reader

	for {
		record, err := reader.Next()

		if err != nil {
			// EOF between records is the server closing the stream.
			return
		}

		if record.Event == "error" {
			stream.finish(client.decodeStreamError(record.Data))
			return
		}

		evt, err := client.decodeStreamEvent(record.Data)

		if err != nil {
			stream.finish(err)
			return
		}

		select {
		case stream.events <- evt:
		case <-ctx.Done():
			stream.finish(ctx.Err())
			return
		}
	}
}

func (client *Client) decodeStreamEvent(data []byte) (a2a.Event, error) {
	if client.transport == a2a.TransportJSONRPC {
		var reply rpcReply

		if err := json.Unmarshal(data, &reply); err != nil {
			return nil, fmt.Errorf("malformed stream envelope: %w", err)
		}

		if reply.Error != nil {
			return nil, reply.Error
		}

		return a2a.UnmarshalEvent(reply.Result)
	}

	return a2a.UnmarshalEvent(data)
}

func (client *Client) decodeStreamError(data []byte) error {
	var reply rpcReply

	if err := json.Unmarshal(data, &reply); err == nil && reply.Error != nil {
		return reply.Error
	}

	var rpcErr errors.RpcError

	if err := json.Unmarshal(data, &rpcErr); err == nil && rpcErr.Code != 0 {
		return &rpcErr
	}

	return fmt.Errorf("stream failed: %s", data)
}
