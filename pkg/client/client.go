package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

/*
Client mirrors the server's request surface over whichever transport the
agent card advertises. JSON-RPC is preferred when available; HTTP+JSON is
the fallback. Streams arrive over SSE on both.
*/
type Client struct {
	card         *a2a.AgentCard
	endpoint     string
	transport    string
	conn         *fiberClient.Client
	httpClient   *http.Client
	call         CallFunc
	interceptors []Interceptor
	extensions   []string
	preferred    string
	nextID       atomic.Int64
}

type Option func(*Client)

// WithTransport forces a transport instead of taking the card's preference.
func WithTransport(transport string) Option {
	return func(client *Client) {
		client.preferred = transport
	}
}

// WithInterceptors appends interceptors to the unary call chain.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(client *Client) {
		client.interceptors = append(client.interceptors, interceptors...)
	}
}

// WithExtensions requests protocol extensions on every call.
func WithExtensions(uris ...string) Option {
	return func(client *Client) {
		client.extensions = append(client.extensions, uris...)
	}
}

// WithHTTPClient overrides the client used for streaming connections.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

/*
Resolve fetches the agent card from its well-known path under baseURL and
builds a client for it.
*/
func Resolve(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, baseURL+a2a.WellKnownCardPath, nil,
	)

	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card fetch returned status %d", resp.StatusCode)
	}

	var card a2a.AgentCard

	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}

	return New(&card, opts...)
}

// New builds a client from an already-resolved agent card.
func New(card *a2a.AgentCard, opts ...Option) (*Client, error) {
	client := &Client{
		card:       card,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(client)
	}

	iface, err := selectInterface(card, client.preferred)

	if err != nil {
		return nil, err
	}

	client.endpoint = iface.URL
	client.transport = iface.Transport
	client.conn = fiberClient.New()
	client.call = chain(client.do, client.interceptors)

	return client, nil
}

// selectInterface picks the endpoint to talk to: an explicit preference
// must be served by the card; otherwise JSONRPC wins over HTTP+JSON.
func selectInterface(card *a2a.AgentCard, preferred string) (a2a.AgentInterface, error) {
	interfaces := card.Interfaces()

	if preferred != "" {
		for _, iface := range interfaces {
			if iface.Transport == preferred {
				return iface, nil
			}
		}
		return a2a.AgentInterface{}, fmt.Errorf(
			"agent %s does not serve transport %s", card.Name, preferred,
		)
	}

	for _, transport := range []string{a2a.TransportJSONRPC, a2a.TransportHTTPJSON} {
		for _, iface := range interfaces {
			if iface.Transport == transport {
				return iface, nil
			}
		}
	}

	return a2a.AgentInterface{}, fmt.Errorf(
		"agent %s advertises no supported transport", card.Name,
	)
}

// Card returns the resolved agent card.
func (client *Client) Card() *a2a.AgentCard {
	return client.card
}

// Transport returns the transport this client selected.
func (client *Client) Transport() string {
	return client.transport
}

/*
SendMessage performs message/send and returns the Task or Message the agent
answered with. Whether the call blocks until a terminal state is governed
by params.Configuration.Blocking.
*/
func (client *Client) SendMessage(
	ctx context.Context, params a2a.MessageSendParams,
) (a2a.Event, error) {
	var raw json.RawMessage

	if err := client.call(ctx, CallInfo{Method: a2a.MethodMessageSend, Params: params}, &raw); err != nil {
		return nil, err
	}

	return a2a.UnmarshalEvent(raw)
}

// SendMessageStream performs message/stream and returns the event stream.
func (client *Client) SendMessageStream(
	ctx context.Context, params a2a.MessageSendParams,
) (*Stream, error) {
	return client.stream(ctx, a2a.MethodMessageStream, params)
}

// GetTask fetches the current task record.
func (client *Client) GetTask(
	ctx context.Context, taskID string, historyLength *int,
) (*a2a.Task, error) {
	params := a2a.TaskQueryParams{
		TaskIDParams:  a2a.TaskIDParams{ID: taskID},
		HistoryLength: historyLength,
	}

	var task a2a.Task

	if err := client.call(ctx, CallInfo{Method: a2a.MethodTasksGet, Params: params}, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// CancelTask requests cancellation and returns the snapshot at that moment.
func (client *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task

	if err := client.call(ctx, CallInfo{
		Method: a2a.MethodTasksCancel,
		Params: a2a.TaskIDParams{ID: taskID},
	}, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// Resubscribe re-opens the event stream of an in-progress task.
func (client *Client) Resubscribe(ctx context.Context, taskID string) (*Stream, error) {
	return client.stream(ctx, a2a.MethodTasksResubscribe, a2a.TaskIDParams{ID: taskID})
}

// SetPushConfig registers a callback endpoint for a task.
func (client *Client) SetPushConfig(
	ctx context.Context, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, error) {
	var saved a2a.TaskPushNotificationConfig

	if err := client.call(ctx, CallInfo{Method: a2a.MethodPushConfigSet, Params: config}, &saved); err != nil {
		return nil, err
	}

	return &saved, nil
}

// GetPushConfig fetches one registered callback endpoint.
func (client *Client) GetPushConfig(
	ctx context.Context, taskID string, configID string,
) (*a2a.TaskPushNotificationConfig, error) {
	var config a2a.TaskPushNotificationConfig

	if err := client.call(ctx, CallInfo{
		Method: a2a.MethodPushConfigGet,
		Params: a2a.GetTaskPushNotificationConfigParams{ID: taskID, PushNotificationConfigID: configID},
	}, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ListPushConfigs fetches every callback endpoint registered for a task.
func (client *Client) ListPushConfigs(
	ctx context.Context, taskID string,
) ([]a2a.TaskPushNotificationConfig, error) {
	var configs []a2a.TaskPushNotificationConfig

	if err := client.call(ctx, CallInfo{
		Method: a2a.MethodPushConfigList,
		Params: a2a.ListTaskPushNotificationConfigParams{ID: taskID},
	}, &configs); err != nil {
		return nil, err
	}

	return configs, nil
}

// DeletePushConfig removes one registered callback endpoint.
func (client *Client) DeletePushConfig(
	ctx context.Context, taskID string, configID string,
) error {
	return client.call(ctx, CallInfo{
		Method: a2a.MethodPushConfigDelete,
		Params: a2a.DeleteTaskPushNotificationConfigParams{ID: taskID, PushNotificationConfigID: configID},
	}, nil)
}

// ExtendedCard fetches the authenticated extended card.
func (client *Client) ExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	var card a2a.AgentCard

	if err := client.call(ctx, CallInfo{Method: a2a.MethodExtendedCard}, &card); err != nil {
		return nil, err
	}

	return &card, nil
}

/*
WaitForTask polls tasks/get until the task reaches a terminal state, for
callers that issued a non-blocking send and do not hold a stream.
*/
func (client *Client) WaitForTask(
	ctx context.Context, taskID string, interval time.Duration,
) (*a2a.Task, error) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := client.GetTask(ctx, taskID, nil)

		if err != nil {
			return nil, err
		}

		if task.Terminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// rpcErrorOf normalizes a server error payload into a typed error.
func rpcErrorOf(data []byte, status int) error {
	var rpcErr errors.RpcError

	if err := json.Unmarshal(data, &rpcErr); err == nil && rpcErr.Code != 0 {
		return &rpcErr
	}

	return fmt.Errorf("request failed with status %d: %s", status, data)
}
