package a2a

// JSON-RPC method names exposed by an A2A server.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksResubscribe = "tasks/resubscribe"
	MethodPushConfigSet    = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet    = "tasks/pushNotificationConfig/get"
	MethodPushConfigList   = "tasks/pushNotificationConfig/list"
	MethodPushConfigDelete = "tasks/pushNotificationConfig/delete"
	MethodExtendedCard     = "agent/getAuthenticatedExtendedCard"
)

// MessageSendParams carries a message/send or message/stream request.
type MessageSendParams struct {
	Message       Message                   `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// Blocking reports whether the caller wants to wait for the terminal
// result. Defaults to true when no configuration is present.
func (params *MessageSendParams) Blocking() bool {
	if params.Configuration == nil || params.Configuration.Blocking == nil {
		return true
	}
	return *params.Configuration.Blocking
}

// MessageSendConfiguration tunes how a send is processed.
type MessageSendConfiguration struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	HistoryLength          *int                    `json:"historyLength,omitempty"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	Blocking               *bool                   `json:"blocking,omitempty"`
}

// TaskIDParams represents the base parameters for task ID-based operations.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams represents the parameters for querying task information.
type TaskQueryParams struct {
	TaskIDParams
	HistoryLength *int `json:"historyLength,omitempty"`
}

// PushNotificationConfig represents a registered callback endpoint.
type PushNotificationConfig struct {
	// ID distinguishes multiple configs on one task; defaults to the task id.
	ID    string  `json:"id,omitempty"`
	URL   string  `json:"url"`
	Token *string `json:"token,omitempty"`
	// Authentication details the receiving endpoint requires.
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitempty"`
}

// PushNotificationAuthenticationInfo mirrors the card's security scheme
// declaration for outbound notifications.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials *string  `json:"credentials,omitempty"`
}

// TaskPushNotificationConfig binds a PushNotificationConfig to a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// GetTaskPushNotificationConfigParams addresses one config of one task.
type GetTaskPushNotificationConfigParams struct {
	ID                       string         `json:"id"`
	PushNotificationConfigID string         `json:"pushNotificationConfigId,omitempty"`
	Metadata                 map[string]any `json:"metadata,omitempty"`
}

// ListTaskPushNotificationConfigParams addresses all configs of one task.
type ListTaskPushNotificationConfigParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteTaskPushNotificationConfigParams addresses one config for removal.
type DeleteTaskPushNotificationConfigParams struct {
	ID                       string         `json:"id"`
	PushNotificationConfigID string         `json:"pushNotificationConfigId"`
	Metadata                 map[string]any `json:"metadata,omitempty"`
}
