package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

const notificationTimeout = time.Second * 5

/*
Sender delivers task snapshots to every callback endpoint registered for a
task. Delivery is best effort: a failing endpoint is logged and never blocks
the execution that triggered it.
*/
type Sender struct {
	store      stores.PushNotificationStore
	client     *http.Client
	signingKey []byte
}

func NewSender(store stores.PushNotificationStore) *Sender {
	return &Sender{
		store: store,
		client: &http.Client{
			Timeout: notificationTimeout,
		},
	}
}

// SetSigningKey enables JWT bearer signing for endpoints that request the
// bearer scheme without providing their own credentials.
func (sender *Sender) SetSigningKey(key []byte) {
	sender.signingKey = key
}

/*
Notify posts the task snapshot to every config registered for it, in
parallel. Returns once every attempt finished.
*/
func (sender *Sender) Notify(ctx context.Context, task *a2a.Task) {
	if task == nil {
		return
	}

	configs, err := sender.store.List(ctx, task.ID)

	if err != nil {
		log.Error("failed to list push configs", "task_id", task.ID, "error", err)
		return
	}

	if len(configs) == 0 {
		return
	}

	payload, jsonErr := json.Marshal(task)

	if jsonErr != nil {
		log.Error("failed to marshal push payload", "task_id", task.ID, "error", jsonErr)
		return
	}

	var wg sync.WaitGroup

	for _, config := range configs {
		wg.Add(1)

		go func(config a2a.TaskPushNotificationConfig) {
			defer wg.Done()
			sender.send(ctx, task.ID, config.PushNotificationConfig, payload)
		}(config)
	}

	wg.Wait()
}

func (sender *Sender) send(
	ctx context.Context, taskID string, config a2a.PushNotificationConfig, payload []byte,
) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, config.URL, bytes.NewReader(payload),
	)

	if err != nil {
		log.Error(
			"failed to build push notification",
			"task_id", taskID,
			"url", config.URL,
			"error", err,
		)
		return
	}

	req.Header.Set("Content-Type", "application/json")

	// The token the client handed us at registration time goes back
	// verbatim, so the receiver can correlate the callback.
	if config.Token != nil && *config.Token != "" {
		req.Header.Set("X-A2A-Notification-Token", *config.Token)
	}

	if err := sender.authorize(req, taskID, config); err != nil {
		log.Error(
			"failed to authorize push notification",
			"task_id", taskID,
			"url", config.URL,
			"error", err,
		)
		return
	}

	resp, err := sender.client.Do(req)

	if err != nil {
		log.Warn(
			"push notification failed",
			"task_id", taskID,
			"url", config.URL,
			"error", err,
		)
		return
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warn(
			"push notification rejected",
			"task_id", taskID,
			"url", config.URL,
			"status", resp.StatusCode,
		)
		return
	}

	log.Debug("push notification delivered", "task_id", taskID, "url", config.URL)
}

// authorize attaches the Authorization header the endpoint asked for.
func (sender *Sender) authorize(
	req *http.Request, taskID string, config a2a.PushNotificationConfig,
) error {
	auth := config.Authentication
	if auth == nil {
		return nil
	}

	for _, scheme := range auth.Schemes {
		if !strings.EqualFold(scheme, "bearer") {
			continue
		}

		if auth.Credentials != nil && *auth.Credentials != "" {
			req.Header.Set("Authorization", "Bearer "+*auth.Credentials)
			return nil
		}

		if len(sender.signingKey) == 0 {
			log.Warn("bearer scheme requested but no signing key configured", "task_id", taskID)
			return nil
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iat":    time.Now().Unix(),
			"exp":    time.Now().Add(notificationTimeout * 12).Unix(),
			"taskId": taskID,
		})

		signed, err := token.SignedString(sender.signingKey)

		if err != nil {
			return err
		}

		req.Header.Set("Authorization", "Bearer "+signed)
		return nil
	}

	return nil
}
