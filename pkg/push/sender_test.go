package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/stores"
)

type delivery struct {
	task   a2a.Task
	token  string
	bearer string
}

func newCallbackServer() (*httptest.Server, *[]delivery, *sync.Mutex) {
	var (
		mu         sync.Mutex
		deliveries []delivery
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var task a2a.Task
		_ = json.NewDecoder(r.Body).Decode(&task)

		mu.Lock()
		deliveries = append(deliveries, delivery{
			task:   task,
			token:  r.Header.Get("X-A2A-Notification-Token"),
			bearer: r.Header.Get("Authorization"),
		})
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))

	return server, &deliveries, &mu
}

func TestNotify(t *testing.T) {
	Convey("Given a sender with one registered config", t, func() {
		server, deliveries, mu := newCallbackServer()
		defer server.Close()

		store := stores.NewInMemoryPushNotificationStore()
		token := "secret-token"

		_, err := store.Save(context.Background(), a2a.TaskPushNotificationConfig{
			TaskID: "t1",
			PushNotificationConfig: a2a.PushNotificationConfig{
				URL:   server.URL,
				Token: &token,
			},
		})
		So(err, ShouldBeNil)

		sender := NewSender(store)
		task := a2a.NewTask("t1", "c1")

		Convey("When a task snapshot is dispatched", func() {
			sender.Notify(context.Background(), task)

			mu.Lock()
			defer mu.Unlock()

			Convey("Then the callback receives the snapshot and the token", func() {
				So(*deliveries, ShouldHaveLength, 1)
				So((*deliveries)[0].task.ID, ShouldEqual, "t1")
				So((*deliveries)[0].token, ShouldEqual, "secret-token")
			})
		})
	})
}

func TestNotifyMultipleConfigs(t *testing.T) {
	Convey("Given two configs registered for the same task", t, func() {
		server, deliveries, mu := newCallbackServer()
		defer server.Close()

		store := stores.NewInMemoryPushNotificationStore()

		for _, id := range []string{"a", "b"} {
			_, err := store.Save(context.Background(), a2a.TaskPushNotificationConfig{
				TaskID: "t1",
				PushNotificationConfig: a2a.PushNotificationConfig{
					ID:  id,
					URL: server.URL,
				},
			})
			So(err, ShouldBeNil)
		}

		sender := NewSender(store)

		Convey("When one snapshot is dispatched", func() {
			sender.Notify(context.Background(), a2a.NewTask("t1", "c1"))

			mu.Lock()
			defer mu.Unlock()

			Convey("Then each config receives one POST", func() {
				So(*deliveries, ShouldHaveLength, 2)
			})
		})
	})
}

func TestNotifyBearerSigning(t *testing.T) {
	Convey("Given a config requesting the bearer scheme", t, func() {
		server, deliveries, mu := newCallbackServer()
		defer server.Close()

		store := stores.NewInMemoryPushNotificationStore()

		_, err := store.Save(context.Background(), a2a.TaskPushNotificationConfig{
			TaskID: "t1",
			PushNotificationConfig: a2a.PushNotificationConfig{
				URL: server.URL,
				Authentication: &a2a.PushNotificationAuthenticationInfo{
					Schemes: []string{"bearer"},
				},
			},
		})
		So(err, ShouldBeNil)

		sender := NewSender(store)
		sender.SetSigningKey([]byte("signing-key"))

		Convey("When a snapshot is dispatched", func() {
			sender.Notify(context.Background(), a2a.NewTask("t1", "c1"))

			mu.Lock()
			defer mu.Unlock()

			Convey("Then the request carries a signed bearer token", func() {
				So(*deliveries, ShouldHaveLength, 1)
				So((*deliveries)[0].bearer, ShouldStartWith, "Bearer ")
			})
		})
	})
}

func TestNotifyFailureIsSilent(t *testing.T) {
	Convey("Given a config pointing at a dead endpoint", t, func() {
		store := stores.NewInMemoryPushNotificationStore()

		_, err := store.Save(context.Background(), a2a.TaskPushNotificationConfig{
			TaskID: "t1",
			PushNotificationConfig: a2a.PushNotificationConfig{
				URL: "http://127.0.0.1:1",
			},
		})
		So(err, ShouldBeNil)

		sender := NewSender(store)

		Convey("Then dispatching does not panic or block", func() {
			So(func() {
				sender.Notify(context.Background(), a2a.NewTask("t1", "c1"))
			}, ShouldNotPanic)
		})
	})
}

func TestNotifyWithoutConfigs(t *testing.T) {
	Convey("Given a task with no registered configs", t, func() {
		sender := NewSender(stores.NewInMemoryPushNotificationStore())

		Convey("Then Notify is a no-op", func() {
			So(func() {
				sender.Notify(context.Background(), a2a.NewTask("t1", "c1"))
			}, ShouldNotPanic)
		})
	})
}
