package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"collabhub/platform/internal/models"
)

type staticURL string

func (s staticURL) WebsocketURL() string { return string(s) }

// wsServer upgrades, reads the subscribe frame, then streams whatever
// the test feeds into events.
func wsServer(t *testing.T, events <-chan models.ChangeEvent, frames chan<- models.SubscribeFrame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, ok := models.ParseSubscribeFrame(data)
		if !ok {
			t.Errorf("bad subscribe frame: %s", data)
			return
		}
		frames <- frame

		for ev := range events {
			payload, _ := json.Marshal(ev)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))
}

func TestSubscribeDeliversEvents(t *testing.T) {
	feed := make(chan models.ChangeEvent, 1)
	frames := make(chan models.SubscribeFrame, 1)
	srv := wsServer(t, feed, frames)
	defer srv.Close()
	defer close(feed)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(staticURL(url), nil).Subscribe(context.Background(), models.TableTasks, "project_id=p1")
	defer sub.Unsubscribe()

	select {
	case frame := <-frames:
		if frame.Table != models.TableTasks || frame.Filter != "project_id=p1" {
			t.Fatalf("frame = %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame received")
	}

	feed <- models.ChangeEvent{
		ID:     "e1",
		Table:  models.TableTasks,
		Type:   models.ChangeInsert,
		Record: json.RawMessage(`{"id":"t1"}`),
	}

	select {
	case ev := <-sub.Events():
		if ev.ID != "e1" || ev.Type != models.ChangeInsert {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestUnsubscribeClosesEventChannel(t *testing.T) {
	feed := make(chan models.ChangeEvent)
	frames := make(chan models.SubscribeFrame, 1)
	srv := wsServer(t, feed, frames)
	defer srv.Close()
	defer close(feed)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(staticURL(url), nil).Subscribe(context.Background(), models.TableNotes, "")
	<-frames

	sub.Unsubscribe()

	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatal("expected closed channel after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}
}
