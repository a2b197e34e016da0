package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
	"collabhub/platform/internal/server/store/memory"
)

func event(id, table, projectID string) models.ChangeEvent {
	return models.ChangeEvent{
		ID:         id,
		Table:      table,
		Type:       models.ChangeInsert,
		ProjectID:  projectID,
		Record:     json.RawMessage(`{"id":"r1"}`),
		CommitTime: time.Now().UTC(),
	}
}

func drain(t *testing.T, ch chan []byte) models.ChangeEvent {
	t.Helper()
	select {
	case payload := <-ch:
		var ev models.ChangeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatal(err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return models.ChangeEvent{}
	}
}

func TestHubRoutesBySubscription(t *testing.T) {
	hub := NewHub()

	tasks := NewClient("tasks-client", 4)
	tasks.Subscribe(models.TableTasks, "")
	hub.Register(tasks)

	scoped := NewClient("scoped-client", 4)
	scoped.Subscribe(models.TableTasks, "project_id=p1")
	hub.Register(scoped)

	notes := NewClient("notes-client", 4)
	notes.Subscribe(models.TableNotes, "")
	hub.Register(notes)

	hub.Broadcast(event("e1", models.TableTasks, "p1"))

	if got := drain(t, tasks.Send); got.Table != models.TableTasks {
		t.Fatalf("event = %+v", got)
	}
	if got := drain(t, scoped.Send); got.ProjectID != "p1" {
		t.Fatalf("event = %+v", got)
	}
	select {
	case payload := <-notes.Send:
		t.Fatalf("notes client got %s", payload)
	default:
	}

	// An event for another project skips the scoped client.
	hub.Broadcast(event("e2", models.TableTasks, "p2"))
	drain(t, tasks.Send)
	select {
	case payload := <-scoped.Send:
		t.Fatalf("scoped client got %s", payload)
	default:
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub()
	slow := NewClient("slow", 1)
	slow.Subscribe(models.TableTasks, "")
	hub.Register(slow)

	hub.Broadcast(event("e1", models.TableTasks, "p1"))
	hub.Broadcast(event("e2", models.TableTasks, "p1"))

	if got := len(slow.Send); got != 1 {
		t.Fatalf("buffered = %d, want 1 with the overflow dropped", got)
	}
}

func TestHubSuppressesRepeatEventIDs(t *testing.T) {
	hub := NewHub()
	c := NewClient("c1", 4)
	c.Subscribe(models.TableTasks, "")
	hub.Register(c)

	// The same outbox row arrives once per publishing instance.
	hub.Broadcast(event("e1", models.TableTasks, "p1"))
	hub.Broadcast(event("e1", models.TableTasks, "p1"))
	hub.Broadcast(event("e1", models.TableTasks, "p1"))

	if got := len(c.Send); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}

	// Events without an id pass through untouched.
	hub.Broadcast(event("", models.TableTasks, "p1"))
	hub.Broadcast(event("", models.TableTasks, "p1"))
	if got := len(c.Send); got != 3 {
		t.Fatalf("delivered = %d, want 3", got)
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	c := NewClient("c1", 1)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c) // second call is a no-op

	if _, open := <-c.Send; open {
		t.Fatal("send channel should be closed")
	}

	// Broadcasting after unregister must not panic on the closed channel.
	hub.Broadcast(event("e1", models.TableTasks, "p1"))
}

type capturingPublisher struct {
	events chan models.ChangeEvent
}

func (c *capturingPublisher) Broadcast(ev models.ChangeEvent) { c.events <- ev }

func TestPollerForwardsNewEvents(t *testing.T) {
	st := memory.New()
	pub := &capturingPublisher{events: make(chan models.ChangeEvent, 8)}
	poller := NewPoller(st, pub, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	// The cursor starts at now, so rows inserted after startup flow out.
	time.Sleep(20 * time.Millisecond)
	_, err := st.InsertRow(ctx, store.Row{
		ID:        "t1",
		Table:     models.TableTasks,
		ProjectID: "p1",
		Doc:       json.RawMessage(`{"id":"t1","project_id":"p1"}`),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-pub.events:
		if ev.Table != models.TableTasks || ev.Type != models.ChangeInsert || ev.ProjectID != "p1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller never forwarded the insert")
	}
}
