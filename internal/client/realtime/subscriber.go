// Package realtime is the client side of the change feed. A Subscriber
// holds one websocket per subscription and redials with capped backoff
// when the connection drops.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"collabhub/platform/internal/models"
)

const (
	eventBuffer      = 64
	reconnectBase    = time.Second
	reconnectCeiling = 30 * time.Second
)

// URLProvider hands out the websocket endpoint with a fresh access
// token. The transport client satisfies it.
type URLProvider interface {
	WebsocketURL() string
}

type Subscriber struct {
	urls URLProvider
	log  *log.Logger
	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewSubscriber(urls URLProvider, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		urls: urls,
		log:  logger,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Subscription delivers change events for one (table, filter) pair
// until its context ends or Unsubscribe is called.
type Subscription struct {
	events chan models.ChangeEvent
	cancel context.CancelFunc
}

func (s *Subscription) Events() <-chan models.ChangeEvent { return s.events }

func (s *Subscription) Unsubscribe() { s.cancel() }

// Subscribe opens the feed for one table. filter may be empty for all
// rows, or "project_id=<id>" to scope to one project. The returned
// subscription survives reconnects; events arriving while the socket
// is down are missed, callers needing a complete picture should
// re-list after a reconnect.
func (s *Subscriber) Subscribe(ctx context.Context, table, filter string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan models.ChangeEvent, eventBuffer),
		cancel: cancel,
	}
	go s.run(ctx, table, filter, sub)
	return sub
}

func (s *Subscriber) run(ctx context.Context, table, filter string, sub *Subscription) {
	defer close(sub.events)

	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.dial(ctx, s.urls.WebsocketURL())
		if err != nil {
			s.log.Printf("realtime: dial failed: %v", err)
			if sleep(ctx, backoff) != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = reconnectBase

		if err := s.readLoop(ctx, conn, table, filter, sub); err != nil && ctx.Err() == nil {
			s.log.Printf("realtime: connection lost: %v", err)
		}
		conn.Close()
		if sleep(ctx, backoff) != nil {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, table, filter string, sub *Subscription) error {
	frame := models.SubscribeFrame{Action: "subscribe", Table: table, Filter: filter}
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}

	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev models.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Printf("realtime: dropping malformed event: %v", err)
			continue
		}
		select {
		case sub.events <- ev:
		default:
			s.log.Printf("realtime: subscriber buffer full, dropping %s on %s", ev.Type, ev.Table)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectCeiling {
		return reconnectCeiling
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
