package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"collabhub/platform/internal/models"
)

const eventChannel = "collabhub:changes"

// Bridge relays change events through redis pub/sub so every server
// instance sees mutations committed by its peers. With a single
// instance the poller can feed the hub directly and the bridge is not
// constructed at all.
//
// Every instance runs its own outbox poller and publishes to the same
// channel, so an event reaches each subscriber once per instance. The
// hub suppresses repeat ids, making delivery to websocket clients
// effectively once per event.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	return &Bridge{rdb: rdb, hub: hub}
}

// Broadcast publishes to redis instead of the local hub; the event
// comes back through Run on every instance, this one included.
func (b *Bridge) Broadcast(event models.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime bridge marshal error: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), eventChannel, payload).Err(); err != nil {
		log.Printf("realtime bridge publish error: %v", err)
		// Redis being down should not make mutations invisible locally.
		b.hub.Broadcast(event)
	}
}

func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("realtime bridge decode error: %v", err)
				continue
			}
			b.hub.Broadcast(event)
		}
	}
}
