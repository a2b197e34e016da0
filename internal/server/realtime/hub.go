package realtime

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"collabhub/platform/internal/models"
)

type subKey struct {
	Table  string
	Filter string
}

type Client struct {
	ID   string
	Send chan []byte

	mu   sync.Mutex
	subs map[subKey]bool
}

func NewClient(id string, buffer int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, buffer),
		subs: make(map[subKey]bool),
	}
}

func (c *Client) Subscribe(table, filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subKey{Table: table, Filter: filter}] = true
}

func (c *Client) Unsubscribe(table, filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subKey{Table: table, Filter: filter})
}

func (c *Client) wants(event models.ChangeEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.subs {
		if key.Table != event.Table {
			continue
		}
		// Filters come in as "project_id=<id>" or as the bare id.
		filter := strings.TrimPrefix(key.Filter, "project_id=")
		if filter == "" || filter == event.ProjectID {
			return true
		}
	}
	return false
}

// Bound on remembered event ids for duplicate suppression.
const seenLimit = 1024

// Hub fans change events out to subscribed websocket clients. Slow
// clients lose messages rather than stalling the broadcast. Delivery
// from the outbox is at-least-once (every instance polls it and
// publishes to the shared redis channel), so the hub drops events whose
// id it has already broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	seenMu sync.Mutex
	seen   map[string]bool
	order  []string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		seen:    make(map[string]bool),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// markSeen records the event id and reports whether it was already
// broadcast. Events without an id are never suppressed.
func (h *Hub) markSeen(id string) bool {
	if id == "" {
		return false
	}
	h.seenMu.Lock()
	defer h.seenMu.Unlock()
	if h.seen[id] {
		return true
	}
	h.seen[id] = true
	h.order = append(h.order, id)
	if len(h.order) > seenLimit {
		delete(h.seen, h.order[0])
		h.order = h.order[1:]
	}
	return false
}

func (h *Hub) Broadcast(event models.ChangeEvent) {
	if h.markSeen(event.ID) {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("realtime drop event for client %s", client.ID)
		}
	}
}
