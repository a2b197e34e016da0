// Package sync keeps local copies of entity tables in step with the
// backend. Mutations apply locally first and roll back if the remote
// write fails; change events from the realtime feed merge into the
// same local state.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"collabhub/platform/internal/client"
	"collabhub/platform/internal/models"
)

// Entity is any row type the collection can hold. ID must be stable
// across updates.
type Entity interface {
	EntityID() string
}

// Collection mirrors one table. It is safe for concurrent use.
type Collection[T Entity] struct {
	client *client.Client
	table  string

	mu   sync.RWMutex
	rows map[string]T
}

func NewCollection[T Entity](cli *client.Client, table string) *Collection[T] {
	return &Collection[T]{
		client: cli,
		table:  table,
		rows:   make(map[string]T),
	}
}

func (c *Collection[T]) Table() string { return c.table }

// Load replaces the local state with the server's rows, optionally
// scoped to one project.
func (c *Collection[T]) Load(ctx context.Context, projectID string) error {
	raws, err := c.client.ListRows(ctx, c.table, projectID)
	if err != nil {
		return err
	}
	rows := make(map[string]T, len(raws))
	for _, raw := range raws {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return fmt.Errorf("decode %s row: %w", c.table, err)
		}
		rows[row.EntityID()] = row
	}
	c.mu.Lock()
	c.rows = rows
	c.mu.Unlock()
	return nil
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[id]
	return row, ok
}

// All returns the rows sorted by ID for a stable order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.rows))
	for _, row := range c.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Insert writes the row locally, then to the server. On failure the
// local row is removed again; on success the server's stored version
// replaces the optimistic one.
func (c *Collection[T]) Insert(ctx context.Context, row T) (T, error) {
	id := row.EntityID()
	c.mu.Lock()
	c.rows[id] = row
	c.mu.Unlock()

	stored, err := c.client.InsertRow(ctx, c.table, row)
	if err != nil {
		c.mu.Lock()
		delete(c.rows, id)
		c.mu.Unlock()
		var zero T
		return zero, err
	}
	return c.adopt(id, stored)
}

// Update applies the new version locally, then remotely, restoring the
// previous version if the server rejects it.
func (c *Collection[T]) Update(ctx context.Context, row T) (T, error) {
	id := row.EntityID()
	c.mu.Lock()
	prev, had := c.rows[id]
	c.rows[id] = row
	c.mu.Unlock()

	stored, err := c.client.UpdateRow(ctx, c.table, id, row)
	if err != nil {
		c.mu.Lock()
		if had {
			c.rows[id] = prev
		} else {
			delete(c.rows, id)
		}
		c.mu.Unlock()
		var zero T
		return zero, err
	}
	return c.adopt(id, stored)
}

// Delete removes the row locally, then remotely, putting it back if
// the server call fails. A remote ErrNotFound counts as success.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	prev, had := c.rows[id]
	delete(c.rows, id)
	c.mu.Unlock()

	err := c.client.DeleteRow(ctx, c.table, id)
	if err != nil && err != client.ErrNotFound {
		c.mu.Lock()
		if had {
			c.rows[id] = prev
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// ApplyEvent merges one realtime change into the local state. Events
// for other tables are ignored.
func (c *Collection[T]) ApplyEvent(ev models.ChangeEvent) error {
	if ev.Table != c.table {
		return nil
	}
	switch ev.Type {
	case models.ChangeInsert, models.ChangeUpdate:
		var row T
		if err := json.Unmarshal(ev.Record, &row); err != nil {
			return fmt.Errorf("decode %s event: %w", c.table, err)
		}
		c.mu.Lock()
		c.rows[row.EntityID()] = row
		c.mu.Unlock()
	case models.ChangeDelete:
		var stub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Record, &stub); err != nil {
			return fmt.Errorf("decode %s delete event: %w", c.table, err)
		}
		c.mu.Lock()
		delete(c.rows, stub.ID)
		c.mu.Unlock()
	}
	return nil
}

func (c *Collection[T]) adopt(optimisticID string, stored json.RawMessage) (T, error) {
	var row T
	if err := json.Unmarshal(stored, &row); err != nil {
		var zero T
		return zero, fmt.Errorf("decode stored %s row: %w", c.table, err)
	}
	c.mu.Lock()
	if row.EntityID() != optimisticID {
		delete(c.rows, optimisticID)
	}
	c.rows[row.EntityID()] = row
	c.mu.Unlock()
	return row, nil
}
