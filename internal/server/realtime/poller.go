package realtime

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
)

// Publisher receives events read off the outbox. The hub implements it
// directly; the redis bridge implements it for multi-instance setups.
type Publisher interface {
	Broadcast(event models.ChangeEvent)
}

// Poller tails the change_events outbox and hands batches to the
// publisher. The feed is live-only: on start the cursor is set to now,
// history is not replayed.
type Poller struct {
	store     store.Store
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewPoller(st store.Store, publisher Publisher, interval time.Duration, batchSize int) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{store: st, publisher: publisher, interval: interval, batchSize: batchSize}
}

func (p *Poller) Run(ctx context.Context) {
	offset := store.Offset{LastEventTime: time.Now().UTC()}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var running int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				continue
			}
			pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			events, err := p.store.ListChangeEvents(pollCtx, offset, p.batchSize)
			cancel()
			if err != nil {
				log.Printf("outbox poll error: %v", err)
			} else {
				for _, event := range events {
					offset.LastEventTime = event.CommitTime
					offset.LastEventID = event.ID
					p.publisher.Broadcast(event)
				}
			}
			atomic.StoreInt32(&running, 0)
		}
	}
}
