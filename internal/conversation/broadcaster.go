// ABOUTME: In-memory fan-out of conversation state snapshots to observers
// ABOUTME: Slow observers lose intermediate snapshots but always see the latest one

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// StateBroadcaster provides in-memory pub/sub for State snapshots.
// Publishing never blocks: when a subscriber's buffer is full its oldest
// pending snapshot is dropped to make room for the newest.
type StateBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan State // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewStateBroadcaster creates a broadcaster. Pass nil logger for default.
func NewStateBroadcaster(logger *slog.Logger) *StateBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateBroadcaster{
		subscribers: make(map[string]chan State),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer. The returned channel is closed on
// Unsubscribe, on Close, or when ctx is cancelled.
func (b *StateBroadcaster) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers a snapshot to every subscriber.
func (b *StateBroadcaster) Publish(state State) {
	// Held for the whole loop so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- state:
			continue
		default:
		}

		// Full: drop the oldest snapshot and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
			b.logger.Debug("conflated snapshot for slow subscriber", "sub_id", id)
		default:
			b.logger.Debug("dropped snapshot for slow subscriber", "sub_id", id)
		}
	}
}

// Subscribers returns the number of registered observers.
func (b *StateBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Unsubscribe removes a subscription and closes its channel.
func (b *StateBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}

	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *StateBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
