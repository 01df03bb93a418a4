package realtime

import (
	"context"
	"sync"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events are dropped
const subscriberBuffer = 16

// Broker fans notifications out to a user's live connections
type Broker interface {
	// Publish delivers the notification to every subscriber of the user's topic
	Publish(ctx context.Context, userID uuid.UUID, n *models.Notification) error

	// Subscribe returns a channel of the user's notifications and a cancel
	// func that must be called to release it
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error)
}

// MemoryBroker is an in-process Broker for single-instance deployments
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[uuid.UUID]map[int]chan models.Notification
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[uuid.UUID]map[int]chan models.Notification)}
}

// Publish never blocks; a subscriber with a full buffer misses the event
func (b *MemoryBroker) Publish(ctx context.Context, userID uuid.UUID, n *models.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[userID] {
		select {
		case ch <- *n:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber on the user's topic
func (b *MemoryBroker) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	ch := make(chan models.Notification, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan models.Notification)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// SubscriberCount returns the number of live subscribers for the user
func (b *MemoryBroker) SubscriberCount(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
