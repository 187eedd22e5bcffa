// internal/changes/bus.go
package changes

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event notifies subscribers that the observed document changed.
type Event struct {
	ID        string
	Timestamp time.Time
	Reason    string
}

// Source is a change-notification source. The returned function unsubscribes; it is safe to call
// more than once.
type Source interface {
	Subscribe() (<-chan Event, func())
}

// Bus is an in-process Source. Notifications are coalesced: a subscriber that has not drained
// its pending event misses intermediate ones, which is all a "something changed" signal needs.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	closeOnce   sync.Once
}

// NewBus initializes an empty change bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:      logger.Named("changes"),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Notify broadcasts a change. It never blocks.
func (b *Bus) Notify(reason string) {
	ev := Event{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Reason: reason}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	if len(b.subscribers) > 0 {
		b.logger.Debug("Broadcast change notification.", zap.String("reason", reason), zap.Int("subscribers", len(b.subscribers)))
	}
}

// Subscribe registers a new listener.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		closedCh := make(chan Event)
		close(closedCh)
		return closedCh, func() {}
	}

	ch := make(chan Event, 1)
	b.subscribers[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[ch]; ok {
				delete(b.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Subscribers returns the number of active listeners.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for ch := range b.subscribers {
			close(ch)
		}
		b.subscribers = make(map[chan Event]struct{})
		b.logger.Debug("Change bus closed.")
	})
}
