package services

import (
	"sync"

	"github.com/photosync/syncagent/internal/models"
)

// ProgressSink receives user-visible sync status
type ProgressSink interface {
	Publish(isSyncing bool, text string)
}

// ProgressBroadcaster holds the latest SyncProgress and fans every update out
// to subscribers. Publish never blocks: a subscriber that has not drained its
// previous value gets the newer one in its place.
type ProgressBroadcaster struct {
	mu          sync.RWMutex
	current     models.SyncProgress
	subscribers map[int]chan models.SyncProgress
	nextID      int
}

// NewProgressBroadcaster creates a broadcaster holding the idle state
func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{
		current:     models.NewSyncProgress(),
		subscribers: make(map[int]chan models.SyncProgress),
	}
}

// Publish records and broadcasts a new status
func (b *ProgressBroadcaster) Publish(isSyncing bool, text string) {
	p := models.SyncProgress{IsSyncing: isSyncing, Text: text}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = p
	for _, ch := range b.subscribers {
		select {
		case ch <- p:
		default:
			// Replace the stale value so the subscriber always sees the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

// Current returns the latest published status
func (b *ProgressBroadcaster) Current() models.SyncProgress {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Subscribe returns a channel receiving the current status immediately and
// every later update. The cancel func must be called to release it; it
// closes the channel.
func (b *ProgressBroadcaster) Subscribe() (<-chan models.SyncProgress, func()) {
	ch := make(chan models.SyncProgress, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	ch <- b.current
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscriptions
func (b *ProgressBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// progressFunc adapts a function to ProgressSink
type progressFunc func(isSyncing bool, text string)

func (f progressFunc) Publish(isSyncing bool, text string) { f(isSyncing, text) }

// discardProgress is used when a caller passes a nil sink
var discardProgress ProgressSink = progressFunc(func(bool, string) {})
