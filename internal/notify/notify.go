// Package notify is the in-process record-changed channel.
//
// The engine publishes an event whenever a persisted record mutates; the
// presentation layer (push notifications, live UI) subscribes and reacts.
// Delivery is best-effort: a subscriber that stops draining its channel
// loses events rather than blocking the publisher — the engine's write path
// must never stall on a slow consumer.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collections the engine publishes on.
const (
	CollectionUsers  = "users"
	CollectionGroups = "groups"
	CollectionSnipes = "snipes"
)

// Event announces that a record in a collection changed.
type Event struct {
	ID         string    `json:"id"` // unique per event, for client-side dedupe
	Collection string    `json:"collection"`
	RecordID   string    `json:"recordId"`
	At         time.Time `json:"at"`
}

const subscriberBuffer = 64

type subscriber struct {
	ch          chan Event
	collections map[string]bool // nil means all collections
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in the given collections (none means all).
// The returned cancel func unregisters and closes the channel; it is safe
// to call more than once.
func (b *Bus) Subscribe(collections ...string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(collections) > 0 {
		sub.collections = make(map[string]bool, len(collections))
		for _, c := range collections {
			sub.collections[c] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish announces a change to every interested subscriber without blocking.
func (b *Bus) Publish(collection, recordID string) {
	ev := Event{
		ID:         uuid.NewString(),
		Collection: collection,
		RecordID:   recordID,
		At:         time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.collections != nil && !sub.collections[collection] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// subscriber is full; drop rather than block the write path
		}
	}
}
