// Package live fans out record store change notifications to scoped subscriptions.
package live

import (
	"sync"

	"github.com/trezcool/clinic/core"
)

// Hub is an in-process change notifier. The zero value is not usable, use NewHub.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

var _ core.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives the name of every changed collection it subscribed to.
// Bursts of changes are coalesced: a pending notification is never duplicated.
type Subscription struct {
	C <-chan string

	c           chan string
	collections map[string]bool
	hub         *Hub
	once        sync.Once
}

// Subscribe starts a subscription to changes on the given collections.
// It must be released with Close.
func (h *Hub) Subscribe(collections ...string) *Subscription {
	c := make(chan string, 1)
	sub := &Subscription{
		C:           c,
		c:           c,
		collections: make(map[string]bool, len(collections)),
		hub:         h,
	}
	for _, col := range collections {
		sub.collections[col] = true
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Notify signals a change on collection to every interested subscription.
func (h *Hub) Notify(collection string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.collections[collection] {
			continue
		}
		select {
		case sub.c <- collection:
		default: // one is already pending
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
	})
}
