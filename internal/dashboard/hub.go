package dashboard

import (
	"log/slog"
	"sync"
	"time"
)

const subscriberBuffer = 64

// Notice announces that a view holds fresh data.
type Notice struct {
	View        ViewID    `json:"view"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Cycle       string    `json:"cycle"`
}

// Hub fans notices out to every subscriber. A subscriber that is not keeping
// up loses notices instead of stalling the refresh loop.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Notice]struct{}
	dropped     int64
}

func NewHub() *Hub {
	return &Hub{subscribers: map[chan Notice]struct{}{}}
}

// Subscribe returns a buffered channel of notices and a cancel func that
// removes and closes it.
func (h *Hub) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the total number of notices dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Publish delivers n to every subscriber without blocking.
func (h *Hub) Publish(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			h.dropped++
			slog.Debug("hub: dropped notice for slow subscriber", "view", n.View, "dropped_total", h.dropped)
		}
	}
}
