// Package realtime fans build progress events out to any number of
// listeners, such as websocket sessions.
//
// Delivery is best effort: every listener owns a buffered channel and an
// event that does not fit in a full buffer is dropped for that listener only,
// so a slow client never stalls a build. There is no persistence or replay;
// clients that connect mid-build start receiving events from that point on.
package realtime

import (
	"sync"

	"github.com/rubiojr/zipindex/pkg/catalog"
)

// Hub is an in-memory fan-out dispatcher for catalog events.
// It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan catalog.Event
	nextID    uint64
	bufSize   int
	closed    bool
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 64 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{
		listeners: make(map[uint64]chan catalog.Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener and returns its id and receive channel. The
// channel is closed by Unregister or Close.
func (h *Hub) Register() (uint64, <-chan catalog.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan catalog.Event, h.bufSize)
	if h.closed {
		close(ch)
		return id, ch
	}
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener with the given id and closes its channel.
// Unknown ids are ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers e to every registered listener. Its signature matches
// catalog.WithProgress.
func (h *Hub) Broadcast(e catalog.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- e:
		default:
			// Drop for slow listener.
		}
	}
}

// Size returns the number of active listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close unregisters every listener. Later registrations receive an already
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.listeners {
		delete(h.listeners, id)
		close(ch)
	}
}
