package events

import "sync"

// Hub fans string messages out to subscribers.
//
// A lossy hub drops a message for a subscriber whose buffer is full. A strict
// hub evicts that subscriber instead (its channel is closed), so a reader never
// sees a stream with holes in it.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
	buffer  int
	strict  bool
	onEvict func()
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{}), buffer: 10}
}

func NewStrictHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{clients: make(map[chan string]struct{}), buffer: buffer, strict: true}
}

// OnEvict registers fn to run, under the hub lock, each time a strict hub
// drops a slow subscriber.
func (h *Hub) OnEvict(fn func()) {
	h.mu.Lock()
	h.onEvict = fn
	h.mu.Unlock()
}

func (h *Hub) Subscribe() chan string {
	ch := make(chan string, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe is safe to call for a subscriber the hub already evicted.
func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; !ok {
		return
	}
	delete(h.clients, ch)
	close(ch)
}

func (h *Hub) Publish(evt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			if h.strict {
				delete(h.clients, ch)
				close(ch)
				if h.onEvict != nil {
					h.onEvict()
				}
			}
			// lossy: drop if slow
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
