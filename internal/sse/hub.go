// Package sse fans page events out to the browser sessions of interested
// users, keyed by login.
package sse

import "sync"

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) Subscribe(login string) (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if _, ok := h.subs[login]; !ok {
		h.subs[login] = make(map[chan []byte]struct{})
	}
	h.subs[login][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subscribers, ok := h.subs[login]; ok {
			delete(subscribers, ch)
			if len(subscribers) == 0 {
				delete(h.subs, login)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Broadcast delivers the payload to every subscriber of the given logins.
// Slow subscribers drop events rather than blocking the sender.
func (h *Hub) Broadcast(logins []string, payload []byte) {
	if len(logins) == 0 {
		return
	}
	unique := map[string]struct{}{}
	for _, login := range logins {
		if login == "" {
			continue
		}
		unique[login] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for login := range unique {
		for ch := range h.subs[login] {
			select {
			case ch <- payload:
			default:
			}
		}
	}
}
