// Package ws pushes reconciliation run reports to websocket subscribers.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"pendle-watch/internal/reconcile"
)

// Hub fans run reports out to connected subscribers. Slow subscribers are
// dropped rather than allowed to block a broadcast.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      *log.Logger
}

type subscriber struct {
	send chan []byte
}

// subscriberBuffer bounds how many undelivered messages a connection may
// lag behind before it is dropped.
const subscriberBuffer = 8

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger,
	}
}

func (h *Hub) add() *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

type runMessage struct {
	Type   string            `json:"type"`
	Report *reconcile.Report `json:"report"`
}

// BroadcastReport sends a run report to every subscriber.
func (h *Hub) BroadcastReport(report *reconcile.Report) {
	payload, err := json.Marshal(runMessage{Type: "run_report", Report: report})
	if err != nil {
		h.logger.Printf("marshal run report: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			// Subscriber cannot keep up; disconnect it.
			delete(h.subscribers, sub)
			close(sub.send)
		}
	}
}
