// Package feed distributes market trade events to subscribers and derives
// prices from them.
package feed

import (
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/market"
)

// Hub is an in-memory per-token publish/subscribe feed. Handlers run on the
// publisher's goroutine, outside the hub lock.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[string]market.TradeHandler
	observers []market.TradeHandler
	logger    *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[string]market.TradeHandler),
		logger: logger.Named("feed"),
	}
}

// Subscribe registers h for token under subscriberID.
func (h *Hub) Subscribe(token, subscriberID string, handler market.TradeHandler) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.subs[token]
	if !ok {
		byID = make(map[string]market.TradeHandler)
		h.subs[token] = byID
	}
	if _, exists := byID[subscriberID]; exists {
		return false
	}
	byID[subscriberID] = handler
	h.logger.Debug("Subscribed", zap.String("token", token), zap.String("subscriberID", subscriberID))
	return true
}

// Unsubscribe removes a registration.
func (h *Hub) Unsubscribe(token, subscriberID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.subs[token]
	if !ok {
		return false
	}
	if _, exists := byID[subscriberID]; !exists {
		return false
	}
	delete(byID, subscriberID)
	if len(byID) == 0 {
		delete(h.subs, token)
	}
	h.logger.Debug("Unsubscribed", zap.String("token", token), zap.String("subscriberID", subscriberID))
	return true
}

// Observe registers a handler that receives every published event.
func (h *Hub) Observe(handler market.TradeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, handler)
}

// Subscribers returns the number of subscribers of token.
func (h *Hub) Subscribers(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[token])
}

// Tokens returns the tokens that have at least one subscriber.
func (h *Hub) Tokens() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.subs))
	for token := range h.subs {
		out = append(out, token)
	}
	return out
}

// Publish delivers ev to the observers and to the subscribers of its token.
func (h *Hub) Publish(ev market.TradeEvent) {
	h.mu.RLock()
	handlers := make([]market.TradeHandler, 0, len(h.observers)+len(h.subs[ev.TokenAddress]))
	handlers = append(handlers, h.observers...)
	for _, handler := range h.subs[ev.TokenAddress] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(ev)
	}
}
