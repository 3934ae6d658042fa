// Package stream fans out engine state updates to observers: the
// WebSocket surface and any in-process consumers.
package stream

import (
	"sync"
	"time"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// Update is one engine cycle's observable state.
type Update struct {
	At         time.Time     `json:"timestamp"`
	Mode       string        `json:"mode"`
	Channel    string        `json:"execution_mode"`
	Spot       *models.Spot  `json:"spot,omitempty"`
	VIX        float64       `json:"vix"`
	ATMStrike  int           `json:"atm_strike"`
	Trade      *models.Trade `json:"active_trade,omitempty"`
	MinHold    bool          `json:"within_min_hold,omitempty"`
	TradesDone int           `json:"trades_today"`
	DailyPnL   float64       `json:"daily_pnl"`
	SessionMTM float64       `json:"session_mtm"`
	PeakMTM    float64       `json:"peak_session_mtm"`
	Orphan     bool          `json:"orphan_pending"`
	Warnings   []string      `json:"reversal_warnings,omitempty"`
}

// HubConfig holds configuration for the hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the consecutive-drop count after
	// which a subscriber is considered stuck and removed.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      16,
		SlowConsumerDropThreshold: 50,
	}
}

// Subscriber is one update consumer with its delivery channel.
type Subscriber struct {
	ID           string
	Channel      chan Update
	DroppedCount int
	CreatedAt    time.Time
}

// Hub distributes state updates to subscribers. Sends never block:
// a subscriber that cannot keep up loses updates, and one that stays
// stuck past the drop threshold is evicted.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers []*Subscriber
	closed      bool

	metricsMu sync.RWMutex
	published uint64
	delivered uint64
	dropped   uint64
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{config: config}
}

// Subscribe registers a consumer and returns its update channel.
func (h *Hub) Subscribe(id string) <-chan Update {
	ch := make(chan Update, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers = append(h.subscribers, sub)
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(ch <-chan Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subscribers {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers an update to every subscriber without blocking and
// returns how many subscribers missed it.
func (h *Hub) Publish(u Update) int {
	h.metricsMu.Lock()
	h.published++
	h.metricsMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	drops := 0
	kept := h.subscribers[:0]
	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- u:
			sub.DroppedCount = 0
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
			kept = append(kept, sub)
		default:
			drops++
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
			if sub.DroppedCount >= h.config.SlowConsumerDropThreshold {
				close(sub.Channel)
				continue
			}
			kept = append(kept, sub)
		}
	}
	h.subscribers = kept
	return drops
}

// Close shuts the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subscribers {
		close(sub.Channel)
	}
	h.subscribers = nil
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Metrics contains hub delivery counters.
type Metrics struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// GetMetrics returns hub delivery counters.
func (h *Hub) GetMetrics() Metrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()
	return Metrics{
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: h.SubscriberCount(),
	}
}
