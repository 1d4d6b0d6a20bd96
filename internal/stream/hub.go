// Package stream distributes refresh notifications between dashboard components.
package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-dashboard/internal/models"
)

// EventKind identifies what changed.
type EventKind string

const (
	ChainRefreshed     EventKind = "chain_refreshed"
	PositionsRefreshed EventKind = "positions_refreshed"
	OrderPlaced        EventKind = "order_placed"
	PositionsClosed    EventKind = "positions_closed"
)

// Event is a notification that some shared data has been updated.
type Event struct {
	Kind       EventKind
	Underlying models.Underlying
	At         time.Time
	// Stale is set when a refresh failed and the previous data was kept.
	Stale bool
	Err   error
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize: 16,
	}
}

// Hub fans events out to registered consumers and channel subscribers.
//
// Consumers are called synchronously, in registration order, before Publish
// returns. A publisher that finishes a refresh and then publishes therefore
// knows every consumer has seen it before the publisher's next cycle starts.
// Channel subscribers get a non-blocking send and may miss events when slow.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[EventKind][]*Subscriber
	closed      bool

	consumersMu sync.RWMutex
	consumers   []Consumer

	metricsMu sync.RWMutex
	published uint64
	delivered uint64
	dropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.SubscriberBufferSize < 1 {
		config.SubscriberBufferSize = 1
	}
	return &Hub{
		config:      config,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[EventKind][]*Subscriber),
	}
}

// Close closes all subscriber channels. Consumers stay registered but
// Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for kind, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, kind)
	}
}

// Subscribe returns a channel receiving events of the given kinds.
func (h *Hub) Subscribe(kinds ...EventKind) <-chan Event {
	return h.SubscribeWithID("", kinds...)
}

// SubscribeWithID is Subscribe with an identifier for diagnostics.
func (h *Hub) SubscribeWithID(id string, kinds ...EventKind) <-chan Event {
	ch := make(chan Event, h.config.SubscriberBufferSize)
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
	for _, k := range kinds {
		h.subscribers[k] = append(h.subscribers[k], sub)
	}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var found *Subscriber
	for kind, subs := range h.subscribers {
		for i, sub := range subs {
			if sub.Channel == ch {
				found = sub
				h.subscribers[kind] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[kind]) == 0 {
			delete(h.subscribers, kind)
		}
	}
	if found != nil {
		close(found.Channel)
	}
}

// Publish delivers ev to consumers, then to channel subscribers.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return
	}

	h.metricsMu.Lock()
	h.published++
	h.metricsMu.Unlock()

	h.notifyConsumers(ev)
	h.broadcast(ev)
}

// broadcast uses non-blocking sends to prevent slow subscribers from
// blocking the publisher. The read lock is held across sends so channels
// cannot be closed underneath it.
func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, sub := range h.subscribers[ev.Kind] {
		select {
		case sub.Channel <- ev:
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
		default:
			h.metricsMu.Lock()
			sub.DroppedCount++
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// GetSubscriberCount returns the number of subscribers for a kind.
func (h *Hub) GetSubscriberCount(kind EventKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[kind])
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	h.consumersMu.RLock()
	consumers := len(h.consumers)
	h.consumersMu.RUnlock()

	return HubMetrics{
		Published: h.published,
		Delivered: h.delivered,
		Dropped:   h.dropped,
		Consumers: consumers,
	}
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
	Consumers int
}

// Consumer receives events synchronously.
type Consumer interface {
	// OnEvent is called for each matching event.
	OnEvent(ev Event)
	// Kinds returns the event kinds this consumer wants.
	// Return nil or empty slice to receive all events.
	Kinds() []EventKind
}

// RegisterConsumer adds a consumer.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// UnregisterConsumer removes a consumer.
func (h *Hub) UnregisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	for i, c := range h.consumers {
		if c == consumer {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			break
		}
	}
}

func (h *Hub) notifyConsumers(ev Event) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		kinds := consumer.Kinds()
		if len(kinds) == 0 || containsKind(kinds, ev.Kind) {
			h.deliver(consumer, ev)
		}
	}
}

// deliver isolates the publisher from a panicking consumer.
func (h *Hub) deliver(consumer Consumer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("kind", string(ev.Kind)).Msg("Consumer panicked")
		}
	}()
	consumer.OnEvent(ev)
}

func containsKind(kinds []EventKind, kind EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ConsumerFunc is a function adapter for the Consumer interface.
type ConsumerFunc struct {
	kinds   []EventKind
	onEvent func(Event)
}

// NewConsumerFunc creates a new ConsumerFunc.
func NewConsumerFunc(onEvent func(Event), kinds ...EventKind) *ConsumerFunc {
	return &ConsumerFunc{
		kinds:   kinds,
		onEvent: onEvent,
	}
}

// OnEvent implements Consumer.
func (c *ConsumerFunc) OnEvent(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// Kinds implements Consumer.
func (c *ConsumerFunc) Kinds() []EventKind {
	return c.kinds
}
