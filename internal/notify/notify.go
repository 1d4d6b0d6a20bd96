// Package notify turns dashboard events into user-facing notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-dashboard/internal/config"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/stream"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade NotificationType = "trade"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// Notification represents a notification message.
type Notification struct {
	Type       NotificationType  `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Underlying models.Underlying `json:"underlying,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Channel delivers notifications somewhere.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// FromEvent maps a hub event to a notification. Routine refreshes that
// succeeded are not worth telling anyone about and report false.
func FromEvent(ev stream.Event) (Notification, bool) {
	n := Notification{Underlying: ev.Underlying, Timestamp: ev.At}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	switch {
	case ev.Err != nil && ev.Kind == stream.ChainRefreshed:
		n.Type = NotificationError
		n.Title = string(ev.Underlying) + " chain refresh failed"
		n.Message = ev.Err.Error()
		if ev.Stale {
			n.Message += " (showing cached data)"
		}
	case ev.Err != nil:
		n.Type = NotificationError
		n.Title = kindTitle(ev.Kind) + " failed"
		n.Message = ev.Err.Error()
	case ev.Kind == stream.OrderPlaced:
		n.Type = NotificationTrade
		n.Title = "Order placed"
		n.Message = string(ev.Underlying)
	case ev.Kind == stream.PositionsClosed:
		n.Type = NotificationTrade
		n.Title = "Positions closed"
	default:
		return Notification{}, false
	}
	return n, true
}

func kindTitle(kind stream.EventKind) string {
	switch kind {
	case stream.PositionsRefreshed:
		return "Positions refresh"
	case stream.OrderPlaced:
		return "Order"
	case stream.PositionsClosed:
		return "Exit"
	}
	return string(kind)
}

// Notifier is a hub consumer that fans notifications out to channels.
//
// The hub calls consumers on the publisher's goroutine, so OnEvent only
// enqueues; a single worker does the delivery. When the queue is full the
// oldest pending notification is dropped.
type Notifier struct {
	level    NotificationLevel
	timeout  time.Duration
	logger   zerolog.Logger
	channels []Channel

	queue chan Notification
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	dropped int
}

// NewNotifier starts a notifier delivering to channels.
func NewNotifier(cfg config.NotifyConfig, logger zerolog.Logger, channels ...Channel) *Notifier {
	level := NotificationLevel(cfg.Level)
	if level == "" {
		level = LevelAll
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 32
	}
	timeout := cfg.Webhook.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	n := &Notifier{
		level:    level,
		timeout:  timeout,
		logger:   logging.WithComponent(logger, "notify"),
		channels: channels,
		queue:    make(chan Notification, size),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

// Kinds implements stream.Consumer.
func (n *Notifier) Kinds() []stream.EventKind { return nil }

// OnEvent implements stream.Consumer.
func (n *Notifier) OnEvent(ev stream.Event) {
	if notification, ok := FromEvent(ev); ok {
		n.Notify(notification)
	}
}

// Notify queues a notification if the level filter lets it through.
func (n *Notifier) Notify(notification Notification) {
	if !n.shouldSend(notification.Type) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	select {
	case <-n.done:
		return
	default:
	}
	for {
		select {
		case n.queue <- notification:
			return
		default:
		}
		select {
		case <-n.queue:
			n.dropped++
		default:
		}
	}
}

// Dropped returns how many notifications were discarded on a full queue.
func (n *Notifier) Dropped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Close delivers what is already queued and stops the worker.
func (n *Notifier) Close() {
	n.once.Do(func() {
		n.mu.Lock()
		close(n.done)
		close(n.queue)
		n.mu.Unlock()
	})
}

func (n *Notifier) shouldSend(t NotificationType) bool {
	switch n.level {
	case LevelTradesOnly:
		return t == NotificationTrade
	case LevelErrorsOnly:
		return t == NotificationError
	default:
		return true
	}
}

func (n *Notifier) run() {
	for notification := range n.queue {
		for _, ch := range n.channels {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			if err := ch.Send(ctx, notification); err != nil {
				n.logger.Warn().Err(err).Str("channel", ch.Name()).Str("title", notification.Title).Msg("Notification not delivered")
			}
			cancel()
		}
	}
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	if n.Underlying != "" {
		payload["underlying"] = n.Underlying
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "optdash/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
