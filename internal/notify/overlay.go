package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Overlay keeps the last few notifications for the watch screen. It is a
// Channel, so the notifier feeds it like any other destination.
type Overlay struct {
	mu            sync.RWMutex
	notifications []Notification
	maxVisible    int
	ttl           time.Duration
	now           func() time.Time
}

// NewOverlay creates an overlay showing at most maxVisible notifications,
// each for ttl.
func NewOverlay(maxVisible int, ttl time.Duration) *Overlay {
	if maxVisible <= 0 {
		maxVisible = 5
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Overlay{
		notifications: make([]Notification, 0, maxVisible),
		maxVisible:    maxVisible,
		ttl:           ttl,
		now:           time.Now,
	}
}

// Name implements Channel.
func (o *Overlay) Name() string { return "overlay" }

// Send implements Channel.
func (o *Overlay) Send(_ context.Context, n Notification) error {
	o.Add(n)
	return nil
}

// Add adds a notification, expiring old ones first.
func (o *Overlay) Add(n Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n.Timestamp.IsZero() {
		n.Timestamp = o.now()
	}
	o.notifications = append(o.active(o.now()), n)
	if len(o.notifications) > o.maxVisible {
		o.notifications = o.notifications[len(o.notifications)-o.maxVisible:]
	}
}

// Visible returns the notifications that have not expired, oldest first.
func (o *Overlay) Visible() []Notification {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active(o.now())
}

// Clear drops every notification.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = o.notifications[:0]
}

func (o *Overlay) active(now time.Time) []Notification {
	active := make([]Notification, 0, len(o.notifications))
	for _, n := range o.notifications {
		if now.Sub(n.Timestamp) < o.ttl {
			active = append(active, n)
		}
	}
	return active
}

// Format renders one notification as a single line.
func Format(n Notification, layout string) string {
	if layout == "" {
		layout = "15:04:05"
	}
	var indicator string
	switch n.Type {
	case NotificationTrade:
		indicator = "TRADE"
	case NotificationError:
		indicator = "ERROR"
	default:
		indicator = "INFO"
	}

	line := fmt.Sprintf("[%s] %s %s", n.Timestamp.Format(layout), indicator, n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}
	if r := []rune(line); len(r) > 75 {
		line = string(r[:72]) + "..."
	}
	return line
}
