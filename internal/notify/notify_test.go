package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/internal/config"
	"options-dashboard/internal/models"
	"options-dashboard/internal/stream"
)

type recorder struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.fail
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, n := range r.got {
		out[i] = n.Title
	}
	return out
}

func TestFromEvent(t *testing.T) {
	at := time.Date(2024, time.December, 16, 10, 0, 0, 0, time.UTC)

	_, ok := FromEvent(stream.Event{Kind: stream.ChainRefreshed, Underlying: models.NIFTY, At: at})
	assert.False(t, ok, "a successful refresh is routine")
	_, ok = FromEvent(stream.Event{Kind: stream.PositionsRefreshed, At: at})
	assert.False(t, ok)

	n, ok := FromEvent(stream.Event{Kind: stream.ChainRefreshed, Underlying: models.BANKNIFTY, At: at, Stale: true, Err: errors.New("timeout")})
	require.True(t, ok)
	assert.Equal(t, NotificationError, n.Type)
	assert.Equal(t, "BANKNIFTY chain refresh failed", n.Title)
	assert.Equal(t, "timeout (showing cached data)", n.Message)
	assert.Equal(t, at, n.Timestamp)

	n, ok = FromEvent(stream.Event{Kind: stream.PositionsRefreshed, Err: errors.New("backend down")})
	require.True(t, ok)
	assert.Equal(t, "Positions refresh failed", n.Title)
	assert.False(t, n.Timestamp.IsZero())

	n, ok = FromEvent(stream.Event{Kind: stream.OrderPlaced, Underlying: models.NIFTY, At: at})
	require.True(t, ok)
	assert.Equal(t, NotificationTrade, n.Type)
	assert.Equal(t, "Order placed", n.Title)

	n, ok = FromEvent(stream.Event{Kind: stream.PositionsClosed, At: at})
	require.True(t, ok)
	assert.Equal(t, "Positions closed", n.Title)
}

func TestNotifierLevelFilter(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(config.NotifyConfig{Level: string(LevelErrorsOnly)}, zerolog.Nop(), rec)

	n.OnEvent(stream.Event{Kind: stream.OrderPlaced, Underlying: models.NIFTY})
	n.OnEvent(stream.Event{Kind: stream.ChainRefreshed, Underlying: models.NIFTY, Err: errors.New("boom")})
	n.Close()

	assert.Eventually(t, func() bool { return len(rec.titles()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"NIFTY chain refresh failed"}, rec.titles())
}

func TestNotifierAsHubConsumer(t *testing.T) {
	hub := stream.NewHub(zerolog.Nop())
	defer hub.Close()

	rec := &recorder{fail: errors.New("unreachable")}
	overlay := NewOverlay(5, time.Minute)
	n := NewNotifier(config.NotifyConfig{}, zerolog.Nop(), rec, overlay)
	hub.RegisterConsumer(n)

	hub.Publish(stream.Event{Kind: stream.OrderPlaced, Underlying: models.SENSEX, At: time.Now()})
	hub.Publish(stream.Event{Kind: stream.PositionsClosed, At: time.Now()})
	hub.UnregisterConsumer(n)
	hub.Publish(stream.Event{Kind: stream.PositionsClosed, At: time.Now()})

	assert.Eventually(t, func() bool { return len(overlay.Visible()) == 2 }, time.Second, 10*time.Millisecond,
		"a failing channel does not stop the others")
	assert.Equal(t, []string{"Order placed", "Positions closed"}, rec.titles())
	n.Close()
	n.Close()
	n.Notify(Notification{Type: NotificationInfo, Title: "late"})
}

type blocking struct{ release chan struct{} }

func (b *blocking) Name() string { return "blocking" }

func (b *blocking) Send(ctx context.Context, _ Notification) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestNotifierDropsOldestWhenFull(t *testing.T) {
	b := &blocking{release: make(chan struct{})}
	n := NewNotifier(config.NotifyConfig{QueueSize: 2}, zerolog.Nop(), b)

	for i := 0; i < 10; i++ {
		n.Notify(Notification{Type: NotificationTrade, Title: "fill"})
	}
	assert.GreaterOrEqual(t, n.Dropped(), 7)

	close(b.release)
	n.Close()
}

func TestWebhookNotifier(t *testing.T) {
	var (
		mu      sync.Mutex
		payload map[string]interface{}
		agent   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		agent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	at := time.Date(2024, time.December, 16, 10, 0, 0, 0, time.UTC)
	err := w.Send(context.Background(), Notification{
		Type: NotificationTrade, Title: "Order placed", Message: "NIFTY", Underlying: models.NIFTY, Timestamp: at,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "optdash/1.0", agent)
	assert.Equal(t, "trade", payload["type"])
	assert.Equal(t, "Order placed", payload["title"])
	assert.Equal(t, "NIFTY", payload["underlying"])
	assert.Equal(t, "2024-12-16T10:00:00Z", payload["timestamp"])
}

func TestWebhookNotifierRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL})
	err := w.Send(context.Background(), Notification{Title: "x", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestOverlayExpiresAndCaps(t *testing.T) {
	now := time.Date(2024, time.December, 16, 10, 0, 0, 0, time.UTC)
	o := NewOverlay(2, 30*time.Second)
	o.now = func() time.Time { return now }

	o.Add(Notification{Title: "a", Timestamp: now.Add(-time.Minute)})
	o.Add(Notification{Title: "b"})
	o.Add(Notification{Title: "c"})
	o.Add(Notification{Title: "d"})

	visible := o.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "c", visible[0].Title)
	assert.Equal(t, "d", visible[1].Title)

	now = now.Add(31 * time.Second)
	assert.Empty(t, o.Visible())

	o.Add(Notification{Title: "e"})
	o.Clear()
	assert.Empty(t, o.Visible())
}

func TestFormat(t *testing.T) {
	at := time.Date(2024, time.December, 16, 10, 5, 0, 0, time.UTC)
	assert.Equal(t, "[10:05:00] TRADE Order placed: NIFTY",
		Format(Notification{Type: NotificationTrade, Title: "Order placed", Message: "NIFTY", Timestamp: at}, ""))
	assert.Equal(t, "[10:05] ERROR Exit failed",
		Format(Notification{Type: NotificationError, Title: "Exit failed", Timestamp: at}, "15:04"))

	long := Format(Notification{Type: NotificationInfo, Title: "x", Message: string(make([]byte, 100)), Timestamp: at}, "")
	assert.Len(t, []rune(long), 75)
}
