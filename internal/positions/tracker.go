// Package positions keeps the user's open option positions in sync with the
// backend and routes square-off requests through it.
package positions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/payoff"
	"options-dashboard/internal/stream"
	"options-dashboard/internal/tracing"
)

// Source is the backend surface the tracker needs.
type Source interface {
	Positions(ctx context.Context) (*models.PositionsData, error)
	SquareOff(ctx context.Context, id models.TradeID) (*models.SquareOffResponse, error)
	ExitAll(ctx context.Context) (*models.StatusResponse, error)
	ExitSelected(ctx context.Context, ids []models.TradeID) (*models.StatusResponse, error)
}

// Snapshot is the last known state of the user's positions.
type Snapshot struct {
	Positions []models.Position
	TotalPnL  float64
	UpdatedAt time.Time
	// Err is the error of the latest refresh. Positions still hold the
	// last good data when it is set.
	Err error
}

// Options configures a Tracker.
type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// DefaultOptions returns the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		PollInterval: 3 * time.Minute,
		FetchTimeout: 15 * time.Second,
	}
}

// Tracker polls the backend for positions.
type Tracker struct {
	opts   Options
	src    Source
	memo   *payoff.Memo
	hub    *stream.Hub
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	snap Snapshot

	schedMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTracker creates a tracker. hub may be nil.
func NewTracker(opts Options, src Source, engine *payoff.Engine, hub *stream.Hub, logger zerolog.Logger) *Tracker {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	return &Tracker{
		opts:   opts,
		src:    src,
		memo:   payoff.NewMemo(engine),
		hub:    hub,
		logger: logging.WithComponent(logger, "positions"),
		now:    time.Now,
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	s.Positions = append([]models.Position(nil), t.snap.Positions...)
	return s
}

// Find returns the open position with the given trade id.
func (t *Tracker) Find(id models.TradeID) (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.snap.Positions {
		if p.TradeID == id {
			return p, true
		}
	}
	return models.Position{}, false
}

// Payoff returns the payoff of the current positions. Repeated calls on
// an unchanged snapshot are served from cache.
func (t *Tracker) Payoff() payoff.Result {
	return t.memo.Compute(t.Snapshot().Positions)
}

// Refresh fetches positions. On failure the previous positions are kept
// and the error is recorded on the snapshot.
func (t *Tracker) Refresh(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "positions.refresh")
	defer func() { tracing.End(span, err) }()

	start := t.now()
	data, err := t.src.Positions(ctx)

	t.mu.Lock()
	if err == nil {
		t.snap = Snapshot{Positions: data.Net, TotalPnL: data.TotalPnL, UpdatedAt: t.now()}
	} else {
		t.snap.Err = err
	}
	count := len(t.snap.Positions)
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn().Err(err).Msg("Positions refresh failed, keeping previous data")
	} else {
		t.logger.Debug().
			Int("positions", count).
			Dur("duration", t.now().Sub(start)).
			Msg("Positions refreshed")
	}

	t.publish(stream.Event{Kind: stream.PositionsRefreshed, At: t.now(), Stale: err != nil, Err: err})
	return err
}

// SquareOff closes one trade and refreshes.
func (t *Tracker) SquareOff(ctx context.Context, id models.TradeID) (*models.SquareOffResponse, error) {
	resp, err := t.src.SquareOff(ctx, id)
	if err != nil {
		return nil, err
	}
	t.logger.Info().
		Str("trade_id", string(id)).
		Float64("exit_price", resp.ExitPrice).
		Float64("pnl", resp.PnL).
		Msg("Trade squared off")
	t.afterExit(ctx)
	return resp, nil
}

// ExitAll closes every open trade and refreshes.
func (t *Tracker) ExitAll(ctx context.Context) (*models.StatusResponse, error) {
	resp, err := t.src.ExitAll(ctx)
	if err != nil {
		return nil, err
	}
	t.logger.Info().Int("closed", resp.Closed).Int("failed", resp.Failed).Msg("Exited all positions")
	t.afterExit(ctx)
	return resp, nil
}

// ExitSelected closes the given trades and refreshes.
func (t *Tracker) ExitSelected(ctx context.Context, ids []models.TradeID) (*models.StatusResponse, error) {
	resp, err := t.src.ExitSelected(ctx, ids)
	if err != nil {
		return nil, err
	}
	t.logger.Info().Int("requested", len(ids)).Int("closed", resp.Closed).Msg("Exited selected positions")
	t.afterExit(ctx)
	return resp, nil
}

func (t *Tracker) afterExit(ctx context.Context) {
	t.publish(stream.Event{Kind: stream.PositionsClosed, At: t.now()})
	// The exit itself succeeded; a failed refresh only leaves the
	// snapshot stale until the next poll.
	_ = t.Refresh(ctx)
}

// Start begins polling in the background. Calling Start twice is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)

	t.logger.Info().Dur("interval", t.opts.PollInterval).Msg("Position polling started")
}

// Stop ends polling. An in-flight refresh completes.
func (t *Tracker) Stop() {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	t.logger.Info().Msg("Position polling stopped")
}

// Done is closed once the polling goroutine has exited.
func (t *Tracker) Done() <-chan struct{} {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	return t.done
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	t.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tracker) poll(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.FetchTimeout)
	defer cancel()
	_ = t.Refresh(fetchCtx)
}

func (t *Tracker) publish(ev stream.Event) {
	if t.hub != nil {
		t.hub.Publish(ev)
	}
}
