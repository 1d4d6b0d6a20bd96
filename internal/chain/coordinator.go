package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/stream"
	"options-dashboard/internal/tracing"
)

// Fetcher retrieves the current option chain for an underlying.
type Fetcher interface {
	OptionChain(ctx context.Context, u models.Underlying) (*models.OptionChain, error)
}

// Options configures a Coordinator.
type Options struct {
	Underlyings     []models.Underlying
	Default         models.Underlying
	TTL             time.Duration
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Concurrency     int
	Clock           Clock
}

// DefaultOptions returns the stock refresh policy.
func DefaultOptions() Options {
	return Options{
		Underlyings:     models.AllUnderlyings,
		Default:         models.NIFTY,
		TTL:             60 * time.Second,
		RefreshInterval: 60 * time.Second,
		FetchTimeout:    15 * time.Second,
		Concurrency:     4,
	}
}

// Coordinator owns the chain cache and is the only writer to it.
type Coordinator struct {
	opts    Options
	cache   *Cache
	fetcher Fetcher
	hub     *stream.Hub
	logger  zerolog.Logger

	selMu    sync.RWMutex
	selected models.Underlying

	loading atomic.Int32

	errMu sync.RWMutex
	errs  map[models.Underlying]error

	schedMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCoordinator creates a coordinator. hub may be nil.
func NewCoordinator(opts Options, fetcher Fetcher, hub *stream.Hub, logger zerolog.Logger) *Coordinator {
	def := DefaultOptions()
	if len(opts.Underlyings) == 0 {
		opts.Underlyings = def.Underlyings
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if !opts.Default.Valid() {
		opts.Default = opts.Underlyings[0]
	}

	return &Coordinator{
		opts:     opts,
		cache:    NewCache(opts.TTL, opts.Clock),
		fetcher:  fetcher,
		hub:      hub,
		logger:   logging.WithComponent(logger, "chain"),
		selected: opts.Default,
		errs:     make(map[models.Underlying]error),
	}
}

// Cache exposes the cache for readers.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// Underlyings returns the indices refreshed by RefreshAll.
func (c *Coordinator) Underlyings() []models.Underlying {
	return append([]models.Underlying(nil), c.opts.Underlyings...)
}

// Refresh updates the cached chain for u.
//
// Without force, a fresh non-empty entry is a cache hit and no fetch is made.
// A failed fetch keeps the previous entry and returns nil; only when there is
// nothing to fall back to is a *errors.FetchError returned.
func (c *Coordinator) Refresh(ctx context.Context, u models.Underlying, force bool) error {
	start := time.Now()
	log := logging.WithUnderlying(c.logger, string(u))

	if !force {
		if e, ok := c.cache.Fresh(u); ok {
			logging.LogRefresh(log, string(u), true, len(e.Chain.Data), time.Since(start))
			return nil
		}
	}

	ctx, span := tracing.StartSpan(ctx, "chain.refresh",
		attribute.String("underlying", string(u)),
		attribute.Bool("force", force),
	)
	chain, err := c.fetch(ctx, u)
	tracing.End(span, err)

	if err != nil {
		c.setError(u, err)
		if prev, ok := c.cache.Get(u); ok {
			log.Warn().Err(err).
				Time("kept_from", prev.RefreshedAt).
				Msg("Option chain refresh failed, serving stale data")
			c.publish(stream.Event{Kind: stream.ChainRefreshed, Underlying: u, Stale: true, Err: err})
			return nil
		}
		fe := errors.NewFetchError(string(u), err)
		log.Error().Err(err).Msg("Option chain refresh failed with no cached data")
		c.publish(stream.Event{Kind: stream.ChainRefreshed, Underlying: u, Err: fe})
		return fe
	}

	c.cache.Put(u, *chain)
	c.setError(u, nil)
	logging.LogRefresh(log, string(u), false, len(chain.Data), time.Since(start))
	c.publish(stream.Event{Kind: stream.ChainRefreshed, Underlying: u})
	return nil
}

func (c *Coordinator) fetch(ctx context.Context, u models.Underlying) (*models.OptionChain, error) {
	chain, err := c.fetcher.OptionChain(ctx, u)
	if err != nil {
		return nil, err
	}
	if chain == nil || len(chain.Data) == 0 {
		if chain != nil && chain.Error != "" {
			return nil, fmt.Errorf("%w: %s", errors.ErrNoChainData, chain.Error)
		}
		return nil, errors.ErrNoChainData
	}
	return chain, nil
}

// RefreshAll refreshes every configured underlying concurrently. A failure
// for one underlying does not affect the others; the returned error joins
// the per-underlying failures and is meant for logging.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(c.opts.Concurrency)

	for _, u := range c.opts.Underlyings {
		u := u
		g.Go(func() error {
			if err := c.Refresh(ctx, u, false); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Start runs RefreshAll immediately and then every RefreshInterval until
// Stop is called or ctx is done. Calling Start twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)

	c.logger.Info().
		Dur("interval", c.opts.RefreshInterval).
		Int("underlyings", len(c.opts.Underlyings)).
		Msg("Option chain scheduler started")
}

// Stop releases the scheduler's timer and returns without waiting.
//
// A refresh cycle already in flight is not aborted: its fetches run on a
// context detached from the scheduler and may still write to the cache after
// Stop returns. Whichever fetch completes last wins. Quotes are idempotent
// and short-lived, so this race is accepted rather than guarded against.
func (c *Coordinator) Stop() {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.logger.Info().Msg("Option chain scheduler stopped")
}

// Done is closed once the scheduler goroutine has exited. It is nil if
// Start was never called.
func (c *Coordinator) Done() <-chan struct{} {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	return c.done
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	c.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *Coordinator) cycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
	defer cancel()

	if err := c.RefreshAll(fetchCtx); err != nil {
		c.logger.Warn().Err(err).Msg("Scheduled refresh had failures")
	}
}

// Select changes the underlying targeted by ManualRefresh.
func (c *Coordinator) Select(u models.Underlying) error {
	for _, known := range c.opts.Underlyings {
		if known == u {
			c.selMu.Lock()
			c.selected = u
			c.selMu.Unlock()
			return nil
		}
	}
	return errors.Wrapf(errors.ErrUnknownUnderlying, "%s is not configured", u)
}

// Selected returns the underlying currently shown.
func (c *Coordinator) Selected() models.Underlying {
	c.selMu.RLock()
	defer c.selMu.RUnlock()
	return c.selected
}

// ManualRefresh force-refreshes the selected underlying only. Loading
// reports true for the duration of the fetch.
func (c *Coordinator) ManualRefresh(ctx context.Context) error {
	u := c.Selected()

	c.loading.Add(1)
	defer c.loading.Add(-1)

	return c.Refresh(ctx, u, true)
}

// Loading reports whether a manual refresh is in progress.
func (c *Coordinator) Loading() bool {
	return c.loading.Load() > 0
}

// LastError returns the most recent refresh error for u, or nil if the
// last refresh succeeded.
func (c *Coordinator) LastError(u models.Underlying) error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.errs[u]
}

func (c *Coordinator) setError(u models.Underlying, err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if err == nil {
		delete(c.errs, u)
		return
	}
	c.errs[u] = err
}

// View is what a presenter needs to draw one underlying's chain.
type View struct {
	Underlying models.Underlying
	Entry      *Entry
	State      State
	Err        error
	Loading    bool
}

// View returns the current display state for u.
func (c *Coordinator) View(u models.Underlying) View {
	e, _ := c.cache.Get(u)
	return View{
		Underlying: u,
		Entry:      e,
		State:      c.cache.State(u),
		Err:        c.LastError(u),
		Loading:    c.Loading() && c.Selected() == u,
	}
}

func (c *Coordinator) publish(ev stream.Event) {
	if c.hub != nil {
		c.hub.Publish(ev)
	}
}
