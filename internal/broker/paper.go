package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
	"options-dashboard/internal/pricing"
	"options-dashboard/internal/symbol"
	"options-dashboard/pkg/utils"
)

// PaperBroker simulates an index options market. Premiums come from
// Black-Scholes on a configurable spot; market orders fill at model price.
type PaperBroker struct {
	volatility float64
	rate       float64
	now        func() time.Time

	mu     sync.RWMutex
	spots  map[models.Underlying]float64
	orders map[string]PaperOrder
	seq    []string
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	Spots        map[models.Underlying]float64
	Volatility   float64
	RiskFreeRate float64
	Now          func() time.Time
}

// PaperOrder is a simulated order kept for inspection.
type PaperOrder struct {
	OrderRequest
	Fill
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	vol := cfg.Volatility
	if vol <= 0 {
		vol = 0.14
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	spots := make(map[models.Underlying]float64)
	for _, u := range models.AllUnderlyings {
		spots[u] = u.Contract().DefaultSpot
	}
	for u, s := range cfg.Spots {
		if s > 0 {
			spots[u] = s
		}
	}

	return &PaperBroker{
		volatility: vol,
		rate:       cfg.RiskFreeRate,
		now:        now,
		spots:      spots,
		orders:     make(map[string]PaperOrder),
	}
}

// Name returns the broker name.
func (p *PaperBroker) Name() string {
	return "paper"
}

// SetSpot moves the simulated index level.
func (p *PaperBroker) SetSpot(u models.Underlying, spot float64) {
	p.mu.Lock()
	p.spots[u] = spot
	p.mu.Unlock()
}

// Spot returns the simulated index level.
func (p *PaperBroker) Spot(ctx context.Context, u models.Underlying) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.spots[u]
	if !ok {
		return 0, errors.Wrapf(errors.ErrUnknownUnderlying, "%s", u)
	}
	return s, nil
}

// Expiry returns the next weekly expiry. The current day counts until the
// 15:30 IST close.
func (p *PaperBroker) Expiry(ctx context.Context, u models.Underlying) (time.Time, error) {
	if !u.Valid() {
		return time.Time{}, errors.Wrapf(errors.ErrUnknownUnderlying, "%s", u)
	}
	return nextExpiry(p.now(), ExpiryWeekday(u)), nil
}

func nextExpiry(now time.Time, weekday time.Weekday) time.Time {
	local := now.In(utils.IndiaLocation)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	ahead := (int(weekday) - int(local.Weekday()) + 7) % 7
	if ahead == 0 && utils.AfterClose(local) {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

// ChainQuotes prices CE and PE at each strike.
func (p *PaperBroker) ChainQuotes(ctx context.Context, u models.Underlying, expiry time.Time, strikes []int) ([]models.ChainRow, error) {
	spot, err := p.Spot(ctx, u)
	if err != nil {
		return nil, err
	}
	years := pricing.YearsToExpiry(p.now(), expiry)

	sorted := append([]int(nil), strikes...)
	sort.Ints(sorted)

	rows := make([]models.ChainRow, 0, len(sorted))
	for _, k := range sorted {
		ce := p.price(models.Call, spot, k, years)
		pe := p.price(models.Put, spot, k, years)
		rows = append(rows, models.ChainRow{Strike: float64(k), CE: &ce, PE: &pe})
	}
	return rows, nil
}

// LTP prices each trading symbol. Symbols that do not parse are omitted.
func (p *PaperBroker) LTP(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		v, err := p.quote(s)
		if err != nil {
			continue
		}
		out[s] = v
	}
	return out, nil
}

func (p *PaperBroker) quote(tradingSymbol string) (float64, error) {
	terms, err := symbol.Parse(tradingSymbol)
	if err != nil {
		return 0, err
	}
	expiry, err := symbol.ExpiryDate(terms.Expiry, ExpiryWeekday(terms.Underlying))
	if err != nil {
		return 0, errors.NewParseError(tradingSymbol, err.Error())
	}
	spot, err := p.Spot(context.Background(), terms.Underlying)
	if err != nil {
		return 0, err
	}
	return p.price(terms.Type, spot, terms.Strike, pricing.YearsToExpiry(p.now(), expiry)), nil
}

func (p *PaperBroker) price(t models.OptionType, spot float64, strike int, years float64) float64 {
	return pricing.RoundTick(pricing.Price(t, spot, float64(strike), years, p.rate, p.volatility))
}

// PlaceOrder fills a market order at the current model price.
func (p *PaperBroker) PlaceOrder(ctx context.Context, order OrderRequest) (*Fill, error) {
	if order.Quantity <= 0 {
		return nil, errors.NewBrokerError("INVALID_QTY", fmt.Sprintf("quantity %d", order.Quantity), errors.ErrInvalidOrder)
	}
	if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
		return nil, errors.NewBrokerError("INVALID_SIDE", string(order.Side), errors.ErrInvalidOrder)
	}
	price, err := p.quote(order.TradingSymbol)
	if err != nil {
		return nil, errors.NewBrokerError("UNKNOWN_INSTRUMENT", order.TradingSymbol, err)
	}

	fill := Fill{
		OrderID:      uuid.NewString(),
		AveragePrice: price,
		FilledAt:     p.now(),
	}

	p.mu.Lock()
	p.orders[fill.OrderID] = PaperOrder{OrderRequest: order, Fill: fill}
	p.seq = append(p.seq, fill.OrderID)
	p.mu.Unlock()

	return &fill, nil
}

// Orders returns the simulated orders in placement order.
func (p *PaperBroker) Orders() []PaperOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PaperOrder, 0, len(p.seq))
	for _, id := range p.seq {
		out = append(out, p.orders[id])
	}
	return out
}

var _ Broker = (*PaperBroker)(nil)
