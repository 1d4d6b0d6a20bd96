package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
)

// ltpBatch is the most instruments Kite accepts in one LTP call.
const ltpBatch = 500

// ZerodhaBroker implements Broker on Kite Connect.
type ZerodhaBroker struct {
	client   *kiteconnect.Client
	now      func() time.Time
	cacheTTL time.Duration

	mu          sync.RWMutex
	instruments map[models.Exchange]instrumentSet
}

type instrumentSet struct {
	loadedAt time.Time
	items    kiteconnect.Instruments
}

// ZerodhaConfig holds configuration for Zerodha broker.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
	// BaseURI overrides the Kite API root, for tests.
	BaseURI string
}

// NewZerodhaBroker creates a Kite broker. The access token is obtained
// out of band through the Kite login flow.
func NewZerodhaBroker(cfg ZerodhaConfig) (*ZerodhaBroker, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: kite api_key and access_token are required", errors.ErrNotAuthenticated)
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	if cfg.BaseURI != "" {
		client.SetBaseURI(cfg.BaseURI)
	}
	return &ZerodhaBroker{
		client:      client,
		now:         time.Now,
		cacheTTL:    6 * time.Hour,
		instruments: make(map[models.Exchange]instrumentSet),
	}, nil
}

// Name returns the broker name.
func (z *ZerodhaBroker) Name() string {
	return "kite"
}

// Spot fetches the index level.
func (z *ZerodhaBroker) Spot(ctx context.Context, u models.Underlying) (float64, error) {
	key := u.Contract().SpotSymbol
	if key == "" {
		return 0, errors.Wrapf(errors.ErrUnknownUnderlying, "%s", u)
	}
	ltp, err := z.client.GetLTP(key)
	if err != nil {
		return 0, errors.NewBrokerError("QUOTE_FAILED", "failed to get spot price", err)
	}
	q, ok := ltp[key]
	if !ok {
		return 0, errors.NewBrokerError("QUOTE_MISSING", "no quote for "+key, nil)
	}
	return q.LastPrice, nil
}

// Expiry returns the nearest listed option expiry for u.
func (z *ZerodhaBroker) Expiry(ctx context.Context, u models.Underlying) (time.Time, error) {
	items, err := z.loadInstruments(u.Contract().Exchange)
	if err != nil {
		return time.Time{}, err
	}

	y, m, d := z.now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var nearest time.Time
	for _, inst := range items {
		if !isOption(inst, u) {
			continue
		}
		ey, em, ed := inst.Expiry.Time.Date()
		exp := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
		if exp.Before(today) {
			continue
		}
		if nearest.IsZero() || exp.Before(nearest) {
			nearest = exp
		}
	}
	if nearest.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no options found for %s", errors.ErrNoChainData, u)
	}
	return nearest, nil
}

// ChainQuotes fetches CE and PE prices at the requested strikes. Strikes
// with no listed contract are left out.
func (z *ZerodhaBroker) ChainQuotes(ctx context.Context, u models.Underlying, expiry time.Time, strikes []int) ([]models.ChainRow, error) {
	exchange := u.Contract().Exchange
	items, err := z.loadInstruments(exchange)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int]bool, len(strikes))
	for _, k := range strikes {
		wanted[k] = true
	}

	type leg struct {
		strike int
		typ    string
	}
	legs := make(map[string]leg)
	var keys []string
	for _, inst := range items {
		if !isOption(inst, u) || !sameDay(inst.Expiry.Time, expiry) {
			continue
		}
		k := int(inst.StrikePrice)
		if !wanted[k] {
			continue
		}
		key := string(exchange) + ":" + inst.Tradingsymbol
		legs[key] = leg{strike: k, typ: inst.InstrumentType}
		keys = append(keys, key)
	}

	prices, err := z.ltp(keys)
	if err != nil {
		return nil, err
	}

	rows := make(map[int]*models.ChainRow)
	for key, l := range legs {
		row, ok := rows[l.strike]
		if !ok {
			row = &models.ChainRow{Strike: float64(l.strike)}
			rows[l.strike] = row
		}
		p, ok := prices[key]
		if !ok {
			continue
		}
		if l.typ == "CE" {
			row.CE = &p
		} else {
			row.PE = &p
		}
	}

	out := make([]models.ChainRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out, nil
}

// LTP fetches last traded prices keyed by bare trading symbol.
func (z *ZerodhaBroker) LTP(ctx context.Context, symbols []string) (map[string]float64, error) {
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = string(ExchangeOf(s)) + ":" + s
	}
	prices, err := z.ltp(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(prices))
	for i, s := range symbols {
		if p, ok := prices[keys[i]]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (z *ZerodhaBroker) ltp(keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	for start := 0; start < len(keys); start += ltpBatch {
		end := min(start+ltpBatch, len(keys))
		quotes, err := z.client.GetLTP(keys[start:end]...)
		if err != nil {
			return nil, errors.NewBrokerError("QUOTE_FAILED", "failed to get ltp", err)
		}
		for k, q := range quotes {
			out[k] = q.LastPrice
		}
	}
	return out, nil
}

// PlaceOrder places a NRML market order and reads back the average fill.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, order OrderRequest) (*Fill, error) {
	params := kiteconnect.OrderParams{
		Exchange:        string(ExchangeOf(order.TradingSymbol)),
		Tradingsymbol:   order.TradingSymbol,
		TransactionType: string(order.Side),
		OrderType:       kiteconnect.OrderTypeMarket,
		Product:         kiteconnect.ProductNRML,
		Quantity:        order.Quantity,
		Validity:        kiteconnect.ValidityDay,
		Tag:             order.Tag,
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, errors.NewBrokerError("ORDER_FAILED", "failed to place order", errors.Join(errors.ErrOrderRejected, err))
	}

	fill := &Fill{OrderID: resp.OrderID, FilledAt: z.now()}
	history, err := z.client.GetOrderHistory(resp.OrderID)
	if err == nil && len(history) > 0 {
		last := history[len(history)-1]
		fill.AveragePrice = last.AveragePrice
		if !last.ExchangeTimestamp.Time.IsZero() {
			fill.FilledAt = last.ExchangeTimestamp.Time
		}
	}
	return fill, nil
}

func (z *ZerodhaBroker) loadInstruments(exchange models.Exchange) (kiteconnect.Instruments, error) {
	z.mu.RLock()
	set, ok := z.instruments[exchange]
	z.mu.RUnlock()
	if ok && z.now().Sub(set.loadedAt) < z.cacheTTL {
		return set.items, nil
	}

	items, err := z.client.GetInstrumentsByExchange(string(exchange))
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS_FAILED", "failed to get instruments", err)
	}

	z.mu.Lock()
	z.instruments[exchange] = instrumentSet{loadedAt: z.now(), items: items}
	z.mu.Unlock()
	return items, nil
}

func isOption(inst kiteconnect.Instrument, u models.Underlying) bool {
	return inst.Name == string(u) && (inst.InstrumentType == "CE" || inst.InstrumentType == "PE")
}

func sameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

var _ Broker = (*ZerodhaBroker)(nil)
