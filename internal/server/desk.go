package server

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"options-dashboard/internal/broker"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/store"
	"options-dashboard/internal/tracing"
)

// orderTag marks orders sent by the backend in the broker's order book.
const orderTag = "optdash"

// Desk executes backend requests against a broker and the trade store.
type Desk struct {
	broker   broker.Broker
	store    store.TradeStore
	window   int
	lotSize  func(models.Underlying) int
	strategy string
	logger   zerolog.Logger
	now      func() time.Time

	// mu serialises order flow so exits keep their SELL-before-BUY order
	// and a trade cannot be squared off twice concurrently.
	mu sync.Mutex
}

// ExitReport summarises a batch exit.
type ExitReport struct {
	Closed int
	Failed int
	Err    error
}

// NewDesk creates a desk. window is the number of strikes on each side
// of ATM returned by OptionChain.
func NewDesk(b broker.Broker, st store.TradeStore, window int, lotSize func(models.Underlying) int, logger zerolog.Logger) *Desk {
	if window < 1 {
		window = 20
	}
	if lotSize == nil {
		lotSize = func(u models.Underlying) int { return u.Contract().LotSize }
	}
	return &Desk{
		broker:   b,
		store:    st,
		window:   window,
		lotSize:  lotSize,
		strategy: "Custom",
		logger:   logging.WithComponent(logger, "desk"),
		now:      time.Now,
	}
}

// OptionChain quotes window strikes either side of ATM on the nearest expiry.
func (d *Desk) OptionChain(ctx context.Context, u models.Underlying) (*models.OptionChain, error) {
	ctx, span := tracing.StartSpan(ctx, "desk.option_chain")
	var err error
	defer func() { tracing.End(span, err) }()

	if !u.Valid() {
		err = errors.Wrapf(errors.ErrUnknownUnderlying, "%s", u)
		return nil, err
	}

	var spot float64
	var expiry time.Time
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := d.broker.Spot(gctx, u)
		if err != nil {
			return fmt.Errorf("fetching spot price: %w", err)
		}
		spot = s
		return nil
	})
	g.Go(func() error {
		e, err := d.broker.Expiry(gctx, u)
		if err != nil {
			return fmt.Errorf("resolving expiry: %w", err)
		}
		expiry = e
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	step := u.Contract().StrikeStep
	atm := int(math.Round(spot/float64(step))) * step
	strikes := make([]int, 0, 2*d.window+1)
	for k := atm - d.window*step; k <= atm+d.window*step; k += step {
		if k > 0 {
			strikes = append(strikes, k)
		}
	}

	rows, err := d.broker.ChainQuotes(ctx, u, expiry, strikes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		err = fmt.Errorf("%w: no options found for %s", errors.ErrNoChainData, u)
		return nil, err
	}

	return &models.OptionChain{
		Data:      rows,
		Expiry:    expiry.Format("2006-01-02"),
		SpotPrice: spot,
		ATMStrike: float64(atm),
	}, nil
}

// PlaceOrder fills an order on the nearest expiry and records the trade
// under the user's position for that expiry.
func (d *Desk) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResponse, error) {
	u, typ, err := d.validateOrder(&req)
	if err != nil {
		return nil, err
	}

	expiry, err := d.broker.Expiry(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("resolving expiry: %w", err)
	}
	tradingSymbol := broker.ContractSymbol(u, expiry, req.Strike, typ)
	instrument := strings.TrimSuffix(tradingSymbol, strconv.Itoa(req.Strike)+typ.Tag())
	qty := req.Quantity * req.LotSize

	d.mu.Lock()
	defer d.mu.Unlock()

	fill, err := d.broker.PlaceOrder(ctx, broker.OrderRequest{
		TradingSymbol: tradingSymbol,
		Side:          req.Action,
		Quantity:      qty,
		Tag:           orderTag,
	})
	if err != nil {
		return nil, errors.NewOrderError("", tradingSymbol, string(req.Action), "broker refused order", err)
	}

	strategy := req.StrategyName
	if strategy == "" {
		strategy = d.strategy
	}
	pos, err := d.store.OpenPosition(ctx, req.UserID, instrument, strategy, fill.FilledAt)
	if err != nil {
		return nil, fmt.Errorf("order %s filled but not recorded: %w", fill.OrderID, err)
	}

	trade := &models.TradeRecord{
		PositionID:    pos.ID,
		UserID:        req.UserID,
		OrderID:       fill.OrderID,
		Side:          req.Action,
		TradingSymbol: tradingSymbol,
		Quantity:      qty,
		EntryPrice:    fill.AveragePrice,
		EntryTime:     fill.FilledAt,
	}
	if err := d.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("order %s filled but not recorded: %w", fill.OrderID, err)
	}

	logging.LogOrder(d.logger, fill.OrderID, tradingSymbol, string(req.Action), qty, fill.AveragePrice)

	return &models.OrderResponse{
		Status:        models.StatusSuccess,
		OrderID:       fill.OrderID,
		TradingSymbol: tradingSymbol,
		PositionID:    pos.ID,
		TradeID:       models.TradeID(strconv.FormatInt(trade.ID, 10)),
		Message:       "Order placed successfully",
	}, nil
}

func (d *Desk) validateOrder(req *models.OrderRequest) (models.Underlying, models.OptionType, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", "", errors.NewValidationError("user_id", req.UserID, "must not be empty")
	}
	u, err := models.ParseUnderlying(req.Symbol)
	if err != nil {
		return "", "", errors.NewValidationError("symbol", req.Symbol, err.Error())
	}
	typ, err := models.ParseOptionType(req.OptionType)
	if err != nil {
		return "", "", errors.NewValidationError("optionType", req.OptionType, err.Error())
	}
	side, err := models.ParseOrderSide(string(req.Action))
	if err != nil {
		return "", "", errors.NewValidationError("action", req.Action, err.Error())
	}
	req.Action = side

	if step := u.Contract().StrikeStep; req.Strike <= 0 || req.Strike%step != 0 {
		return "", "", errors.NewValidationError("strike", req.Strike, fmt.Sprintf("must be a positive multiple of %d", step))
	}
	if req.Quantity < 1 {
		return "", "", errors.NewValidationError("quantity", req.Quantity, "must be at least one lot")
	}
	if req.LotSize <= 0 {
		req.LotSize = d.lotSize(u)
	}
	return u, typ, nil
}

// Positions reports the user's open trades marked to market. The total
// is the realized P&L of still-open positions plus the open trades' MTM.
func (d *Desk) Positions(ctx context.Context, userID string) (*models.PositionsData, error) {
	trades, err := d.store.GetTrades(ctx, store.TradeFilter{UserID: userID, Status: models.StatusOpen})
	if err != nil {
		return nil, err
	}
	realized, err := d.store.RealizedPnL(ctx, userID)
	if err != nil {
		return nil, err
	}

	quotes := d.quotes(ctx, trades)

	total := decimal.NewFromFloat(realized)
	net := make([]models.Position, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		ltp, ok := quotes[t.TradingSymbol]
		var pnl float64
		if ok {
			pnl = tradePnL(t, ltp)
			total = total.Add(decimal.NewFromFloat(pnl))
		}
		net = append(net, models.Position{
			TradingSymbol: t.TradingSymbol,
			Quantity:      t.SignedQuantity(),
			AveragePrice:  t.EntryPrice,
			CurrentPrice:  ltp,
			PnL:           pnl,
			TradeID:       models.TradeID(strconv.FormatInt(t.ID, 10)),
			OrderType:     t.Side,
		})
	}

	return &models.PositionsData{Net: net, TotalPnL: total.Round(2).InexactFloat64()}, nil
}

// quotes fetches LTPs for the trades. A failed quote call leaves the
// trades unpriced rather than failing the whole report.
func (d *Desk) quotes(ctx context.Context, trades []models.TradeRecord) map[string]float64 {
	if len(trades) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(trades))
	symbols := make([]string, 0, len(trades))
	for _, t := range trades {
		if !seen[t.TradingSymbol] {
			seen[t.TradingSymbol] = true
			symbols = append(symbols, t.TradingSymbol)
		}
	}
	quotes, err := d.broker.LTP(ctx, symbols)
	if err != nil {
		d.logger.Error().Err(err).Int("symbols", len(symbols)).Msg("Failed to fetch quotes")
		return nil
	}
	return quotes
}

// SquareOff closes one trade with an opposite market order.
func (d *Desk) SquareOff(ctx context.Context, tradeID int64) (*models.SquareOffResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !t.IsOpen() {
		return nil, fmt.Errorf("%w: %d", errors.ErrTradeClosed, tradeID)
	}
	return d.closeTrade(ctx, t)
}

// ExitAll closes every open trade of the user, shorts first.
func (d *Desk) ExitAll(ctx context.Context, userID string) (ExitReport, error) {
	trades, err := d.store.GetTrades(ctx, store.TradeFilter{UserID: userID, Status: models.StatusOpen})
	if err != nil {
		return ExitReport{}, err
	}
	return d.exit(ctx, trades), nil
}

// ExitSelected closes the listed open trades, shorts first. Ids that are
// unknown or already closed are ignored.
func (d *Desk) ExitSelected(ctx context.Context, userID string, ids []int64) (ExitReport, error) {
	if len(ids) == 0 {
		return ExitReport{}, errors.NewValidationError("trade_ids", ids, "at least one trade id is required")
	}
	trades, err := d.store.GetTrades(ctx, store.TradeFilter{UserID: userID, IDs: ids, Status: models.StatusOpen})
	if err != nil {
		return ExitReport{}, err
	}
	return d.exit(ctx, trades), nil
}

func (d *Desk) exit(ctx context.Context, trades []models.TradeRecord) ExitReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	sortForExit(trades)

	var report ExitReport
	var errs []error
	for i := range trades {
		// The list was read before d.mu was taken; a square-off may have
		// closed the trade since.
		t, err := d.store.GetTrade(ctx, trades[i].ID)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("trade %d: %w", trades[i].ID, err))
			continue
		}
		if !t.IsOpen() {
			continue
		}
		if _, err := d.closeTrade(ctx, t); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("trade %d: %w", t.ID, err))
			continue
		}
		report.Closed++
	}
	report.Err = errors.Join(errs...)

	d.logger.Info().Int("closed", report.Closed).Int("failed", report.Failed).Msg("Exit completed")
	return report
}

// sortForExit puts short trades ahead of long ones, keeping id order
// within each side, so hedges stay on until the shorts are bought back.
func sortForExit(trades []models.TradeRecord) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Side == models.OrderSideSell && trades[j].Side != models.OrderSideSell
	})
}

// closeTrade must be called with d.mu held.
func (d *Desk) closeTrade(ctx context.Context, t *models.TradeRecord) (*models.SquareOffResponse, error) {
	fill, err := d.broker.PlaceOrder(ctx, broker.OrderRequest{
		TradingSymbol: t.TradingSymbol,
		Side:          t.Side.Opposite(),
		Quantity:      t.Quantity,
		Tag:           orderTag,
	})
	if err != nil {
		return nil, errors.NewOrderError("", t.TradingSymbol, string(t.Side.Opposite()), "square-off refused", err)
	}

	exit := fill.AveragePrice
	if exit <= 0 {
		if q, err := d.broker.LTP(ctx, []string{t.TradingSymbol}); err == nil {
			exit = q[t.TradingSymbol]
		}
	}
	pnl := tradePnL(t, exit)
	at := d.now()

	if err := d.store.CloseTrade(ctx, t.ID, exit, pnl, at); err != nil {
		return nil, fmt.Errorf("order %s filled but trade not closed: %w", fill.OrderID, err)
	}
	if _, err := d.store.SettlePosition(ctx, t.PositionID, at); err != nil {
		d.logger.Error().Err(err).Int64("position_id", t.PositionID).Msg("Failed to settle position")
	}

	logging.LogOrder(d.logger, fill.OrderID, t.TradingSymbol, string(t.Side.Opposite()), t.Quantity, exit)

	return &models.SquareOffResponse{
		Status:    models.StatusSuccess,
		TradeID:   models.TradeID(strconv.FormatInt(t.ID, 10)),
		OrderID:   fill.OrderID,
		ExitPrice: exit,
		PnL:       pnl,
		Message:   "Position squared off successfully",
	}, nil
}

// tradePnL is (price - entry) * signed quantity, rounded to paise.
func tradePnL(t *models.TradeRecord, price float64) float64 {
	return decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(t.EntryPrice)).
		Mul(decimal.NewFromInt(int64(t.SignedQuantity()))).
		Round(2).
		InexactFloat64()
}
