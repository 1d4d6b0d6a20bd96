// Package broker provides the market access used by the bundled backend:
// spot and option quotes, the nearest expiry, and market order fills.
package broker

import (
	"context"
	"time"

	"options-dashboard/internal/models"
	"options-dashboard/internal/symbol"
)

// Broker defines the market operations the backend server needs.
type Broker interface {
	Name() string

	// Market Data
	Spot(ctx context.Context, u models.Underlying) (float64, error)
	Expiry(ctx context.Context, u models.Underlying) (time.Time, error)
	ChainQuotes(ctx context.Context, u models.Underlying, expiry time.Time, strikes []int) ([]models.ChainRow, error)
	LTP(ctx context.Context, symbols []string) (map[string]float64, error)

	// Orders
	PlaceOrder(ctx context.Context, order OrderRequest) (*Fill, error)
}

// OrderRequest is a market order for one option contract.
type OrderRequest struct {
	TradingSymbol string
	Side          models.OrderSide
	Quantity      int // units, lots times lot size
	Tag           string
}

// Fill is the outcome of a market order.
type Fill struct {
	OrderID      string
	AveragePrice float64
	FilledAt     time.Time
}

// expiryWeekday is the weekly expiry day of each index.
var expiryWeekday = map[models.Underlying]time.Weekday{
	models.NIFTY:     time.Thursday,
	models.BANKNIFTY: time.Wednesday,
	models.SENSEX:    time.Friday,
}

// ExpiryWeekday returns the weekly expiry day of u.
func ExpiryWeekday(u models.Underlying) time.Weekday {
	if d, ok := expiryWeekday[u]; ok {
		return d
	}
	return time.Thursday
}

// ContractSymbol builds the trading symbol of a contract on the given expiry.
func ContractSymbol(u models.Underlying, expiry time.Time, strike int, t models.OptionType) string {
	return symbol.Format(models.ContractTerms{
		Underlying: u,
		Expiry:     symbol.ExpiryCode(expiry, symbol.IsMonthlyExpiry(expiry)),
		Strike:     strike,
		Type:       t,
	})
}

// ExchangeOf returns the F&O segment a trading symbol is listed on.
func ExchangeOf(tradingSymbol string) models.Exchange {
	if u, ok := symbol.UnderlyingOf(tradingSymbol); ok {
		return u.Contract().Exchange
	}
	return models.NFO
}
