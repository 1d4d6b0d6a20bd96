package models

import "time"

// Record status values shared by positions and trades.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// PositionRecord groups the trades of one instrument for one user.
type PositionRecord struct {
	ID           int64
	UserID       string
	StrategyName string
	Instrument   string
	StartTime    time.Time
	EndTime      *time.Time
	Status       string
	TotalPnL     float64
}

// TradeRecord is a single fill persisted by the bundled backend.
// Quantity is in units (lots times lot size), always positive.
type TradeRecord struct {
	ID            int64
	PositionID    int64
	UserID        string
	OrderID       string
	Side          OrderSide
	TradingSymbol string
	Quantity      int
	EntryPrice    float64
	ExitPrice     *float64
	EntryTime     time.Time
	ExitTime      *time.Time
	PnL           *float64
	Status        string
}

// IsOpen reports whether the trade has not been squared off.
func (t *TradeRecord) IsOpen() bool {
	return t.Status == StatusOpen
}

// SignedQuantity returns Quantity negated for short trades.
func (t *TradeRecord) SignedQuantity() int {
	if t.Side == OrderSideSell {
		return -t.Quantity
	}
	return t.Quantity
}

// MarkToMarket returns the unrealised P&L of an open trade at ltp.
func (t *TradeRecord) MarkToMarket(ltp float64) float64 {
	return (ltp - t.EntryPrice) * float64(t.SignedQuantity())
}
