// Package store persists the bundled backend's positions and trades.
package store

import (
	"context"
	"time"

	"options-dashboard/internal/models"
)

// TradeStore defines the persistence the backend server needs.
type TradeStore interface {
	// Positions
	OpenPosition(ctx context.Context, userID, instrument, strategy string, at time.Time) (*models.PositionRecord, error)
	GetPosition(ctx context.Context, id int64) (*models.PositionRecord, error)
	SettlePosition(ctx context.Context, positionID int64, at time.Time) (bool, error)

	// Trades
	InsertTrade(ctx context.Context, trade *models.TradeRecord) error
	GetTrade(ctx context.Context, id int64) (*models.TradeRecord, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)
	CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, at time.Time) error

	// P&L
	RealizedPnL(ctx context.Context, userID string) (float64, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	UserID     string
	PositionID int64
	IDs        []int64
	Status     string
	Limit      int
}
