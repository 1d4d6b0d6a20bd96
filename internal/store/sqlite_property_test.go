package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-dashboard/internal/models"
)

// Property: once every trade of a position is closed, settling the position
// records the sum of the trade P&L, and realized P&L for the user drops that
// position's contribution.
func TestProperty_SettledPositionSumsTradePnL(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("settled total equals sum of closed trade pnl", prop.ForAll(
		func(entries []float64, exitShift float64, sell bool) bool {
			ctx := context.Background()
			run++
			user := fmt.Sprintf("u%d", run)
			at := time.Date(2024, time.December, 16, 10, 0, 0, 0, time.UTC)

			pos, err := store.OpenPosition(ctx, user, "NIFTY24D19", "prop", at)
			if err != nil {
				t.Logf("open position: %v", err)
				return false
			}

			side := models.OrderSideBuy
			if sell {
				side = models.OrderSideSell
			}

			var want float64
			for i, entry := range entries {
				tr := &models.TradeRecord{
					PositionID:    pos.ID,
					UserID:        user,
					OrderID:       fmt.Sprintf("o%d", i),
					Side:          side,
					TradingSymbol: "NIFTY24D1922000CE",
					Quantity:      25,
					EntryPrice:    entry,
					EntryTime:     at,
				}
				if err := store.InsertTrade(ctx, tr); err != nil {
					t.Logf("insert trade: %v", err)
					return false
				}

				// Settling with open trades must be refused.
				if ok, err := store.SettlePosition(ctx, pos.ID, at); err != nil || ok {
					return false
				}

				exit := math.Max(0, entry+exitShift)
				pnl := tr.MarkToMarket(exit)
				if err := store.CloseTrade(ctx, tr.ID, exit, pnl, at.Add(time.Minute)); err != nil {
					t.Logf("close trade: %v", err)
					return false
				}
				want += pnl
			}

			realized, err := store.RealizedPnL(ctx, user)
			if err != nil || math.Abs(realized-want) > 1e-6 {
				t.Logf("realized before settle: %v want %v (%v)", realized, want, err)
				return false
			}

			ok, err := store.SettlePosition(ctx, pos.ID, at.Add(time.Hour))
			if err != nil || !ok {
				return false
			}
			settled, err := store.GetPosition(ctx, pos.ID)
			if err != nil || settled.Status != models.StatusClosed || settled.EndTime == nil {
				return false
			}
			if math.Abs(settled.TotalPnL-want) > 1e-6 {
				t.Logf("total_pnl %v want %v", settled.TotalPnL, want)
				return false
			}

			realized, err = store.RealizedPnL(ctx, user)
			return err == nil && realized == 0
		},
		gen.SliceOfN(5, gen.Float64Range(1.0, 500.0)).SuchThat(func(v []float64) bool { return len(v) > 0 }),
		gen.Float64Range(-100.0, 100.0),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: a position reopened after settlement starts with no P&L and the
// same id, so the instrument never has two position rows for one user.
func TestProperty_ReopenKeepsSinglePosition(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "reopen.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("reopen reuses the row", prop.ForAll(
		func(cycles int, instrument string) bool {
			ctx := context.Background()
			at := time.Date(2024, time.December, 16, 10, 0, 0, 0, time.UTC)

			var id int64
			for i := 0; i < cycles; i++ {
				pos, err := store.OpenPosition(ctx, "1", instrument, "reopen", at)
				if err != nil || pos.Status != models.StatusOpen || pos.TotalPnL != 0 || pos.EndTime != nil {
					return false
				}
				if id != 0 && pos.ID != id {
					return false
				}
				id = pos.ID
				if ok, err := store.SettlePosition(ctx, id, at); err != nil || !ok {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.OneConstOf("NIFTY24D19", "BANKNIFTY24D18", "SENSEX24D20"),
	))

	properties.TestingRun(t)
}
