package payoff

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/internal/config"
	"options-dashboard/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(Options{}, zerolog.Nop())
}

func pnlAt(t *testing.T, curve []models.PayoffPoint, spot float64) float64 {
	t.Helper()
	for _, p := range curve {
		if p.Spot == spot {
			return p.PnL
		}
	}
	t.Fatalf("no sample at spot %.2f", spot)
	return 0
}

func TestComputeEmptyBasket(t *testing.T) {
	res := newTestEngine().Compute(nil)

	assert.True(t, res.Empty())
	assert.NotNil(t, res.Curve)
	assert.Empty(t, res.Curve)
	assert.Equal(t, 0.0, res.Metrics.MaxProfit)
	assert.Equal(t, 0.0, res.Metrics.MaxLoss)
	require.NotNil(t, res.Metrics.BreakEvens)
	assert.Empty(t, res.Metrics.BreakEvens)
}

func TestComputeOnlyMalformedIsEmpty(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "GARBAGE", Quantity: 1, AveragePrice: 10},
	})

	assert.True(t, res.Empty())
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "GARBAGE", res.Skipped[0].TradingSymbol)
}

func TestComputeLongCall(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 1, AveragePrice: 100},
	})

	require.False(t, res.Empty())
	assert.Equal(t, models.NIFTY, res.Underlying)

	// 21000..23000 at 25 points
	require.Len(t, res.Curve, 81)
	assert.Equal(t, 21000.0, res.Curve[0].Spot)
	assert.Equal(t, 23000.0, res.Curve[len(res.Curve)-1].Spot)

	assert.Equal(t, -100.0, pnlAt(t, res.Curve, 22000))
	assert.Equal(t, 900.0, pnlAt(t, res.Curve, 23000))
	assert.Equal(t, 900.0, res.Metrics.MaxProfit)
	assert.Equal(t, -100.0, res.Metrics.MaxLoss)

	// The break-even at 22100 lands exactly on a sample, so neither adjacent
	// pair has strictly opposite signs.
	assert.Empty(t, res.Metrics.BreakEvens)
}

func TestComputeLongCallBreakEvenBetweenSamples(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 1, AveragePrice: 110},
	})
	assert.Equal(t, []float64{22110}, res.Metrics.BreakEvens)
}

func TestComputeShortPut(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "NIFTY24DEC22000PE", Quantity: -1, AveragePrice: 50},
	})

	assert.Equal(t, -950.0, pnlAt(t, res.Curve, 21000))
	assert.Equal(t, 50.0, pnlAt(t, res.Curve, 22000))
	assert.Equal(t, 50.0, pnlAt(t, res.Curve, 23000))
	assert.Equal(t, 50.0, res.Metrics.MaxProfit)
	assert.Equal(t, -950.0, res.Metrics.MaxLoss)
}

func TestComputeShortStraddle(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: -1, AveragePrice: 110},
		{TradingSymbol: "NIFTY24DEC22000PE", Quantity: -1, AveragePrice: 110},
	})

	assert.Equal(t, 220.0, res.Metrics.MaxProfit)
	assert.Equal(t, -780.0, res.Metrics.MaxLoss)
	assert.Equal(t, []float64{21780, 22220}, res.Metrics.BreakEvens)
}

func TestComputeSkipsMalformedWithoutChangingCurve(t *testing.T) {
	e := newTestEngine()
	valid := []models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 25, AveragePrice: 120},
		{TradingSymbol: "NIFTY24DEC22500CE", Quantity: -25, AveragePrice: 40},
	}
	withJunk := []models.Position{
		{TradingSymbol: "NIFTY24DEC22025CE", Quantity: 25, AveragePrice: 1},
		valid[0],
		{TradingSymbol: "", Quantity: 5, AveragePrice: 3},
		valid[1],
	}

	clean := e.Compute(valid)
	dirty := e.Compute(withJunk)

	assert.Equal(t, clean.Curve, dirty.Curve)
	assert.Equal(t, clean.Metrics, dirty.Metrics)
	assert.Len(t, dirty.Skipped, 2)
}

func TestComputeSensexPolicy(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "SENSEX2510380000CE", Quantity: 10, AveragePrice: 300},
	})

	require.NotEmpty(t, res.Curve)
	assert.Equal(t, 78000.0, res.Curve[0].Spot)
	assert.Equal(t, 82000.0, res.Curve[len(res.Curve)-1].Spot)
	assert.Equal(t, 50.0, res.Curve[1].Spot-res.Curve[0].Spot)
}

func TestComputeMixedUnderlying(t *testing.T) {
	e := newTestEngine()
	positions := []models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 1, AveragePrice: 100},
		{TradingSymbol: "SENSEX2510380000PE", Quantity: 1, AveragePrice: 200},
	}

	res := e.Compute(positions)
	assert.Equal(t, models.NIFTY, res.Underlying)
	require.Len(t, res.Legs, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "SENSEX2510380000PE", res.Skipped[0].TradingSymbol)

	all := e.ComputeByUnderlying(positions)
	require.Len(t, all, 2)
	assert.Equal(t, models.NIFTY, all[0].Underlying)
	assert.Equal(t, models.SENSEX, all[1].Underlying)
}

func TestComputeCurrentReference(t *testing.T) {
	positions := []models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 1, AveragePrice: 100, CurrentPrice: 150},
	}

	e := newTestEngine().WithReference(ReferenceCurrent)
	res := e.Compute(positions)
	assert.Equal(t, -150.0, pnlAt(t, res.Curve, 22000))
	assert.Equal(t, ReferenceEntry, newTestEngine().Reference())
}

func TestBreakEvens(t *testing.T) {
	curve := []models.PayoffPoint{{Spot: 100, PnL: -50}, {Spot: 150, PnL: 50}}
	assert.Equal(t, []float64{125}, BreakEvens(curve))

	touching := []models.PayoffPoint{{Spot: 100, PnL: -50}, {Spot: 150, PnL: 0}, {Spot: 200, PnL: 50}}
	assert.Empty(t, BreakEvens(touching))

	assert.Equal(t, []float64{}, BreakEvens(nil))
}

func TestResultPnLAt(t *testing.T) {
	res := newTestEngine().Compute([]models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 2, AveragePrice: 100},
	})
	assert.Equal(t, 1800.0, res.PnLAt(23000))
	assert.Equal(t, -200.0, res.PnLAt(21987.5))
}

func TestPoliciesFromConfig(t *testing.T) {
	table := PoliciesFromConfig(config.PayoffConfig{
		Policies: map[string]config.PolicyConfig{
			"nifty":   {StrikeStep: 100, RangeOffset: 500},
			"unknown": {StrikeStep: 10, RangeOffset: 10},
		},
	})

	assert.Equal(t, Policy{StrikeStep: 100, RangeOffset: 500}, table.Lookup(models.NIFTY))
	assert.Equal(t, Policy{StrikeStep: 100, RangeOffset: 2000}, table.Lookup(models.SENSEX))
	assert.Equal(t, Policy{StrikeStep: 100, RangeOffset: 1000}, PolicyTable{}.Lookup(models.BANKNIFTY))
}

func TestMemo(t *testing.T) {
	m := NewMemo(newTestEngine())
	positions := []models.Position{{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 1, AveragePrice: 100}}

	first := m.Compute(positions)
	second := m.Compute([]models.Position{positions[0]})
	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.Hits())

	changed := m.Compute([]models.Position{{TradingSymbol: "NIFTY24DEC22000CE", Quantity: 2, AveragePrice: 100}})
	assert.NotEqual(t, first.Metrics, changed.Metrics)
	assert.Equal(t, 1, m.Hits())
}

func TestMemoResultsDoNotShareCache(t *testing.T) {
	m := NewMemo(newTestEngine())
	positions := []models.Position{
		{TradingSymbol: "NIFTY24DEC22000CE", Quantity: -1, AveragePrice: 100},
		{TradingSymbol: "NIFTY24DEC22000PE", Quantity: -1, AveragePrice: 100},
	}

	first := m.Compute(positions)
	require.NotEmpty(t, first.Curve)
	require.NotEmpty(t, first.Legs)
	require.NotEmpty(t, first.Metrics.BreakEvens)
	want := first.Curve[0].PnL
	wantBE := first.Metrics.BreakEvens[0]
	wantSymbol := first.Legs[0].TradingSymbol

	first.Curve[0].PnL = 1e9
	first.Metrics.BreakEvens[0] = -1
	first.Legs[0].TradingSymbol = "tampered"

	second := m.Compute(positions)
	assert.Equal(t, 1, m.Hits())
	assert.Equal(t, want, second.Curve[0].PnL)
	assert.Equal(t, wantBE, second.Metrics.BreakEvens[0])
	assert.Equal(t, wantSymbol, second.Legs[0].TradingSymbol)
}
