// Package payoff computes expiry P&L curves for baskets of index options.
package payoff

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"options-dashboard/internal/config"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/symbol"
)

// Leg is a parsed position ready for pricing.
type Leg struct {
	TradingSymbol string
	Terms         models.ContractTerms
	Quantity      int
	Price         float64 // reference price
}

// PnL returns the leg's expiry P&L at spot.
func (l Leg) PnL(spot float64) float64 {
	return (l.Terms.Intrinsic(spot) - l.Price) * float64(l.Quantity)
}

// Skipped records a position left out of a curve.
type Skipped struct {
	TradingSymbol string
	Reason        string
}

// Result is the output of one computation.
type Result struct {
	Underlying models.Underlying
	Legs       []Leg
	Curve      []models.PayoffPoint
	Metrics    models.PayoffMetrics
	Skipped    []Skipped
}

// Empty reports whether no leg contributed to the curve.
func (r Result) Empty() bool {
	return len(r.Legs) == 0
}

// PnLAt evaluates the basket at an arbitrary spot.
func (r Result) PnLAt(spot float64) float64 {
	var total float64
	for _, l := range r.Legs {
		total += l.PnL(spot)
	}
	return total
}

// Options configures an Engine.
type Options struct {
	Policies      PolicyTable
	SampleDivisor int
	Reference     Reference
}

// OptionsFromConfig builds engine options from the payoff config section.
func OptionsFromConfig(cfg config.PayoffConfig) Options {
	return Options{
		Policies:      PoliciesFromConfig(cfg),
		SampleDivisor: cfg.SampleDivisor,
		Reference:     ParseReference(cfg.Reference),
	}
}

// Engine turns position snapshots into payoff curves. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	policies  PolicyTable
	divisor   int
	reference Reference
	logger    zerolog.Logger
}

// NewEngine creates a payoff engine.
func NewEngine(opts Options, logger zerolog.Logger) *Engine {
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.SampleDivisor < 1 {
		opts.SampleDivisor = 2
	}
	return &Engine{
		policies:  opts.Policies,
		divisor:   opts.SampleDivisor,
		reference: opts.Reference,
		logger:    logging.WithComponent(logger, "payoff"),
	}
}

// WithReference returns a copy of the engine using a different reference price.
func (e *Engine) WithReference(ref Reference) *Engine {
	cp := *e
	cp.reference = ref
	return &cp
}

// Reference returns the reference price mode in use.
func (e *Engine) Reference() Reference {
	return e.reference
}

// Compute builds the curve and metrics for a basket. Unparseable symbols and
// legs on a different underlying than the first parsed one are skipped.
// Compute never fails: an internal panic is logged and yields an empty result.
func (e *Engine) Compute(positions []models.Position) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.NewComputeError("curve", fmt.Errorf("%v", r))
			e.logger.Error().Err(err).Int("positions", len(positions)).Msg("Payoff computation failed")
			res = emptyResult()
		}
	}()

	legs, skipped := e.legs(positions)
	if len(legs) == 0 {
		res = emptyResult()
		res.Skipped = skipped
		return res
	}

	u := legs[0].Terms.Underlying
	basket := make([]Leg, 0, len(legs))
	for _, l := range legs {
		if l.Terms.Underlying != u {
			skipped = append(skipped, Skipped{TradingSymbol: l.TradingSymbol, Reason: errors.ErrMixedUnderlying.Error()})
			e.logger.Warn().
				Str("symbol", l.TradingSymbol).
				Str("basket_underlying", string(u)).
				Msg("Leg excluded from payoff: different underlying")
			continue
		}
		basket = append(basket, l)
	}

	curve := Curve(basket, e.policies.Lookup(u), e.divisor)
	return Result{
		Underlying: u,
		Legs:       basket,
		Curve:      curve,
		Metrics:    Metrics(curve),
		Skipped:    skipped,
	}
}

// ComputeByUnderlying splits a mixed basket and computes one result per
// underlying, in order of first appearance.
func (e *Engine) ComputeByUnderlying(positions []models.Position) []Result {
	var order []models.Underlying
	groups := make(map[models.Underlying][]models.Position)
	for _, p := range positions {
		terms, err := symbol.Parse(p.TradingSymbol)
		if err != nil {
			continue
		}
		if _, ok := groups[terms.Underlying]; !ok {
			order = append(order, terms.Underlying)
		}
		groups[terms.Underlying] = append(groups[terms.Underlying], p)
	}

	results := make([]Result, 0, len(order))
	for _, u := range order {
		results = append(results, e.Compute(groups[u]))
	}
	return results
}

func (e *Engine) legs(positions []models.Position) ([]Leg, []Skipped) {
	legs := make([]Leg, 0, len(positions))
	var skipped []Skipped
	for _, p := range positions {
		terms, err := symbol.Parse(p.TradingSymbol)
		if err != nil {
			e.logger.Debug().Err(err).Msg("Skipping position")
			skipped = append(skipped, Skipped{TradingSymbol: p.TradingSymbol, Reason: err.Error()})
			continue
		}
		if p.Quantity == 0 {
			skipped = append(skipped, Skipped{TradingSymbol: p.TradingSymbol, Reason: "zero quantity"})
			continue
		}
		price := p.AveragePrice
		if e.reference == ReferenceCurrent {
			price = p.CurrentPrice
		}
		legs = append(legs, Leg{
			TradingSymbol: p.TradingSymbol,
			Terms:         terms,
			Quantity:      p.Quantity,
			Price:         price,
		})
	}
	return legs, skipped
}

func emptyResult() Result {
	return Result{
		Curve:   []models.PayoffPoint{},
		Metrics: models.PayoffMetrics{BreakEvens: []float64{}},
	}
}

// Curve samples the basket from the lowest strike minus the range offset to
// the highest strike plus the offset, at StrikeStep/divisor. Samples are
// generated by index so identical inputs give identical spots.
func Curve(legs []Leg, policy Policy, divisor int) []models.PayoffPoint {
	if len(legs) == 0 {
		return []models.PayoffPoint{}
	}
	if divisor < 1 {
		divisor = 1
	}

	minStrike, maxStrike := legs[0].Terms.Strike, legs[0].Terms.Strike
	for _, l := range legs[1:] {
		minStrike = min(minStrike, l.Terms.Strike)
		maxStrike = max(maxStrike, l.Terms.Strike)
	}

	start := float64(minStrike - policy.RangeOffset)
	end := float64(maxStrike + policy.RangeOffset)
	step := float64(policy.StrikeStep) / float64(divisor)
	n := int(math.Floor((end-start)/step+1e-9)) + 1

	curve := make([]models.PayoffPoint, 0, n)
	for i := 0; i < n; i++ {
		spot := start + float64(i)*step
		var pnl float64
		for _, l := range legs {
			pnl += l.PnL(spot)
		}
		curve = append(curve, models.PayoffPoint{Spot: spot, PnL: pnl})
	}
	return curve
}

// Metrics derives max profit, max loss and break-evens from a curve.
func Metrics(curve []models.PayoffPoint) models.PayoffMetrics {
	m := models.PayoffMetrics{BreakEvens: BreakEvens(curve)}
	if len(curve) == 0 {
		return m
	}
	m.MaxProfit, m.MaxLoss = curve[0].PnL, curve[0].PnL
	for _, p := range curve[1:] {
		m.MaxProfit = math.Max(m.MaxProfit, p.PnL)
		m.MaxLoss = math.Min(m.MaxLoss, p.PnL)
	}
	return m
}

// BreakEvens returns the interpolated zero crossings of a curve, rounded to
// the nearest whole price. Only adjacent samples with strictly opposite signs
// count; a sample that is exactly zero is never itself a crossing.
func BreakEvens(curve []models.PayoffPoint) []float64 {
	out := []float64{}
	for i := 1; i < len(curve); i++ {
		prev, curr := curve[i-1], curve[i]
		if prev.PnL*curr.PnL >= 0 {
			continue
		}
		a, b := math.Abs(prev.PnL), math.Abs(curr.PnL)
		x := prev.Spot + (curr.Spot-prev.Spot)*a/(a+b)
		out = append(out, math.Round(x))
	}
	return out
}
