// Package orders turns an order ticket into backend order legs and sends
// them, adding a protective hedge to short option legs when asked.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"options-dashboard/internal/config"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/stream"
)

// Ticket is an order as entered by the user. Lots of 0 means the
// configured default and Hedge of -1 means the configured hedge distance.
type Ticket struct {
	Underlying models.Underlying
	Strike     int
	Type       models.OptionType
	Action     models.OrderSide
	Lots       int
	Price      float64
	Hedge      int
}

// Leg is one order of a plan.
type Leg struct {
	Request models.OrderRequest
	Hedge   bool
}

// Plan is the ordered list of legs for a ticket. Hedge legs come first.
type Plan struct {
	Ticket Ticket
	Legs   []Leg
}

// Filled is a leg together with the backend's acknowledgement.
type Filled struct {
	Leg      Leg
	Response *models.OrderResponse
}

// Placer sends a single order to the backend.
type Placer interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResponse, error)
}

// Planner builds and executes order plans.
type Planner struct {
	cfg    config.OrdersConfig
	placer Placer
	hub    *stream.Hub
	logger zerolog.Logger
}

// NewPlanner creates a planner. hub may be nil.
func NewPlanner(cfg config.OrdersConfig, placer Placer, hub *stream.Hub, logger zerolog.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		placer: placer,
		hub:    hub,
		logger: logging.WithComponent(logger, "orders"),
	}
}

// LotSize returns the configured lot size for u.
func (p *Planner) LotSize(u models.Underlying) int {
	if n, ok := p.cfg.LotSizes[strings.ToLower(string(u))]; ok && n > 0 {
		return n
	}
	return u.Contract().LotSize
}

// Plan validates the ticket and expands it into legs.
func (p *Planner) Plan(t Ticket) (*Plan, error) {
	if t.Lots == 0 {
		t.Lots = max(p.cfg.DefaultLots, 1)
	}
	if t.Hedge < 0 {
		t.Hedge = p.cfg.HedgeStrikes
	}
	if err := validate(t); err != nil {
		return nil, err
	}

	primary := Leg{Request: p.request(t, t.Strike, t.Action, t.Price)}
	plan := &Plan{Ticket: t}

	if t.Hedge > 0 && t.Action == models.OrderSideSell {
		offset := t.Hedge * t.Underlying.Contract().StrikeStep
		strike := t.Strike + offset
		if t.Type == models.Put {
			strike = t.Strike - offset
		}
		if strike <= 0 {
			return nil, errors.NewValidationError("hedge", t.Hedge, "hedge strike falls below zero")
		}
		plan.Legs = append(plan.Legs, Leg{Request: p.request(t, strike, models.OrderSideBuy, 0), Hedge: true})
	}

	plan.Legs = append(plan.Legs, primary)
	return plan, nil
}

func (p *Planner) request(t Ticket, strike int, side models.OrderSide, price float64) models.OrderRequest {
	return models.OrderRequest{
		Symbol:       string(t.Underlying),
		Strike:       strike,
		OptionType:   t.Type.Tag(),
		Action:       side,
		Quantity:     t.Lots,
		LotSize:      p.LotSize(t.Underlying),
		Price:        price,
		StrategyName: p.cfg.StrategyName,
	}
}

func validate(t Ticket) error {
	if !t.Underlying.Valid() {
		return errors.NewValidationError("underlying", t.Underlying, "unsupported underlying")
	}
	if t.Type != models.Call && t.Type != models.Put {
		return errors.NewValidationError("type", t.Type, "must be CE or PE")
	}
	if t.Action != models.OrderSideBuy && t.Action != models.OrderSideSell {
		return errors.NewValidationError("action", t.Action, "must be BUY or SELL")
	}
	step := t.Underlying.Contract().StrikeStep
	if t.Strike <= 0 || t.Strike%step != 0 {
		return errors.NewValidationError("strike", t.Strike, fmt.Sprintf("must be a positive multiple of %d", step))
	}
	if t.Lots < 1 {
		return errors.NewValidationError("lots", t.Lots, "must be at least 1")
	}
	if t.Price < 0 {
		return errors.NewValidationError("price", t.Price, "must not be negative")
	}
	if t.Hedge < 0 {
		return errors.NewValidationError("hedge", t.Hedge, "must not be negative")
	}
	return nil
}

// Execute sends the plan's legs in order and stops at the first failure.
// Legs already filled are returned alongside the error so the caller can
// show what is left open.
func (p *Planner) Execute(ctx context.Context, plan *Plan) ([]Filled, error) {
	filled := make([]Filled, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		resp, err := p.placer.PlaceOrder(ctx, leg.Request)
		if err != nil {
			if len(filled) > 0 {
				p.logger.Warn().
					Int("filled_legs", len(filled)).
					Str("symbol", leg.Request.Symbol).
					Msg("Order plan stopped part way")
			}
			return filled, fmt.Errorf("failed to place %s %d%s: %w",
				leg.Request.Action, leg.Request.Strike, leg.Request.OptionType, err)
		}
		filled = append(filled, Filled{Leg: leg, Response: resp})
	}

	if p.hub != nil && len(filled) > 0 {
		p.hub.Publish(stream.Event{Kind: stream.OrderPlaced, Underlying: plan.Ticket.Underlying, At: time.Now()})
	}
	return filled, nil
}

// Place plans and executes a ticket.
func (p *Planner) Place(ctx context.Context, t Ticket) ([]Filled, error) {
	plan, err := p.Plan(t)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, plan)
}
