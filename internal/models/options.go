package models

import (
	"fmt"
	"strings"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Tag returns the trading-symbol suffix for the option type.
func (t OptionType) Tag() string {
	if t == Put {
		return "PE"
	}
	return "CE"
}

// ParseOptionType accepts CE/PE as well as CALL/PUT.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL":
		return Call, nil
	case "PE", "PUT":
		return Put, nil
	}
	return "", fmt.Errorf("invalid option type %q (must be CE or PE)", s)
}

// ContractTerms are the structured fields decoded from a trading symbol.
type ContractTerms struct {
	Underlying Underlying
	Expiry     string
	Strike     int
	Type       OptionType
}

// Intrinsic returns the exercise value of the contract at spot.
func (c ContractTerms) Intrinsic(spot float64) float64 {
	k := float64(c.Strike)
	if c.Type == Put {
		if k > spot {
			return k - spot
		}
		return 0
	}
	if spot > k {
		return spot - k
	}
	return 0
}

// ChainRow is one strike of an option chain. A nil LTP means no quote.
type ChainRow struct {
	Strike float64  `json:"strike"`
	CE     *float64 `json:"CE"`
	PE     *float64 `json:"PE"`
}

// OptionChain is the /option-chain response body.
type OptionChain struct {
	Data      []ChainRow `json:"data"`
	Expiry    string     `json:"expiry,omitempty"`
	SpotPrice float64    `json:"spotPrice"`
	ATMStrike float64    `json:"atmStrike,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ATMRow returns the index of the row closest to spot, or -1 for an empty chain.
func (c *OptionChain) ATMRow() int {
	best := -1
	bestDist := 0.0
	for i, r := range c.Data {
		d := r.Strike - c.SpotPrice
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// PayoffPoint is a single sample of a payoff curve.
type PayoffPoint struct {
	Spot float64 `json:"spot"`
	PnL  float64 `json:"pnl"`
}

// PayoffMetrics summarises a payoff curve.
type PayoffMetrics struct {
	MaxProfit  float64   `json:"max_profit"`
	MaxLoss    float64   `json:"max_loss"`
	BreakEvens []float64 `json:"break_evens"`
}
