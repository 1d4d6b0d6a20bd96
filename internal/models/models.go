// Package models provides domain models for the options dashboard.
package models

import (
	"fmt"
	"strings"
)

// Exchange represents a derivatives exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // NSE F&O
	BFO Exchange = "BFO" // BSE F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ParseOrderSide parses BUY/SELL case-insensitively.
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	}
	return "", fmt.Errorf("invalid order side %q (must be BUY or SELL)", s)
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Underlying is an index that options derive their value from.
type Underlying string

const (
	NIFTY     Underlying = "NIFTY"
	BANKNIFTY Underlying = "BANKNIFTY"
	SENSEX    Underlying = "SENSEX"
)

// AllUnderlyings lists the supported indices in display order.
var AllUnderlyings = []Underlying{NIFTY, SENSEX, BANKNIFTY}

// ContractInfo holds exchange facts for an underlying.
type ContractInfo struct {
	DisplayName string
	StrikeStep  int
	RangeOffset int
	Exchange    Exchange
	SpotSymbol  string // exchange:tradingsymbol of the index quote
	LotSize     int
	DefaultSpot float64
}

var contracts = map[Underlying]ContractInfo{
	NIFTY: {
		DisplayName: "NIFTY",
		StrikeStep:  50,
		RangeOffset: 1000,
		Exchange:    NFO,
		SpotSymbol:  "NSE:NIFTY 50",
		LotSize:     25,
		DefaultSpot: 22000,
	},
	BANKNIFTY: {
		DisplayName: "NIFTYBANK",
		StrikeStep:  100,
		RangeOffset: 1000,
		Exchange:    NFO,
		SpotSymbol:  "NSE:NIFTY BANK",
		LotSize:     15,
		DefaultSpot: 51000,
	},
	SENSEX: {
		DisplayName: "SENSEX",
		StrikeStep:  100,
		RangeOffset: 2000,
		Exchange:    BFO,
		SpotSymbol:  "BSE:SENSEX",
		LotSize:     10,
		DefaultSpot: 80000,
	},
}

// Contract returns the exchange facts for u. Unknown underlyings get a zero value.
func (u Underlying) Contract() ContractInfo {
	return contracts[u]
}

// Valid reports whether u is a supported index.
func (u Underlying) Valid() bool {
	_, ok := contracts[u]
	return ok
}

// String implements fmt.Stringer.
func (u Underlying) String() string {
	return string(u)
}

// ParseUnderlying parses an index name. NIFTYBANK is accepted for BANKNIFTY.
func ParseUnderlying(s string) (Underlying, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "NIFTYBANK" {
		return BANKNIFTY, nil
	}
	u := Underlying(name)
	if !u.Valid() {
		return "", fmt.Errorf("unknown underlying %q", s)
	}
	return u, nil
}
