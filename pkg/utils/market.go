package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MarketStatus is the F&O session state.
type MarketStatus string

const (
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

const (
	preOpenMinute = 9 * 60
	openMinute    = 9*60 + 15
	closeMinute   = 15*60 + 30
)

// MarketStatusAt returns the session state at t. Exchange holidays are
// not modelled.
func MarketStatusAt(t time.Time) MarketStatus {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	m := now.Hour()*60 + now.Minute()
	switch {
	case m >= preOpenMinute && m < openMinute:
		return MarketPreOpen
	case m >= openMinute && m < closeMinute:
		return MarketOpen
	}
	return MarketClosed
}

// IsMarketOpen returns true if the market is open at t.
func IsMarketOpen(t time.Time) bool {
	return MarketStatusAt(t) == MarketOpen
}

// MarketClose returns the 15:30 IST close on t's trading date.
func MarketClose(t time.Time) time.Time {
	now := t.In(IndiaLocation)
	return time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, IndiaLocation)
}

// AfterClose reports whether t is at or past the close of its trading date.
func AfterClose(t time.Time) bool {
	return !t.Before(MarketClose(t))
}

// NextMarketOpen returns the first 09:15 IST open after t on a weekday.
func NextMarketOpen(t time.Time) time.Time {
	now := t.In(IndiaLocation)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
