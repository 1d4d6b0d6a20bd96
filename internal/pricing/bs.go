// Package pricing values European index options for the paper backend.
package pricing

import (
	"fmt"
	"math"
	"time"

	"options-dashboard/internal/models"
)

const (
	sqrt2Pi = 2.5066282746310002

	// TickSize is the minimum price increment of index options.
	TickSize = 0.05

	minutesPerYear = 365 * 24 * 60
)

// Price returns the Black-Scholes value of a call or put.
// With no time or volatility left it returns intrinsic value.
func Price(t models.OptionType, spot, strike, years, rate, sigma float64) float64 {
	if years <= 0 || sigma <= 0 || spot <= 0 || strike <= 0 {
		if t == models.Put {
			return math.Max(0, strike-spot)
		}
		return math.Max(0, spot-strike)
	}

	d1, d2 := d(spot, strike, years, rate, sigma)
	df := math.Exp(-rate * years)
	if t == models.Put {
		return strike*df*normCDF(-d2) - spot*normCDF(-d1)
	}
	return spot*normCDF(d1) - strike*df*normCDF(d2)
}

// Delta returns dPrice/dSpot.
func Delta(t models.OptionType, spot, strike, years, rate, sigma float64) float64 {
	if years <= 0 || sigma <= 0 {
		switch {
		case t == models.Call && spot > strike:
			return 1
		case t == models.Put && spot < strike:
			return -1
		}
		return 0
	}
	d1, _ := d(spot, strike, years, rate, sigma)
	if t == models.Put {
		return normCDF(d1) - 1
	}
	return normCDF(d1)
}

// Vega returns dPrice/dSigma.
func Vega(spot, strike, years, rate, sigma float64) float64 {
	if years <= 0 || sigma <= 0 {
		return 0
	}
	d1, _ := d(spot, strike, years, rate, sigma)
	return spot * normPDF(d1) * math.Sqrt(years)
}

// ImpliedVol solves for the volatility that reproduces price using
// Newton-Raphson.
func ImpliedVol(t models.OptionType, spot, strike, years, rate, price float64) (float64, error) {
	if years <= 0 {
		return 0, fmt.Errorf("invalid expiry")
	}

	sigma := 0.20
	const (
		maxIter = 100
		tol     = 1e-6
	)
	for i := 0; i < maxIter; i++ {
		diff := Price(t, spot, strike, years, rate, sigma) - price
		if math.Abs(diff) < tol {
			return sigma, nil
		}
		vega := Vega(spot, strike, years, rate, sigma)
		if vega < 1e-8 {
			break
		}
		sigma -= diff / vega
		if sigma <= 0 {
			sigma = 1e-4
		}
		if sigma > 5 {
			sigma = 5
		}
	}
	return 0, fmt.Errorf("implied vol did not converge")
}

// YearsToExpiry returns the time from now to expiry as a year fraction.
// Expiry is taken as the 15:30 IST close on the expiry date.
func YearsToExpiry(now, expiry time.Time) float64 {
	ist := time.FixedZone("IST", 5*60*60+30*60)
	y, m, dd := expiry.Date()
	closeAt := time.Date(y, m, dd, 15, 30, 0, 0, ist)
	mins := closeAt.Sub(now).Minutes()
	if mins <= 0 {
		return 0
	}
	return mins / minutesPerYear
}

// RoundTick rounds a premium to the nearest tick.
func RoundTick(p float64) float64 {
	return math.Round(p/TickSize) * TickSize
}

func d(spot, strike, years, rate, sigma float64) (float64, float64) {
	sq := sigma * math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*years) / sq
	return d1, d1 - sq
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
