package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any amount, FormatIndianCurrency has a ₹ prefix, two decimals, Indian
// digit grouping, and parses back to the rounded value.
func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	indianPattern := regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

	properties.Property("FormatIndianCurrency produces valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)
			rounded := math.Round(amount*100) / 100

			prefix := "₹"
			if rounded < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("Expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(parts[0], prefix)
			if !indianPattern.MatchString(numPart) {
				t.Logf("Invalid Indian format for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatIndianCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)
			parsed := parseIndianCurrency(formatted)
			if diff := math.Abs(parsed - math.Round(amount*100)/100); diff > 0.01 {
				t.Logf("Value not preserved: input=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatCompact uses correct units", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCompact(amount)
			abs := math.Abs(amount)
			switch {
			case abs >= 10000000:
				return strings.HasSuffix(formatted, "Cr")
			case abs >= 100000:
				return strings.HasSuffix(formatted, "L")
			default:
				return strings.Contains(formatted, "₹")
			}
		},
		gen.Float64Range(-1e10, 1e10),
	))

	properties.Property("FormatStrike drops only grouping commas", prop.ForAll(
		func(strike int) bool {
			formatted := FormatStrike(float64(strike))
			return strings.ReplaceAll(formatted, ",", "") == strconv.Itoa(strike)
		},
		gen.IntRange(0, 200000),
	))

	properties.TestingRun(t)
}

// parseIndianCurrency parses an Indian currency formatted string back to float64.
func parseIndianCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		parsed = -parsed
	}
	return parsed
}

func TestIndianNumberFormatCases(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{1, "₹1.00"},
		{100, "₹100.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},
		{10000000, "₹1,00,00,000.00"},
		{-1234.56, "-₹1,234.56"},
		{12345678.90, "₹1,23,45,678.90"},
		{-0.001, "₹0.00"},
		{-0.004, "₹0.00"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := FormatIndianCurrency(tc.amount); result != tc.expected {
				t.Errorf("FormatIndianCurrency(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestFormatPnLCases(t *testing.T) {
	testCases := []struct {
		pnl      float64
		expected string
	}{
		{4500, "+₹4,500.00"},
		{-950, "-₹950.00"},
		{0, "₹0.00"},
		{-0.003, "₹0.00"},
	}
	for _, tc := range testCases {
		if result := FormatPnL(tc.pnl); result != tc.expected {
			t.Errorf("FormatPnL(%f) = %s, want %s", tc.pnl, result, tc.expected)
		}
	}
}

func TestFormatStrikeAndPremium(t *testing.T) {
	if got := FormatStrike(22000); got != "22,000" {
		t.Errorf("FormatStrike(22000) = %s", got)
	}
	if got := FormatStrike(80012.5); got != "80,012.50" {
		t.Errorf("FormatStrike(80012.5) = %s", got)
	}
	if got := FormatPremium(nil); got != "-" {
		t.Errorf("FormatPremium(nil) = %s", got)
	}
	p := 123.456
	if got := FormatPremium(&p); got != "123.46" {
		t.Errorf("FormatPremium = %s", got)
	}
}

func TestFormatTime(t *testing.T) {
	utc := time.Date(2024, time.December, 16, 4, 30, 0, 0, time.UTC)
	if got := FormatTime(utc, ""); got != "10:00:00" {
		t.Errorf("FormatTime = %s, want IST 10:00:00", got)
	}
	if got := FormatTime(time.Time{}, ""); got != "never" {
		t.Errorf("FormatTime(zero) = %s", got)
	}
}
