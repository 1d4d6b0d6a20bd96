// Package symbol decodes and builds index option trading symbols such as
// NIFTY24DEC22000CE or SENSEX2510380000PE.
package symbol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
)

const monthNames = "JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC"

// pattern is tried against the whole symbol. Group 1 is the expiry code,
// group 2 the strike, group 3 the CE/PE tag.
type pattern struct {
	underlying models.Underlying
	re         *regexp.Regexp
}

func compile(prefix, weeklyMonth string) *regexp.Regexp {
	expiry := `\d{2}(?:` + monthNames + `)|\d{2}` + weeklyMonth + `\d{2}`
	return regexp.MustCompile(`^` + prefix + `(` + expiry + `)(\d+)(CE|PE)$`)
}

// Order matters: the first matching pattern wins.
var patterns = []pattern{
	{models.BANKNIFTY, compile("BANKNIFTY", `[1-9A-Z]`)},
	{models.NIFTY, compile("NIFTY", `[1-9A-Z]`)},
	{models.SENSEX, compile("SENSEX", `[1-9OND]`)},
}

// Parse decodes a trading symbol into contract terms. Symbols that match no
// known underlying, or whose strike is not on the underlying's strike grid,
// yield a *errors.ParseError.
func Parse(s string) (models.ContractTerms, error) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}

		strike, err := strconv.Atoi(m[2])
		if err != nil {
			return models.ContractTerms{}, errors.NewParseError(s, "strike out of range")
		}
		if strike <= 0 {
			return models.ContractTerms{}, errors.NewParseError(s, "strike must be positive")
		}
		if step := p.underlying.Contract().StrikeStep; strike%step != 0 {
			return models.ContractTerms{}, errors.NewParseError(s, fmt.Sprintf("strike %d not a multiple of %d", strike, step))
		}

		typ := models.Call
		if m[3] == "PE" {
			typ = models.Put
		}

		return models.ContractTerms{
			Underlying: p.underlying,
			Expiry:     m[1],
			Strike:     strike,
			Type:       typ,
		}, nil
	}
	return models.ContractTerms{}, errors.NewParseError(s, "no matching underlying pattern")
}

// Format builds the trading symbol for terms. It is the inverse of Parse.
func Format(terms models.ContractTerms) string {
	return string(terms.Underlying) + terms.Expiry + strconv.Itoa(terms.Strike) + terms.Type.Tag()
}

// UnderlyingOf returns the index a symbol is written against, judged by
// prefix alone.
func UnderlyingOf(s string) (models.Underlying, bool) {
	for _, u := range []models.Underlying{models.BANKNIFTY, models.NIFTY, models.SENSEX} {
		if strings.HasPrefix(s, string(u)) {
			return u, true
		}
	}
	return "", false
}

// weeklyMonth is the single-character month used by exchange weekly codes.
var weeklyMonth = [...]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "O", "N", "D"}

// ExpiryCode renders an expiry date the way exchanges embed it in symbols:
// YYMMM for monthly contracts and YYMDD for weeklies.
func ExpiryCode(expiry time.Time, monthly bool) string {
	if monthly {
		return strings.ToUpper(expiry.Format("06Jan"))
	}
	return expiry.Format("06") + weeklyMonth[expiry.Month()-1] + expiry.Format("02")
}

// IsMonthlyExpiry reports whether expiry is the last expiry weekday of its
// month, which is when exchanges switch to the monthly symbol form.
func IsMonthlyExpiry(expiry time.Time) bool {
	return expiry.AddDate(0, 0, 7).Month() != expiry.Month()
}

// ExpiryDate decodes an expiry code back to a date. Monthly codes carry no
// day, so they resolve to the last expiry weekday of the month.
func ExpiryDate(code string, weekday time.Weekday) (time.Time, error) {
	if len(code) != 5 {
		return time.Time{}, fmt.Errorf("invalid expiry code %q", code)
	}
	yy, err := strconv.Atoi(code[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry year in %q", code)
	}
	year := 2000 + yy

	if t, err := time.Parse("Jan", code[2:3]+strings.ToLower(code[3:])); err == nil {
		last := time.Date(year, t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		back := (int(last.Weekday()) - int(weekday) + 7) % 7
		return last.AddDate(0, 0, -back), nil
	}

	month := 0
	for i, m := range weeklyMonth {
		if m == code[2:3] {
			month = i + 1
		}
	}
	day, err := strconv.Atoi(code[3:])
	if month == 0 || err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry code %q", code)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("invalid expiry day in %q", code)
	}
	return d, nil
}
