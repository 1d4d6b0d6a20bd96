package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"options-dashboard/pkg/utils"
)

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	amount = math.Round(amount*100) / 100
	if amount == 0 {
		amount = 0 // drop the sign of -0
	}
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := "₹" + formatIndianNumber(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatIndianCurrency(pnl)
	if pnl >= 0.005 {
		return "+" + formatted
	}
	return formatted
}

// FormatCompact formats a number in compact form (L/Cr).
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 10000000:
		return fmt.Sprintf("%.2f Cr", amount/10000000)
	case abs >= 100000:
		return fmt.Sprintf("%.2f L", amount/100000)
	}
	return FormatIndianCurrency(amount)
}

// FormatPremium formats an option premium. A missing quote prints as "-".
func FormatPremium(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

// FormatStrike formats a strike or spot level with Indian grouping.
func FormatStrike(v float64) string {
	whole := math.Round(v)
	if math.Abs(v-whole) > 1e-9 {
		i, f, _ := strings.Cut(strconv.FormatFloat(v, 'f', 2, 64), ".")
		return formatSigned(i) + "." + f
	}
	return formatSigned(strconv.FormatFloat(whole, 'f', 0, 64))
}

func formatSigned(s string) string {
	if strings.HasPrefix(s, "-") {
		return "-" + formatIndianNumber(s[1:])
	}
	return formatIndianNumber(s)
}

// FormatTime formats a time in IST.
func FormatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return "never"
	}
	if layout == "" {
		layout = "15:04:05"
	}
	return t.In(utils.IndiaLocation).Format(layout)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
