package utils

import (
	"testing"
	"time"
)

func at(day, hour, minute int) time.Time {
	// December 2024: the 16th is a Monday.
	return time.Date(2024, time.December, day, hour, minute, 0, 0, IndiaLocation)
}

func TestMarketStatusAt(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want MarketStatus
	}{
		{"before pre-open", at(16, 8, 59), MarketClosed},
		{"pre-open", at(16, 9, 5), MarketPreOpen},
		{"open", at(16, 9, 15), MarketOpen},
		{"last minute", at(16, 15, 29), MarketOpen},
		{"close", at(16, 15, 30), MarketClosed},
		{"saturday", at(21, 11, 0), MarketClosed},
		{"utc input", time.Date(2024, time.December, 16, 4, 0, 0, 0, time.UTC), MarketOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarketStatusAt(tt.t); got != tt.want {
				t.Errorf("MarketStatusAt(%v) = %s, want %s", tt.t, got, tt.want)
			}
		})
	}
	if !IsMarketOpen(at(17, 12, 0)) {
		t.Error("expected market open on Tuesday noon")
	}
}

func TestAfterClose(t *testing.T) {
	if AfterClose(at(19, 15, 29)) {
		t.Error("15:29 is before the close")
	}
	if !AfterClose(at(19, 15, 30)) {
		t.Error("15:30 is the close")
	}
}

func TestNextMarketOpen(t *testing.T) {
	if got, want := NextMarketOpen(at(16, 8, 0)), at(16, 9, 15); !got.Equal(want) {
		t.Errorf("same morning: got %v, want %v", got, want)
	}
	if got, want := NextMarketOpen(at(16, 10, 0)), at(17, 9, 15); !got.Equal(want) {
		t.Errorf("next day: got %v, want %v", got, want)
	}
	if got, want := NextMarketOpen(at(20, 16, 0)), at(23, 9, 15); !got.Equal(want) {
		t.Errorf("over the weekend: got %v, want %v", got, want)
	}
}
