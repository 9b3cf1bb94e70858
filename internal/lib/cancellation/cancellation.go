// Package cancellation computes cancellation fees and refunds from the time
// left before a booking's service date.
package cancellation

import "time"

type Quote struct {
	DaysBeforeDeparture int   `json:"days_before_departure"`
	FeePercent          int64 `json:"fee_percent"`
	Fee                 int64 `json:"fee"`
	RefundAmount        int64 `json:"refund_amount"`
}

// FeePercent returns the fee tier for the given whole days before departure.
func FeePercent(days int) int64 {
	switch {
	case days > 7:
		return 10
	case days >= 3:
		return 25
	case days >= 1:
		return 50
	default:
		return 100
	}
}

// DaysBefore counts whole 24h periods between now and departure, rounding
// towards negative infinity so past departures are negative.
func DaysBefore(now, departure time.Time) int {
	d := departure.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}

	return days
}

// Compute builds a quote for a total expressed in minor currency units.
func Compute(now, departure time.Time, total int64) Quote {
	days := DaysBefore(now, departure)
	pct := FeePercent(days)

	fee := (total*pct + 50) / 100
	if fee > total {
		fee = total
	}

	return Quote{
		DaysBeforeDeparture: days,
		FeePercent:          pct,
		Fee:                 fee,
		RefundAmount:        total - fee,
	}
}
