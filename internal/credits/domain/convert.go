package domain

import "math"

// BillingConfig describes how raw usage amounts convert into credits.
// Zero values mean "no scaling" for that stage.
type BillingConfig struct {
	// UnitDivisor converts a raw amount into billable units,
	// e.g. 1000 turns milliseconds into seconds.
	UnitDivisor float64
	// UnitsPerCredit is how many billable units one credit buys.
	UnitsPerCredit float64
}

// ToCredits converts a raw usage amount into credits, rounding up so a
// partially used credit is always charged in full.
func ToCredits(amount float64, cfg BillingConfig) Credits {
	if amount <= 0 {
		return 0
	}

	divisor := cfg.UnitDivisor
	if divisor <= 0 {
		divisor = 1
	}
	perCredit := cfg.UnitsPerCredit
	if perCredit <= 0 {
		perCredit = 1
	}

	units := amount / divisor
	return Credits(math.Ceil(units / perCredit))
}
