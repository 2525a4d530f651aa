package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCreditsRoundsUp(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		cfg    BillingConfig
		want   Credits
	}{
		{
			name:   "exact multiple",
			amount: 100,
			cfg:    BillingConfig{UnitDivisor: 1, UnitsPerCredit: 100},
			want:   1,
		},
		{
			name:   "one unit over rounds up",
			amount: 101,
			cfg:    BillingConfig{UnitDivisor: 1, UnitsPerCredit: 100},
			want:   2,
		},
		{
			name:   "divisor applied before per-credit",
			amount: 1500,
			cfg:    BillingConfig{UnitDivisor: 1000, UnitsPerCredit: 1},
			want:   2,
		},
		{
			name:   "sub-credit amount charges one credit",
			amount: 1,
			cfg:    BillingConfig{UnitDivisor: 1, UnitsPerCredit: 100},
			want:   1,
		},
		{
			name:   "zero config defaults to identity",
			amount: 7,
			cfg:    BillingConfig{},
			want:   7,
		},
		{
			name:   "zero amount is free",
			amount: 0,
			cfg:    BillingConfig{UnitDivisor: 1, UnitsPerCredit: 100},
			want:   0,
		},
		{
			name:   "negative amount is free",
			amount: -5,
			cfg:    BillingConfig{UnitDivisor: 1, UnitsPerCredit: 100},
			want:   0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToCredits(tc.amount, tc.cfg))
		})
	}
}
