// Package oddsmath provides the probability arithmetic underlying arbitrage
// detection: implied probabilities from decimal odds, book (overround)
// sums, and conversions between common odds formats.
package oddsmath

import (
	"fmt"
	"strings"
)

// ImpliedProbability converts decimal odds to the break-even probability the
// price represents.
// 2.00 → 0.50, 1.25 → 0.80
func ImpliedProbability(price float64) (float64, error) {
	if price <= 1.0 {
		return 0, fmt.Errorf("oddsmath: decimal price must be > 1.0, got %g", price)
	}
	return 1.0 / price, nil
}

// PriceFromProbability converts a probability back to decimal odds. It is the
// inverse of ImpliedProbability.
func PriceFromProbability(probability float64) (float64, error) {
	if probability <= 0 || probability >= 1 {
		return 0, fmt.Errorf("oddsmath: probability must be in (0,1), got %g", probability)
	}
	return 1.0 / probability, nil
}

// BookSum returns the combined implied probability of the given prices.
// Values below 1.0 indicate an arbitrage across the priced outcomes; values
// above 1.0 are the bookmaker's overround.
func BookSum(prices []float64) (float64, error) {
	if len(prices) == 0 {
		return 0, fmt.Errorf("oddsmath: no prices")
	}
	var sum float64
	for _, p := range prices {
		q, err := ImpliedProbability(p)
		if err != nil {
			return 0, err
		}
		sum += q
	}
	return sum, nil
}

// Edge returns the guaranteed profit fraction of a cover with the given
// combined implied probability: 1 - sum. Positive values are profitable.
func Edge(bookSum float64) float64 {
	return 1.0 - bookSum
}

// ParseFractional converts fractional odds like "5/2" to decimal odds.
// "5/2" → 3.5
func ParseFractional(s string) (float64, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, fmt.Errorf("oddsmath: fractional odds %q: missing '/'", s)
	}
	var n, d float64
	if _, err := fmt.Sscanf(num, "%g", &n); err != nil {
		return 0, fmt.Errorf("oddsmath: fractional odds %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(den, "%g", &d); err != nil {
		return 0, fmt.Errorf("oddsmath: fractional odds %q: %w", s, err)
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("oddsmath: fractional odds %q: terms must be positive", s)
	}
	return 1.0 + n/d, nil
}

// AmericanToDecimal converts American odds to decimal odds.
// +150 → 2.50, -150 → 1.667
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("oddsmath: american odds cannot be 0")
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/float64(-american) + 1.0, nil
}
