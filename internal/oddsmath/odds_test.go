package oddsmath_test

import (
	"math"
	"testing"

	"github.com/alanyoungcy/oddsarb/internal/oddsmath"
)

const tol = 1e-9

func TestImpliedProbabilityRoundTrip(t *testing.T) {
	prices := []float64{1.01, 1.5, 2.0, 2.1, 3.75, 10.0, 101.0}
	for _, p := range prices {
		q, err := oddsmath.ImpliedProbability(p)
		if err != nil {
			t.Fatalf("ImpliedProbability(%g): %v", p, err)
		}
		back, err := oddsmath.PriceFromProbability(q)
		if err != nil {
			t.Fatalf("PriceFromProbability(%g): %v", q, err)
		}
		if math.Abs(back-p) > tol {
			t.Errorf("round trip %g -> %g -> %g", p, q, back)
		}
	}
}

func TestImpliedProbabilityRejectsInvalidPrices(t *testing.T) {
	for _, p := range []float64{1.0, 0.99, 0, -2.5} {
		if _, err := oddsmath.ImpliedProbability(p); err == nil {
			t.Errorf("ImpliedProbability(%g): expected error", p)
		}
	}
}

func TestBookSum(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"two-outcome arb", []float64{2.10, 2.05}, 1/2.10 + 1/2.05},
		{"fair coin", []float64{2.0, 2.0}, 1.0},
		{"overround book", []float64{1.90, 1.90}, 2.0 / 1.90},
		{"three-way", []float64{3.0, 3.5, 4.0}, 1/3.0 + 1/3.5 + 1/4.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := oddsmath.BookSum(tt.prices)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > tol {
				t.Errorf("BookSum(%v) = %g, want %g", tt.prices, got, tt.want)
			}
		})
	}

	if _, err := oddsmath.BookSum(nil); err == nil {
		t.Error("BookSum(nil): expected error")
	}
	if _, err := oddsmath.BookSum([]float64{2.0, 1.0}); err == nil {
		t.Error("BookSum with price 1.0: expected error")
	}
}

func TestEdge(t *testing.T) {
	sum, err := oddsmath.BookSum([]float64{2.10, 2.05})
	if err != nil {
		t.Fatal(err)
	}
	edge := oddsmath.Edge(sum)
	if math.Abs(edge-0.0360046) > 1e-6 {
		t.Errorf("edge = %g, want ~0.0360", edge)
	}
	if oddsmath.Edge(1.05) >= 0 {
		t.Error("overround book should have negative edge")
	}
}

func TestParseFractional(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"5/2", 3.5, false},
		{"1/1", 2.0, false},
		{"10/11", 1.9090909090909092, false},
		{" 3/1 ", 4.0, false},
		{"5", 0, true},
		{"0/2", 0, true},
		{"5/0", 0, true},
		{"a/b", 0, true},
	}
	for _, tt := range tests {
		got, err := oddsmath.ParseFractional(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFractional(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFractional(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > tol {
			t.Errorf("ParseFractional(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		american int
		want     float64
	}{
		{100, 2.0},
		{150, 2.5},
		{-110, 1.9090909090909092},
		{-200, 1.5},
	}
	for _, tt := range tests {
		got, err := oddsmath.AmericanToDecimal(tt.american)
		if err != nil {
			t.Fatalf("AmericanToDecimal(%d): %v", tt.american, err)
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("AmericanToDecimal(%d) = %g, want %g", tt.american, got, tt.want)
		}
	}
	if _, err := oddsmath.AmericanToDecimal(0); err == nil {
		t.Error("AmericanToDecimal(0): expected error")
	}
}
