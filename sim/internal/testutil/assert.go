// Package testutil provides shared assertion helpers for kmcsim tests.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertWithinSigma checks that a sample mean lies within k standard errors
// of want, given the sample standard deviation and size.
func AssertWithinSigma(t *testing.T, name string, want, mean, stdDev float64, n int, k float64) {
	t.Helper()
	if n <= 0 {
		t.Fatalf("%s: empty sample", name)
	}
	se := stdDev / math.Sqrt(float64(n))
	if math.Abs(mean-want) > k*se {
		t.Errorf("%s: mean %v is %.1f standard errors from %v (se=%v)", name, mean, math.Abs(mean-want)/se, want, se)
	}
}
