// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// probTolerance bounds how far a probability row may drift from summing
// to one before a test fails.
const probTolerance = 1e-8

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertAllFinite checks that no value is NaN or infinite.
func AssertAllFinite(t *testing.T, xs []float64) {
	t.Helper()
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("value %d = %v, want finite", i, x)
		}
	}
}

// AssertProbabilityRows checks that every row is a probability
// distribution: entries in [0, 1] and summing to one.
func AssertProbabilityRows(t *testing.T, rows [][]float64) {
	t.Helper()
	for i, row := range rows {
		sum := 0.0
		for j, p := range row {
			if math.IsNaN(p) || p < -probTolerance || p > 1+probTolerance {
				t.Fatalf("row %d entry %d = %v, want a probability", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > probTolerance {
			t.Fatalf("row %d sums to %v, want 1", i, sum)
		}
	}
}
