package msar

import "math"

// constrainStationary maps unconstrained optimizer values to the
// coefficients of a stationary autoregression. Each input is squashed
// into (-1, 1) to act as a partial autocorrelation and the sequence is
// expanded through the Levinson-Durbin recursion, which keeps every root
// of the lag polynomial outside the unit circle. unconstrainStationary
// is the exact inverse on stationary input.
func constrainStationary(unconstrained []float64) []float64 {
	n := len(unconstrained)
	if n == 0 {
		return nil
	}
	r := make([]float64, n)
	for i, u := range unconstrained {
		r[i] = u / math.Sqrt(1+u*u)
	}
	row := make([]float64, n)
	prev := make([]float64, n)
	for k := 0; k < n; k++ {
		for i := 0; i < k; i++ {
			row[i] = prev[i] + r[k]*prev[k-i-1]
		}
		row[k] = r[k]
		copy(prev, row[:k+1])
	}
	out := make([]float64, n)
	for i, v := range row {
		out[i] = -v
	}
	return out
}

// unconstrainStationary recovers the unconstrained values behind a
// stationary coefficient vector by running the Levinson-Durbin recursion
// backwards. Input outside the stationary region yields NaN or Inf.
func unconstrainStationary(constrained []float64) []float64 {
	n := len(constrained)
	if n == 0 {
		return nil
	}
	row := make([]float64, n)
	for i, c := range constrained {
		row[i] = -c
	}
	diag := make([]float64, n)
	buf := make([]float64, n)
	for k := n - 1; k > 0; k-- {
		p := row[k]
		diag[k] = p
		den := 1 - p*p
		for i := 0; i < k; i++ {
			buf[i] = (row[i] - p*row[k-i-1]) / den
		}
		copy(row, buf[:k])
	}
	diag[0] = row[0]

	out := make([]float64, n)
	for i, v := range diag {
		out[i] = v / math.Sqrt(1-v*v)
	}
	return out
}
