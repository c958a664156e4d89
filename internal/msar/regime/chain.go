// Package regime implements the discrete Markov process driving a
// switching autoregression: transition-matrix validation, steady-state
// initial distributions, the Hamilton filter over joint regime histories
// and the Kim smoother.
package regime

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// RowSumTolerance bounds how far a transition row or probability
	// vector may drift from summing to one before it is rejected.
	RowSumTolerance = 1e-8

	// rankEpsilon is the singular value cutoff for pseudo-inverse solves.
	rankEpsilon = 1e-12
)

// Chain is a time-invariant regime process. The transition matrix is
// row-stochastic: Transition().At(i, j) is the probability of moving to
// regime j given the current regime is i. Transition probabilities are
// configuration, not estimated quantities.
type Chain struct {
	k          int
	transition *mat.Dense
	initial    []float64
}

// NewChain validates transition (square, entries in [0, 1], rows summing
// to one) and returns a chain whose pre-sample regime follows the
// steady-state distribution of the matrix.
func NewChain(transition *mat.Dense) (*Chain, error) {
	r, c := transition.Dims()
	if r != c || r < 1 {
		return nil, fmt.Errorf("regime: transition matrix must be square, got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			p := transition.At(i, j)
			if p < 0 || p > 1 || math.IsNaN(p) {
				return nil, fmt.Errorf("regime: transition[%d][%d] = %v is not a probability", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > RowSumTolerance {
			return nil, fmt.Errorf("regime: transition row %d sums to %v, want 1", i, sum)
		}
	}
	pi, err := SteadyState(transition)
	if err != nil {
		return nil, err
	}
	return &Chain{k: r, transition: mat.DenseCopyOf(transition), initial: pi}, nil
}

// NewChainFromRows builds a chain from a row-major transition matrix.
func NewChainFromRows(rows [][]float64) (*Chain, error) {
	k := len(rows)
	if k < 1 {
		return nil, errors.New("regime: transition matrix has no rows")
	}
	transition := mat.NewDense(k, k, nil)
	for i, row := range rows {
		if len(row) != k {
			return nil, fmt.Errorf("regime: transition row %d has %d entries, want %d", i, len(row), k)
		}
		transition.SetRow(i, row)
	}
	return NewChain(transition)
}

// NewUniformChain returns a chain with equal transition probabilities
// between all regimes. Its steady state is the uniform distribution.
func NewUniformChain(k int) *Chain {
	if k < 1 {
		panic(fmt.Sprintf("regime: invalid regime count %d", k))
	}
	p := 1 / float64(k)
	transition := mat.NewDense(k, k, nil)
	initial := make([]float64, k)
	for i := 0; i < k; i++ {
		initial[i] = p
		for j := 0; j < k; j++ {
			transition.Set(i, j, p)
		}
	}
	return &Chain{k: k, transition: transition, initial: initial}
}

// Regimes returns the number of regimes.
func (c *Chain) Regimes() int { return c.k }

// Transition returns a copy of the transition matrix.
func (c *Chain) Transition() *mat.Dense { return mat.DenseCopyOf(c.transition) }

// Initial returns a copy of the pre-sample regime distribution.
func (c *Chain) Initial() []float64 {
	return append([]float64(nil), c.initial...)
}

// SetInitial replaces the pre-sample regime distribution, overriding the
// steady-state default.
func (c *Chain) SetInitial(pi []float64) error {
	if len(pi) != c.k {
		return fmt.Errorf("regime: initial distribution has %d entries, want %d", len(pi), c.k)
	}
	sum := 0.0
	for i, p := range pi {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("regime: initial[%d] = %v is not a probability", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > RowSumTolerance {
		return fmt.Errorf("regime: initial distribution sums to %v, want 1", sum)
	}
	c.initial = append([]float64(nil), pi...)
	return nil
}

// SteadyState solves for the stationary distribution of a row-stochastic
// transition matrix: the pi with pi = P'pi and sum(pi) = 1, computed as
// the least-squares solution of the augmented system [I - P'; 1']pi = e.
func SteadyState(transition mat.Matrix) ([]float64, error) {
	k, _ := transition.Dims()
	a := mat.NewDense(k+1, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := -transition.At(j, i)
			if i == j {
				v++
			}
			a.Set(i, j, v)
		}
	}
	for j := 0; j < k; j++ {
		a.Set(k, j, 1)
	}
	b := mat.NewVecDense(k+1, nil)
	b.SetVec(k, 1)

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("regime: steady-state SVD did not converge")
	}
	rank := svd.Rank(rankEpsilon)
	if rank == 0 {
		return nil, errors.New("regime: steady-state system has rank zero")
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)

	pi := make([]float64, k)
	for j := 0; j < k; j++ {
		pi[j] = x.AtVec(j)
		if pi[j] < 0 {
			// Round-off can push near-zero entries slightly negative.
			pi[j] = 0
		}
	}
	sum := floats.Sum(pi)
	if sum <= 0 || math.IsNaN(sum) {
		return nil, errors.New("regime: steady-state solve produced an invalid distribution")
	}
	floats.Scale(1/sum, pi)
	return pi, nil
}
