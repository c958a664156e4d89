package msar

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/markovswitch/internal/msar/regime"
)

// SimConfig describes a regime-switching autoregression to draw from.
// Per-regime slices must share one length, the regime count; AR rows
// share one length, the order (possibly zero).
type SimConfig struct {
	// Nobs is the number of returned observations.
	Nobs int

	// Const, AR and StdDev are the per-regime intercepts, autoregressive
	// coefficients and innovation standard deviations.
	Const  []float64
	AR     [][]float64
	StdDev []float64

	// Transition is the row-stochastic regime transition matrix.
	Transition [][]float64

	// Burn observations are generated and discarded ahead of the sample
	// so the zero-valued startup washes out.
	Burn int

	// Seed fixes the generator; equal seeds reproduce the draw exactly.
	Seed uint64
}

// DefaultSimConfig returns a persistent two-regime AR(1) with separated
// means and variances and a 200-observation sample.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Nobs:       200,
		Const:      []float64{0.5, -0.8},
		AR:         [][]float64{{0.6}, {0.2}},
		StdDev:     []float64{0.4, 1.1},
		Transition: [][]float64{{0.95, 0.05}, {0.1, 0.9}},
		Burn:       50,
		Seed:       1,
	}
}

// Simulate draws a series and its generating regime path from cfg. The
// regime at each step is drawn from the transition row of the previous
// regime; the observation follows the switching autoregression
// y_t = c_i + sum_j phi_{i,j} (y_{t-j} - c_{m_j}) + s_i e_t.
func Simulate(cfg SimConfig) (series []float64, states []int, err error) {
	k := len(cfg.Const)
	if k == 0 {
		return nil, nil, errors.New("msar: simulation needs at least one regime")
	}
	if len(cfg.AR) != k || len(cfg.StdDev) != k || len(cfg.Transition) != k {
		return nil, nil, fmt.Errorf("msar: per-regime slices disagree on the regime count (const=%d ar=%d stddev=%d transition=%d)",
			k, len(cfg.AR), len(cfg.StdDev), len(cfg.Transition))
	}
	order := len(cfg.AR[0])
	for i, row := range cfg.AR {
		if len(row) != order {
			return nil, nil, fmt.Errorf("msar: AR row %d has %d coefficients, want %d", i, len(row), order)
		}
	}
	for i, sd := range cfg.StdDev {
		if !(sd > 0) {
			return nil, nil, fmt.Errorf("msar: stddev for regime %d is %v, want positive", i, sd)
		}
	}
	for i, row := range cfg.Transition {
		if len(row) != k {
			return nil, nil, fmt.Errorf("msar: transition row %d has %d entries, want %d", i, len(row), k)
		}
		sum := 0.0
		for j, p := range row {
			if p < 0 || p > 1 || math.IsNaN(p) {
				return nil, nil, fmt.Errorf("msar: transition[%d][%d] = %v is not a probability", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > regime.RowSumTolerance {
			return nil, nil, fmt.Errorf("msar: transition row %d sums to %v, want 1", i, sum)
		}
	}
	if cfg.Nobs <= 0 {
		return nil, nil, fmt.Errorf("msar: Nobs must be positive, got %d", cfg.Nobs)
	}
	if cfg.Burn < 0 {
		return nil, nil, fmt.Errorf("msar: Burn must be non-negative, got %d", cfg.Burn)
	}

	src := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	total := cfg.Burn + cfg.Nobs
	series = make([]float64, total)
	states = make([]int, total)
	state := src.IntN(k)
	for t := 0; t < total; t++ {
		if t > 0 {
			state = drawState(cfg.Transition[state], src)
		}
		mean := cfg.Const[state]
		for j := 1; j <= order; j++ {
			if t-j >= 0 {
				mean += cfg.AR[state][j-1] * (series[t-j] - cfg.Const[states[t-j]])
			}
		}
		normal.Sigma = cfg.StdDev[state]
		series[t] = mean + normal.Rand()
		states[t] = state
	}
	return series[cfg.Burn:], states[cfg.Burn:], nil
}

// drawState samples from one transition row.
func drawState(row []float64, src *rand.Rand) int {
	u := src.Float64()
	acc := 0.0
	for j, p := range row {
		acc += p
		if u < acc {
			return j
		}
	}
	return len(row) - 1
}
