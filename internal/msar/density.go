package msar

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/markovswitch/internal/msar/tensor"
)

// ErrNonPositiveVariance reports a parameter vector whose variance block
// is not strictly positive. It marks the proposed point as invalid; the
// data and model configuration are not at fault.
var ErrNonPositiveVariance = errors.New("msar: non-positive variance")

// ConditionalDensities evaluates the Gaussian observation density of
// every joint regime history at every scored observation,
//
//	f = exp(-r^2 / 2s2) / sqrt(2 pi s2)
//
// with the variance s2 taken from the history's leading regime when the
// variance switches. The densities are written in place over the
// residual tensor.
func (m *Model) ConditionalDensities(params []float64) (*tensor.Dense, error) {
	if err := m.checkParams(params); err != nil {
		return nil, err
	}
	lo, hi := m.layout.Block(BlockVariance)
	for p := lo; p < hi; p++ {
		if !(params[p] > 0) || math.IsInf(params[p], 1) {
			return nil, fmt.Errorf("%w: %s = %v", ErrNonPositiveVariance, m.layout.Name(p), params[p])
		}
	}

	dens, err := m.Residuals(params)
	if err != nil {
		return nil, err
	}
	head := dens.Histories() / m.k
	for i := 0; i < m.k; i++ {
		s2 := m.layout.Gather(params, BlockVariance, i)[0]
		scale := 1 / math.Sqrt(2*math.Pi*s2)
		inv := 0.5 / s2
		for h := i * head; h < (i+1)*head; h++ {
			row := dens.Row(h)
			for t, r := range row {
				row[t] = scale * math.Exp(-r*r*inv)
			}
		}
	}
	return dens, nil
}
