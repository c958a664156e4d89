package msar

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markovswitch/internal/msar/tensor"
)

// Residuals computes the one-step prediction residual of every joint
// regime history at every scored observation. Entry (h, t) assumes the
// current observation was generated in the history's leading regime and
// each lagged observation in the regime occupying its axis:
//
//	r = y_t - x_t b_i - sum_j phi_{i,j} (y_{t-j} - x_{t-j} b_{m_j})
//
// The tensor is rebuilt on every call; nothing is cached across
// parameter vectors.
func (m *Model) Residuals(params []float64) (*tensor.Dense, error) {
	if err := m.checkParams(params); err != nil {
		return nil, err
	}

	// Fitted design values per regime over the full sample. Lagged
	// observations need the pre-sample rows, so the trimmed design is
	// not enough here.
	var xb [][]float64
	if m.kDesign > 0 {
		xb = make([][]float64, m.k)
		for i := 0; i < m.k; i++ {
			beta := append(m.layout.Gather(params, BlockTrend, i), m.layout.Gather(params, BlockExog, i)...)
			var fit mat.VecDense
			fit.MulVec(m.origDesign, mat.NewVecDense(len(beta), beta))
			xb[i] = mat.Col(nil, 0, &fit)
		}
	}

	resid := m.residTensor()
	resid.FillSeries(m.endog)

	nfull := len(m.origEndog)
	mask := make([]int, m.order+1)
	scratch := make([]float64, m.nobs)
	for i := 0; i < m.k; i++ {
		for x := range mask {
			mask[x] = tensor.Wildcard
		}
		mask[0] = i
		if m.kDesign > 0 {
			resid.SubScaled(mask, 1, xb[i][m.order:])
		}

		ar := m.layout.Gather(params, BlockAR, i)
		for j := 1; j <= m.order; j++ {
			lagged := m.origEndog[m.order-j : nfull-j]
			for prior := 0; prior < m.k; prior++ {
				for x := range mask {
					mask[x] = tensor.Wildcard
				}
				mask[0] = i
				mask[j] = prior
				if m.kDesign > 0 {
					floats.SubTo(scratch, lagged, xb[prior][m.order-j:nfull-j])
					resid.SubScaled(mask, ar[j-1], scratch)
				} else {
					resid.SubScaled(mask, ar[j-1], lagged)
				}
			}
		}
	}
	return resid, nil
}
