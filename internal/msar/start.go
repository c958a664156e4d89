package msar

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// StartParams produces the default starting point for estimation: a
// pooled least-squares fit of the trend, exogenous and lagged regressors
// over the whole sample. Switching blocks replicate the pooled estimate
// scaled by i/k per regime, which breaks the label symmetry of the
// likelihood; switching variances spread evenly from a tenth of the
// pooled residual variance up to it.
func (m *Model) StartParams() ([]float64, error) {
	params := make([]float64, m.layout.NumParams())

	cols := m.kDesign + m.order
	var beta []float64
	var pooled float64
	if cols > 0 {
		x := mat.NewDense(m.nobs, cols, nil)
		for t := 0; t < m.nobs; t++ {
			for j := 0; j < m.kDesign; j++ {
				x.Set(t, j, m.design.At(t, j))
			}
			for j := 0; j < m.order; j++ {
				x.Set(t, m.kDesign+j, m.lagged.At(t, j))
			}
		}
		var err error
		beta, err = pinvSolve(x, mat.NewVecDense(m.nobs, m.Endog()))
		if err != nil {
			return nil, err
		}
		resid := m.Endog()
		var fit mat.VecDense
		fit.MulVec(x, mat.NewVecDense(cols, beta))
		floats.Sub(resid, mat.Col(nil, 0, &fit))
		pooled = populationVariance(resid)
	} else {
		pooled = populationVariance(m.endog)
	}

	nTrend := len(m.switchingTrend)
	m.scatterStart(params, BlockTrend, beta[:nTrend], m.switchingTrend)
	m.scatterStart(params, BlockExog, beta[nTrend:m.kDesign], m.switchingExog)
	m.scatterStart(params, BlockAR, beta[m.kDesign:], m.switchingAR)

	if m.switchingVariance {
		vs := make([]float64, m.k)
		if m.k == 1 {
			vs[0] = pooled / 10
		} else {
			floats.Span(vs, pooled/10, pooled)
		}
		for i := 0; i < m.k; i++ {
			m.layout.Scatter(params, BlockVariance, i, vs[i:i+1])
		}
	} else {
		m.layout.Scatter(params, BlockVariance, 0, []float64{pooled})
	}
	return params, nil
}

// scatterStart writes a pooled block estimate into params, scaling by
// i/k per regime when any coefficient in the block switches.
func (m *Model) scatterStart(params []float64, b Block, vals []float64, switching []bool) {
	if len(vals) == 0 {
		return
	}
	if !anyTrue(switching) {
		m.layout.Scatter(params, b, 0, vals)
		return
	}
	scaled := make([]float64, len(vals))
	for i := 0; i < m.k; i++ {
		floats.ScaleTo(scaled, float64(i)/float64(m.k), vals)
		m.layout.Scatter(params, b, i, scaled)
	}
}

// populationVariance is the mean squared deviation with an N
// denominator, not the sample estimator.
func populationVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := floats.Sum(xs) / float64(len(xs))
	s := 0.0
	for _, x := range xs {
		d := x - mean
		s += d * d
	}
	return s / float64(len(xs))
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}
