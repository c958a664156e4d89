package msar

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markovswitch/internal/msar/regime"
)

// rankEpsilon is the singular value cutoff for pseudo-inverse solves.
const rankEpsilon = 1e-12

// pinvSolve returns the minimum-norm least-squares solution of a x = b.
// Rank deficiency is not an error; a rank-zero system yields the zero
// vector, leaving degenerate regression steps harmless.
func pinvSolve(a mat.Matrix, b *mat.VecDense) ([]float64, error) {
	_, c := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("msar: least-squares SVD did not converge")
	}
	rank := svd.Rank(rankEpsilon)
	if rank == 0 {
		return make([]float64, c), nil
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	return mat.Col(nil, 0, &x), nil
}

// EMIteration performs one expectation-maximization pass at params. The
// E-step smooths the regime probabilities; the M-step re-estimates the
// design coefficients, autoregressive coefficients and variances from
// weighted least-squares problems. The transition matrix is fixed
// configuration and is never re-estimated. The input vector is not
// modified.
//
// The returned smoother output belongs to the input parameters, so its
// log-likelihood lags the returned vector by one iteration.
func (m *Model) EMIteration(params []float64) (*regime.SmoothResult, []float64, error) {
	if err := m.checkParams(params); err != nil {
		return nil, nil, err
	}
	sm, err := m.Smooth(params)
	if err != nil {
		return nil, nil, err
	}
	next := append([]float64(nil), params...)

	probs := sm.SmoothedMarginal
	sqrtProbs := mat.NewDense(m.k, m.nobs, nil)
	for i := 0; i < m.k; i++ {
		for t := 0; t < m.nobs; t++ {
			sqrtProbs.Set(i, t, math.Sqrt(probs.At(i, t)))
		}
	}

	var coeffs *mat.Dense
	if m.kDesign > 0 {
		coeffs, err = m.emDesign(sqrtProbs)
		if err != nil {
			return nil, nil, err
		}
		nTrend := len(m.switchingTrend)
		for i := 0; i < m.k; i++ {
			row := mat.Row(nil, i, coeffs)
			m.layout.Scatter(next, BlockTrend, i, row[:nTrend])
			m.layout.Scatter(next, BlockExog, i, row[nTrend:])
		}
	}

	if m.order > 0 {
		ar, variance, err := m.emAutoregressive(probs, sqrtProbs, coeffs)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < m.k; i++ {
			m.layout.Scatter(next, BlockAR, i, mat.Row(nil, i, ar))
		}
		m.scatterVariance(next, variance)
	} else {
		m.scatterVariance(next, m.emVariance(probs, sqrtProbs, coeffs))
	}
	return sm, next, nil
}

func (m *Model) scatterVariance(dst, variance []float64) {
	if m.switchingVariance {
		for i := 0; i < m.k; i++ {
			m.layout.Scatter(dst, BlockVariance, i, variance[i:i+1])
		}
		return
	}
	m.layout.Scatter(dst, BlockVariance, 0, variance[:1])
}

// emDesign re-estimates the trend and exogenous coefficients. Shared
// columns are fitted first by pooled least squares and their fit removed
// from the response; switching columns are then fitted per regime under
// the square-root probability weights.
func (m *Model) emDesign(sqrtProbs *mat.Dense) (*mat.Dense, error) {
	sw := append(append([]bool(nil), m.switchingTrend...), m.switchingExog...)
	var sharedCols, switchCols []int
	for j, s := range sw {
		if s {
			switchCols = append(switchCols, j)
		} else {
			sharedCols = append(sharedCols, j)
		}
	}

	coeffs := mat.NewDense(m.k, m.kDesign, nil)
	endog := append([]float64(nil), m.endog...)

	if len(sharedCols) > 0 {
		xs := m.designColumns(sharedCols)
		beta, err := pinvSolve(xs, mat.NewVecDense(m.nobs, append([]float64(nil), endog...)))
		if err != nil {
			return nil, err
		}
		for n, j := range sharedCols {
			for i := 0; i < m.k; i++ {
				coeffs.Set(i, j, beta[n])
			}
		}
		var fit mat.VecDense
		fit.MulVec(xs, mat.NewVecDense(len(beta), beta))
		floats.Sub(endog, mat.Col(nil, 0, &fit))
	}

	if len(switchCols) > 0 {
		xs := m.designColumns(switchCols)
		wx := mat.NewDense(m.nobs, len(switchCols), nil)
		wy := mat.NewVecDense(m.nobs, nil)
		for i := 0; i < m.k; i++ {
			for t := 0; t < m.nobs; t++ {
				w := sqrtProbs.At(i, t)
				wy.SetVec(t, w*endog[t])
				for n := range switchCols {
					wx.Set(t, n, w*xs.At(t, n))
				}
			}
			beta, err := pinvSolve(wx, wy)
			if err != nil {
				return nil, err
			}
			for n, j := range switchCols {
				coeffs.Set(i, j, beta[n])
			}
		}
	}
	return coeffs, nil
}

// designColumns copies the selected trimmed design columns into a new
// matrix.
func (m *Model) designColumns(cols []int) *mat.Dense {
	out := mat.NewDense(m.nobs, len(cols), nil)
	for n, j := range cols {
		for t := 0; t < m.nobs; t++ {
			out.Set(t, n, m.design.At(t, j))
		}
	}
	return out
}

// emAutoregressive re-estimates the autoregressive coefficients and the
// innovation variance. Each regime's regression runs on its own
// design-adjusted copy of the full sample, so lagged regressors exist
// for every scored observation.
func (m *Model) emAutoregressive(probs, sqrtProbs, coeffs *mat.Dense) (*mat.Dense, []float64, error) {
	ar := mat.NewDense(m.k, m.order, nil)
	variance := make([]float64, m.k)

	lag := mat.NewDense(m.nobs, m.order, nil)
	wx := mat.NewDense(m.nobs, m.order, nil)
	wy := mat.NewVecDense(m.nobs, nil)
	for i := 0; i < m.k; i++ {
		// Regime-adjusted series: the raw sample minus this regime's
		// fitted design values.
		adjusted := append([]float64(nil), m.origEndog...)
		if m.kDesign > 0 {
			var fit mat.VecDense
			fit.MulVec(m.origDesign, mat.NewVecDense(m.kDesign, mat.Row(nil, i, coeffs)))
			floats.Sub(adjusted, mat.Col(nil, 0, &fit))
		}
		endog := adjusted[m.order:]
		for t := 0; t < m.nobs; t++ {
			for j := 1; j <= m.order; j++ {
				lag.Set(t, j-1, adjusted[t+m.order-j])
			}
		}

		for t := 0; t < m.nobs; t++ {
			w := sqrtProbs.At(i, t)
			wy.SetVec(t, w*endog[t])
			for j := 0; j < m.order; j++ {
				wx.Set(t, j, w*lag.At(t, j))
			}
		}
		phi, err := pinvSolve(wx, wy)
		if err != nil {
			return nil, nil, err
		}
		ar.SetRow(i, phi)

		if m.switchingVariance {
			// Probability-weighted mean of the unweighted squared
			// residuals.
			num, den := 0.0, 0.0
			for t := 0; t < m.nobs; t++ {
				r := endog[t]
				for j := 0; j < m.order; j++ {
					r -= lag.At(t, j) * phi[j]
				}
				p := probs.At(i, t)
				num += r * r * p
				den += p
			}
			variance[i] = num / den
		} else {
			s := 0.0
			for t := 0; t < m.nobs; t++ {
				r := wy.AtVec(t)
				for j := 0; j < m.order; j++ {
					r -= wx.At(t, j) * phi[j]
				}
				s += r * r
			}
			variance[i] = s
		}
	}

	if !m.switchingVariance {
		// The weighted residual sums pool across regimes.
		variance = []float64{floats.Sum(variance) / float64(m.nobs)}
	}
	return ar, variance, nil
}

// emVariance is the variance M-step for models without an autoregressive
// component: residuals come straight from the design fit.
func (m *Model) emVariance(probs, sqrtProbs, coeffs *mat.Dense) []float64 {
	if m.switchingVariance {
		variance := make([]float64, m.k)
		for i := 0; i < m.k; i++ {
			num, den := 0.0, 0.0
			for t := 0; t < m.nobs; t++ {
				r := m.endog[t]
				if coeffs != nil {
					for j := 0; j < m.kDesign; j++ {
						r -= m.design.At(t, j) * coeffs.At(i, j)
					}
				}
				p := probs.At(i, t)
				num += r * r * p
				den += p
			}
			variance[i] = num / den
		}
		return variance
	}

	total := 0.0
	for i := 0; i < m.k; i++ {
		for t := 0; t < m.nobs; t++ {
			w := sqrtProbs.At(i, t)
			r := w * m.endog[t]
			if coeffs != nil {
				for j := 0; j < m.kDesign; j++ {
					r -= w * m.design.At(t, j) * coeffs.At(i, j)
				}
			}
			total += r * r
		}
	}
	return []float64{total / float64(m.nobs)}
}
