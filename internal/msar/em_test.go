package msar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPinvSolve(t *testing.T) {
	t.Parallel()

	t.Run("well conditioned system", func(t *testing.T) {
		t.Parallel()
		a := mat.NewDense(2, 2, []float64{2, 0, 0, 4})
		x, err := pinvSolve(a, mat.NewVecDense(2, []float64{2, 8}))
		require.NoError(t, err)
		require.Len(t, x, 2)
		assert.InDelta(t, 1.0, x[0], 1e-12)
		assert.InDelta(t, 2.0, x[1], 1e-12)
	})

	t.Run("rank deficient system takes minimum norm solution", func(t *testing.T) {
		t.Parallel()
		a := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
		x, err := pinvSolve(a, mat.NewVecDense(2, []float64{2, 2}))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, x[0], 1e-12)
		assert.InDelta(t, 1.0, x[1], 1e-12)
	})

	t.Run("rank zero system yields zeros", func(t *testing.T) {
		t.Parallel()
		a := mat.NewDense(3, 2, nil)
		x, err := pinvSolve(a, mat.NewVecDense(3, []float64{1, 2, 3}))
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, x)
	})
}

// hardProbs builds regime probabilities that assign the first split
// observations to regime 0 and the rest to regime 1. Square roots of
// zeros and ones are themselves, so the same matrix serves both roles.
func hardProbs(nobs, split int) *mat.Dense {
	p := mat.NewDense(2, nobs, nil)
	for t := 0; t < nobs; t++ {
		if t < split {
			p.Set(0, t, 1)
		} else {
			p.Set(1, t, 1)
		}
	}
	return p
}

func TestEMDesign(t *testing.T) {
	t.Parallel()

	endog := []float64{1.0, 0.5, 1.2, -0.3, 0.8, 1.5, -0.2, 0.9, 1.1, 0.4}

	t.Run("switching constant fits per regime means", func(t *testing.T) {
		t.Parallel()
		m, err := NewModel(endog, 2, 0, DefaultModelConfig())
		require.NoError(t, err)

		split := 5
		probs := hardProbs(len(endog), split)
		coeffs, err := m.emDesign(probs)
		require.NoError(t, err)

		mean := func(xs []float64) float64 {
			s := 0.0
			for _, x := range xs {
				s += x
			}
			return s / float64(len(xs))
		}
		assert.InDelta(t, mean(endog[:split]), coeffs.At(0, 0), 1e-10)
		assert.InDelta(t, mean(endog[split:]), coeffs.At(1, 0), 1e-10)
	})

	t.Run("shared constant fits the pooled mean for both regimes", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultModelConfig()
		cfg.SwitchingTrend = []bool{false}
		m, err := NewModel(endog, 2, 0, cfg)
		require.NoError(t, err)

		coeffs, err := m.emDesign(hardProbs(len(endog), 5))
		require.NoError(t, err)

		want := 0.0
		for _, y := range endog {
			want += y
		}
		want /= float64(len(endog))
		assert.InDelta(t, want, coeffs.At(0, 0), 1e-10)
		assert.InDelta(t, want, coeffs.At(1, 0), 1e-10)
	})
}

func TestEMAutoregressive(t *testing.T) {
	t.Parallel()

	endog := []float64{1.0, 0.5, 1.2, -0.3, 0.8, 1.5, -0.2, 0.9, 1.1, 0.4}
	nobs := len(endog) - 1

	// Least squares through the origin on the raw series, the expected
	// answer when one regime holds all the probability mass.
	sxy, sxx := 0.0, 0.0
	for t := 1; t < len(endog); t++ {
		sxy += endog[t] * endog[t-1]
		sxx += endog[t-1] * endog[t-1]
	}
	phiOLS := sxy / sxx
	rss := 0.0
	for t := 1; t < len(endog); t++ {
		r := endog[t] - phiOLS*endog[t-1]
		rss += r * r
	}

	newAR1 := func(t *testing.T, switching bool) *Model {
		t.Helper()
		cfg := ModelConfig{Trend: TrendNone, SwitchingVariance: switching}
		m, err := NewModel(endog, 2, 1, cfg)
		require.NoError(t, err)
		return m
	}

	t.Run("degenerate weights give least squares and zeros", func(t *testing.T) {
		t.Parallel()
		m := newAR1(t, false)

		probs := mat.NewDense(2, nobs, nil)
		for tt := 0; tt < nobs; tt++ {
			probs.Set(0, tt, 1)
		}
		ar, variance, err := m.emAutoregressive(probs, probs, nil)
		require.NoError(t, err)

		assert.InDelta(t, phiOLS, ar.At(0, 0), 1e-10)
		assert.Equal(t, 0.0, ar.At(1, 0), "empty regime regresses to zero")
		require.Len(t, variance, 1)
		assert.InDelta(t, rss/float64(nobs), variance[0], 1e-10)
	})

	t.Run("uniform weights reduce to pooled least squares", func(t *testing.T) {
		t.Parallel()
		m := newAR1(t, true)

		probs := mat.NewDense(2, nobs, nil)
		sqrtProbs := mat.NewDense(2, nobs, nil)
		for i := 0; i < 2; i++ {
			for tt := 0; tt < nobs; tt++ {
				probs.Set(i, tt, 0.5)
				sqrtProbs.Set(i, tt, 0.7071067811865476)
			}
		}
		ar, variance, err := m.emAutoregressive(probs, sqrtProbs, nil)
		require.NoError(t, err)

		require.Len(t, variance, 2)
		for i := 0; i < 2; i++ {
			assert.InDelta(t, phiOLS, ar.At(i, 0), 1e-10, "regime %d", i)
			assert.InDelta(t, rss/float64(nobs), variance[i], 1e-10, "regime %d", i)
		}
	})
}

func TestEMVarianceOrderZero(t *testing.T) {
	t.Parallel()

	endog := []float64{1.0, 0.5, 1.2, -0.3, 0.8, 1.5, -0.2, 0.9, 1.1, 0.4}
	cfg := DefaultModelConfig()
	cfg.SwitchingVariance = true
	m, err := NewModel(endog, 2, 0, cfg)
	require.NoError(t, err)

	split := 5
	probs := hardProbs(len(endog), split)
	coeffs, err := m.emDesign(probs)
	require.NoError(t, err)
	variance := m.emVariance(probs, probs, coeffs)
	require.Len(t, variance, 2)

	assert.InDelta(t, populationVariance(endog[:split]), variance[0], 1e-10)
	assert.InDelta(t, populationVariance(endog[split:]), variance[1], 1e-10)
}

// TestEMIterationImprovesFit tests a few passes on a series with two
// well-separated levels: the likelihood must rise from the pooled
// starting point and the input vector must come back untouched.
func TestEMIterationImprovesFit(t *testing.T) {
	t.Parallel()

	endog := make([]float64, 40)
	for i := range endog {
		base := 1.0
		if i >= 20 {
			base = -1.0
		}
		endog[i] = base + 0.05*float64(i%5)
	}

	cfg := DefaultModelConfig()
	cfg.SwitchingVariance = true
	m, err := NewModel(endog, 2, 1, cfg)
	require.NoError(t, err)

	params, err := m.StartParams()
	require.NoError(t, err)
	orig := append([]float64(nil), params...)

	ll0, err := m.LogLikelihood(params)
	require.NoError(t, err)

	current := params
	for i := 0; i < 4; i++ {
		_, next, err := m.EMIteration(current)
		require.NoError(t, err, "iteration %d", i)
		current = next
	}
	assert.Equal(t, orig, params, "input parameters must not be modified")

	ll1, err := m.LogLikelihood(current)
	require.NoError(t, err)
	assert.Greater(t, ll1, ll0)
}
