package regime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markovswitch/internal/msar/tensor"
)

// FilterResult holds the output of the Hamilton filter.
type FilterResult struct {
	// LogLikelihood is the sum of the per-observation log densities.
	LogLikelihood float64

	// LogLikelihoods holds log f(y_t | y_1..y_{t-1}) per observation.
	LogLikelihoods []float64

	// Predicted and Filtered hold the joint history probabilities before
	// and after conditioning on each observation.
	Predicted *tensor.Dense
	Filtered  *tensor.Dense

	// Marginal is the k x T matrix of filtered current-regime
	// probabilities; each column sums to one.
	Marginal *mat.Dense
}

// Filter runs the Hamilton filter over the conditional density tensor.
// Each tensor row holds the observation densities under one joint regime
// history; the filter weights them by the recursively predicted history
// probabilities.
//
// The recursion fails when the one-step density of some observation is
// not strictly positive and finite, which signals parameters that cannot
// explain the sample.
func (c *Chain) Filter(dens *tensor.Dense) (*FilterResult, error) {
	if dens.Regimes() != c.k {
		return nil, fmt.Errorf("regime: density tensor has %d regimes, chain has %d", dens.Regimes(), c.k)
	}
	k := c.k
	axes := dens.HistoryAxes()
	hist := dens.Histories()
	nobs := dens.Obs()
	head := hist / k // histories with the oldest axis dropped

	res := &FilterResult{
		LogLikelihoods: make([]float64, nobs),
		Predicted:      tensor.NewDense(k, axes, nobs),
		Filtered:       tensor.NewDense(k, axes, nobs),
		Marginal:       mat.NewDense(k, nobs, nil),
	}

	prev := c.initialJoint(axes)
	pred := make([]float64, hist)
	filt := make([]float64, hist)
	marg := make([]float64, head)

	for t := 0; t < nobs; t++ {
		c.predictJoint(pred, prev, marg, head)

		f := 0.0
		for h := 0; h < hist; h++ {
			w := dens.At(h, t) * pred[h]
			filt[h] = w
			f += w
		}
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("regime: observation density %v at t=%d is not usable", f, t)
		}
		res.LogLikelihoods[t] = math.Log(f)

		inv := 1 / f
		for h := 0; h < hist; h++ {
			filt[h] *= inv
			res.Predicted.Set(h, t, pred[h])
			res.Filtered.Set(h, t, filt[h])
		}
		for i := 0; i < k; i++ {
			s := 0.0
			for h := i * head; h < (i+1)*head; h++ {
				s += filt[h]
			}
			res.Marginal.Set(i, t, s)
		}
		copy(prev, filt)
	}
	res.LogLikelihood = floats.Sum(res.LogLikelihoods)
	return res, nil
}

// predictJoint fills dst with the one-step-ahead joint history
// probabilities given the previous filtered probabilities prev. The marg
// buffer must have length head = len(prev)/k.
func (c *Chain) predictJoint(dst, prev, marg []float64, head int) {
	k := c.k
	if head == 1 {
		// Single-axis histories reduce to ordinary chain prediction.
		for j := 0; j < k; j++ {
			s := 0.0
			for i := 0; i < k; i++ {
				s += c.transition.At(i, j) * prev[i]
			}
			dst[j] = s
		}
		return
	}

	// Marginalize out the oldest axis (the fastest-varying history
	// digit), then prepend the incoming regime.
	for q := 0; q < head; q++ {
		s := 0.0
		for r := 0; r < k; r++ {
			s += prev[q*k+r]
		}
		marg[q] = s
	}
	sub := head / k
	for h := range dst {
		// Split h into the incoming regime and the retained history; the
		// leading digit of the retained history is the regime one step
		// back, which the transition row conditions on.
		tail := h % head
		incoming := h / head
		previous := tail / sub
		dst[h] = c.transition.At(previous, incoming) * marg[tail]
	}
}

// initialJoint chains the pre-sample distribution forward into the joint
// distribution over the `axes` regimes preceding the first observation.
func (c *Chain) initialJoint(axes int) []float64 {
	k := c.k
	cur := append([]float64(nil), c.initial...)
	for step := 1; step < axes; step++ {
		l := len(cur)
		msd := l / k // stride of the most recent regime in cur
		next := make([]float64, l*k)
		for f := 0; f < k; f++ {
			for idx := 0; idx < l; idx++ {
				recent := idx / msd
				next[f*l+idx] = c.transition.At(recent, f) * cur[idx]
			}
		}
		cur = next
	}
	return cur
}
