package regime

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markovswitch/internal/msar/tensor"
)

// SmoothResult extends FilterResult with Kim smoother output.
type SmoothResult struct {
	*FilterResult

	// SmoothedJoint holds the joint history probabilities conditional on
	// the full sample.
	SmoothedJoint *tensor.Dense

	// SmoothedMarginal is the k x T matrix of smoothed current-regime
	// probabilities; each column sums to one.
	SmoothedMarginal *mat.Dense
}

// Smooth runs the Hamilton filter followed by the Kim smoother, which
// folds information from later observations back into each time step's
// regime probabilities.
func (c *Chain) Smooth(dens *tensor.Dense) (*SmoothResult, error) {
	fr, err := c.Filter(dens)
	if err != nil {
		return nil, err
	}
	k := c.k
	axes := dens.HistoryAxes()
	hist := dens.Histories()
	nobs := dens.Obs()
	head := hist / k

	res := &SmoothResult{
		FilterResult:     fr,
		SmoothedJoint:    tensor.NewDense(k, axes, nobs),
		SmoothedMarginal: mat.NewDense(k, nobs, nil),
	}

	// The smoother runs backwards from the final filtered distribution.
	last := nobs - 1
	for h := 0; h < hist; h++ {
		res.SmoothedJoint.Set(h, last, fr.Filtered.At(h, last))
	}

	ratio := make([]float64, hist)
	carry := make([]float64, head)
	if axes == 1 {
		carry = make([]float64, k)
	}
	for t := nobs - 2; t >= 0; t-- {
		for h := 0; h < hist; h++ {
			p := fr.Predicted.At(h, t+1)
			if p > 0 {
				ratio[h] = res.SmoothedJoint.At(h, t+1) / p
			} else {
				ratio[h] = 0
			}
		}
		if axes == 1 {
			// Plain Kim recursion: contract the ratio against each
			// current regime's transition row.
			for i := 0; i < k; i++ {
				s := 0.0
				for next := 0; next < k; next++ {
					s += c.transition.At(i, next) * ratio[next]
				}
				carry[i] = s
			}
			for h := 0; h < hist; h++ {
				res.SmoothedJoint.Set(h, t, fr.Filtered.At(h, t)*carry[h])
			}
		} else {
			// A time-t+1 history keeps all but the oldest digit of its
			// time-t predecessor, so the carry is indexed by that
			// retained part (h/k) and conditions on its leading regime.
			msd := head / k
			for g := 0; g < head; g++ {
				cur := g / msd
				s := 0.0
				for next := 0; next < k; next++ {
					s += c.transition.At(cur, next) * ratio[next*head+g]
				}
				carry[g] = s
			}
			for h := 0; h < hist; h++ {
				res.SmoothedJoint.Set(h, t, fr.Filtered.At(h, t)*carry[h/k])
			}
		}
	}

	for t := 0; t < nobs; t++ {
		for i := 0; i < k; i++ {
			s := 0.0
			for h := i * head; h < (i+1)*head; h++ {
				s += res.SmoothedJoint.At(h, t)
			}
			res.SmoothedMarginal.Set(i, t, s)
		}
	}
	return res, nil
}
