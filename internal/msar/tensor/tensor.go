// Package tensor provides the dense joint-regime tensor used by the
// switching autoregression likelihood pipeline.
//
// A value is indexed by a regime history (the current regime plus the
// regimes of a fixed number of preceding observations) and a time index.
// Histories are flattened into a single axis so filtering and smoothing
// reduce to loops over contiguous rows.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Wildcard selects every regime on an axis in a history mask.
const Wildcard = -1

// Dense is a float64 tensor of shape (k, ..., k, obs): one axis per
// history position and a trailing time axis. Storage is row-major with
// axis 0 slowest and time fastest, so each flat history owns a contiguous
// row of obs values. A flat history index encodes the per-axis regimes in
// base k with axis 0 as the most significant digit.
type Dense struct {
	k       int
	axes    int
	obs     int
	hist    int // k^axes
	strides []int
	data    []float64
}

// NewDense allocates a zeroed tensor with the given number of regime axes
// of extent k and a time axis of extent obs. It panics when any dimension
// is out of range.
func NewDense(k, axes, obs int) *Dense {
	if k < 1 || axes < 1 || obs < 0 {
		panic(fmt.Sprintf("tensor: invalid shape k=%d axes=%d obs=%d", k, axes, obs))
	}
	strides := make([]int, axes)
	hist := 1
	for j := axes - 1; j >= 0; j-- {
		strides[j] = hist
		hist *= k
	}
	return &Dense{
		k:       k,
		axes:    axes,
		obs:     obs,
		hist:    hist,
		strides: strides,
		data:    make([]float64, hist*obs),
	}
}

// Regimes returns the extent of each regime axis.
func (d *Dense) Regimes() int { return d.k }

// HistoryAxes returns the number of regime axes.
func (d *Dense) HistoryAxes() int { return d.axes }

// Histories returns the number of joint regime histories, k^axes.
func (d *Dense) Histories() int { return d.hist }

// Obs returns the extent of the time axis.
func (d *Dense) Obs() int { return d.obs }

// Data returns the backing slice. Mutations are visible to the tensor.
func (d *Dense) Data() []float64 { return d.data }

// Row returns the time series owned by flat history h. The slice aliases
// the tensor's storage.
func (d *Dense) Row(h int) []float64 {
	return d.data[h*d.obs : (h+1)*d.obs]
}

// At returns the value at flat history h and time t.
func (d *Dense) At(h, t int) float64 { return d.data[h*d.obs+t] }

// Set stores v at flat history h and time t.
func (d *Dense) Set(h, t int, v float64) { d.data[h*d.obs+t] = v }

// HistoryAt returns the regime occupying the given axis of flat history
// h. Axis 0 is the current regime, higher axes reach further back.
func (d *Dense) HistoryAt(h, axis int) int {
	return (h / d.strides[axis]) % d.k
}

// FillSeries copies series into every history row.
func (d *Dense) FillSeries(series []float64) {
	if len(series) != d.obs {
		panic(fmt.Sprintf("tensor: series length %d, want %d", len(series), d.obs))
	}
	for h := 0; h < d.hist; h++ {
		copy(d.Row(h), series)
	}
}

// SubScaled subtracts c*series elementwise from every history row
// selected by mask. The mask holds one entry per regime axis: a regime in
// [0, k) pins that axis, Wildcard leaves it free. A nil mask selects
// every history.
func (d *Dense) SubScaled(mask []int, c float64, series []float64) {
	if len(series) != d.obs {
		panic(fmt.Sprintf("tensor: series length %d, want %d", len(series), d.obs))
	}
	d.eachSelected(mask, func(h int) {
		floats.AddScaled(d.Row(h), -c, series)
	})
}

// eachSelected calls fn with the flat index of every history matching
// mask.
func (d *Dense) eachSelected(mask []int, fn func(h int)) {
	if mask != nil && len(mask) != d.axes {
		panic(fmt.Sprintf("tensor: mask has %d axes, want %d", len(mask), d.axes))
	}
	base := 0
	var free []int
	for j := 0; j < d.axes; j++ {
		r := Wildcard
		if mask != nil {
			r = mask[j]
		}
		if r == Wildcard {
			free = append(free, j)
			continue
		}
		if r < 0 || r >= d.k {
			panic(fmt.Sprintf("tensor: regime %d out of range on axis %d", r, j))
		}
		base += r * d.strides[j]
	}
	if len(free) == 0 {
		fn(base)
		return
	}
	digits := make([]int, len(free))
	for {
		h := base
		for i, j := range free {
			h += digits[i] * d.strides[j]
		}
		fn(h)
		i := len(digits) - 1
		for ; i >= 0; i-- {
			digits[i]++
			if digits[i] < d.k {
				break
			}
			digits[i] = 0
		}
		if i < 0 {
			return
		}
	}
}
