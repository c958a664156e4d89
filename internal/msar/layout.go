package msar

import "fmt"

// Block identifies a semantic segment of the flat parameter vector.
type Block int

// Parameter blocks in vector order.
const (
	BlockTrend Block = iota
	BlockExog
	BlockAR
	BlockVariance
	numBlocks
)

func (b Block) String() string {
	switch b {
	case BlockTrend:
		return "trend"
	case BlockExog:
		return "exog"
	case BlockAR:
		return "autoregressive"
	case BlockVariance:
		return "variance"
	}
	return fmt.Sprintf("Block(%d)", int(b))
}

// Layout maps the coefficient blocks of a switching autoregression onto
// positions in the flat parameter vector. The vector is partitioned
// [trend | exog | autoregressive | variance]; within a block the
// coefficients appear in order, a switching coefficient contributing one
// entry per regime (regime 0 first) and a shared coefficient a single
// entry. A Layout is built once at model construction and never
// modified afterwards.
type Layout struct {
	k       int
	offsets [numBlocks]int
	sizes   [numBlocks]int
	total   int
	indices [numBlocks][][]int
	names   []string
}

func newLayout(k int, trendNames, exogNames, arNames []string, switchingTrend, switchingExog, switchingAR []bool, switchingVariance bool) *Layout {
	l := &Layout{k: k}
	l.appendBlock(BlockTrend, trendNames, switchingTrend)
	l.appendBlock(BlockExog, exogNames, switchingExog)
	l.appendBlock(BlockAR, arNames, switchingAR)
	l.appendBlock(BlockVariance, []string{"sigma2"}, []bool{switchingVariance})
	return l
}

func (l *Layout) appendBlock(b Block, names []string, switching []bool) {
	l.offsets[b] = l.total
	idx := make([][]int, l.k)
	for c, name := range names {
		if switching[c] {
			for i := 0; i < l.k; i++ {
				idx[i] = append(idx[i], l.total+i)
				l.names = append(l.names, fmt.Sprintf("%s[%d]", name, i))
			}
			l.total += l.k
		} else {
			for i := 0; i < l.k; i++ {
				idx[i] = append(idx[i], l.total)
			}
			l.names = append(l.names, name)
			l.total++
		}
	}
	l.sizes[b] = l.total - l.offsets[b]
	l.indices[b] = idx
}

// NumParams returns the length of the parameter vector.
func (l *Layout) NumParams() int { return l.total }

// Block returns the contiguous [lo, hi) vector range of a block.
func (l *Layout) Block(b Block) (lo, hi int) {
	return l.offsets[b], l.offsets[b] + l.sizes[b]
}

// Indices returns the vector positions of a block's coefficients for one
// regime, in coefficient order. Shared coefficients resolve to the same
// position for every regime. The returned slice must not be modified.
func (l *Layout) Indices(b Block, regime int) []int {
	return l.indices[b][regime]
}

// Gather copies one regime's block coefficients out of params.
func (l *Layout) Gather(params []float64, b Block, regime int) []float64 {
	idx := l.indices[b][regime]
	out := make([]float64, len(idx))
	for n, p := range idx {
		out[n] = params[p]
	}
	return out
}

// Scatter writes vals into one regime's block positions in dst.
func (l *Layout) Scatter(dst []float64, b Block, regime int, vals []float64) {
	idx := l.indices[b][regime]
	if len(vals) != len(idx) {
		panic(fmt.Sprintf("msar: scatter %v for regime %d: %d values for %d positions", b, regime, len(vals), len(idx)))
	}
	for n, p := range idx {
		dst[p] = vals[n]
	}
}

// Names returns the parameter names in vector order. Switching
// coefficients carry a regime suffix, like "ar.L1[0]".
func (l *Layout) Names() []string {
	return append([]string(nil), l.names...)
}

// Name returns the name of the parameter at the given vector position.
func (l *Layout) Name(pos int) string { return l.names[pos] }
