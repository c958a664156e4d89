// Package msar estimates Markov-switching autoregressions: regression
// models whose trend, exogenous, autoregressive and variance parameters
// may switch with an unobserved discrete Markov regime.
//
// A Model is immutable once built. Evaluation methods are pure functions
// of a flat parameter vector whose layout is exposed through Layout, so
// the same model value can be shared by an expectation-maximization loop
// and a numerical optimizer. The regime process itself lives in the
// regime subpackage and is fixed configuration: transition probabilities
// are supplied, not estimated.
package msar

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markovswitch/internal/msar/regime"
	"github.com/banshee-data/markovswitch/internal/msar/tensor"
)

// Trend selects the deterministic regressors included in the design
// matrix.
type Trend string

// Supported trend specifications. The time column counts observations
// from 1 at the start of the full sample.
const (
	TrendNone      Trend = "n"
	TrendConst     Trend = "c"
	TrendTime      Trend = "t"
	TrendConstTime Trend = "ct"
)

// columns returns the trend column names in design order. The empty
// string selects TrendConst, matching DefaultModelConfig.
func (tr Trend) columns() ([]string, error) {
	switch tr {
	case TrendConst, "":
		return []string{"const"}, nil
	case TrendNone:
		return nil, nil
	case TrendTime:
		return []string{"trend"}, nil
	case TrendConstTime:
		return []string{"const", "trend"}, nil
	}
	return nil, fmt.Errorf("msar: unknown trend %q", string(tr))
}

// Columns reports how many deterministic regressors the trend
// contributes to the design. Unknown trends report zero and are
// rejected by NewModel.
func (tr Trend) Columns() int {
	names, _ := tr.columns()
	return len(names)
}

// ModelConfig bundles the optional construction inputs of a switching
// autoregression. The zero value selects the defaults described on each
// field.
type ModelConfig struct {
	// Trend selects deterministic regressors. Empty means TrendConst.
	Trend Trend

	// Exog holds exogenous regressors over the full sample, one row per
	// observation. May be nil.
	Exog *mat.Dense

	// SwitchingTrend, SwitchingExog and SwitchingAR mark which
	// coefficients of each block vary by regime. nil selects the block
	// default: trend and autoregressive coefficients switch, exogenous
	// coefficients are shared. A non-nil slice must have one entry per
	// coefficient in its block.
	SwitchingTrend []bool
	SwitchingExog  []bool
	SwitchingAR    []bool

	// SwitchingVariance selects per-regime innovation variances.
	SwitchingVariance bool

	// Chain fixes the regime process. nil selects a uniform chain over
	// the model's regimes.
	Chain *regime.Chain

	// TVTPExog would carry regressors for time-varying transition
	// probabilities. It is not supported: construction fails when set.
	TVTPExog *mat.Dense
}

// DefaultModelConfig returns the construction defaults: constant trend,
// switching trend and autoregressive coefficients, shared exogenous
// coefficients and a shared variance.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Trend: TrendConst}
}

// SwitchAll returns switching flags marking all n coefficients as
// regime-specific.
func SwitchAll(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// SwitchNone returns switching flags marking all n coefficients as
// shared across regimes.
func SwitchNone(n int) []bool {
	return make([]bool, n)
}

// Model is a Markov-switching autoregression over a fixed sample. The
// first `order` observations condition the lag structure and are not
// scored by the likelihood.
type Model struct {
	k     int
	order int
	trend Trend

	switchingTrend    []bool
	switchingExog     []bool
	switchingAR       []bool
	switchingVariance bool

	origEndog  []float64  // full sample
	endog      []float64  // full sample minus the first `order` values
	origDesign *mat.Dense // [trend | exog] over the full sample, nil when empty
	design     *mat.Dense // trimmed rows of origDesign
	lagged     *mat.Dense // nobs x order matrix of lagged sample values
	kDesign    int
	nobs       int

	layout *Layout
	chain  *regime.Chain
}

// NewModel builds a switching autoregression over endog with the given
// regime count and autoregressive order.
//
// Construction validates configuration only: the sample must be longer
// than the order, exogenous rows must cover the sample and switching
// flags must match their blocks. Numerical conditioning of the data is
// the estimation routines' concern, not a construction error.
func NewModel(endog []float64, regimes, order int, cfg ModelConfig) (*Model, error) {
	if regimes < 1 {
		return nil, fmt.Errorf("msar: regime count must be at least 1, got %d", regimes)
	}
	if order < 0 {
		return nil, fmt.Errorf("msar: autoregressive order must be non-negative, got %d", order)
	}
	if cfg.TVTPExog != nil {
		return nil, errors.New("msar: time-varying transition probabilities are not supported")
	}
	if len(endog) <= order {
		return nil, fmt.Errorf("msar: sample of %d observations cannot support order %d", len(endog), order)
	}
	trendNames, err := cfg.Trend.columns()
	if err != nil {
		return nil, err
	}

	nfull := len(endog)
	kExog := 0
	var exogNames []string
	if cfg.Exog != nil {
		r, c := cfg.Exog.Dims()
		if r != nfull {
			return nil, fmt.Errorf("msar: exog has %d rows for %d observations", r, nfull)
		}
		kExog = c
		exogNames = make([]string, c)
		for j := range exogNames {
			exogNames[j] = fmt.Sprintf("x%d", j+1)
		}
	}

	swTrend, err := normalizeSwitching(cfg.SwitchingTrend, len(trendNames), true, "trend")
	if err != nil {
		return nil, err
	}
	swExog, err := normalizeSwitching(cfg.SwitchingExog, kExog, false, "exog")
	if err != nil {
		return nil, err
	}
	swAR, err := normalizeSwitching(cfg.SwitchingAR, order, true, "autoregressive")
	if err != nil {
		return nil, err
	}

	chain := cfg.Chain
	if chain == nil {
		chain = regime.NewUniformChain(regimes)
	} else if chain.Regimes() != regimes {
		return nil, fmt.Errorf("msar: chain has %d regimes, model has %d", chain.Regimes(), regimes)
	}

	m := &Model{
		k:                 regimes,
		order:             order,
		trend:             cfg.Trend,
		switchingTrend:    swTrend,
		switchingExog:     swExog,
		switchingAR:       swAR,
		switchingVariance: cfg.SwitchingVariance,
		kDesign:           len(trendNames) + kExog,
		nobs:              nfull - order,
		chain:             chain,
	}
	m.origEndog = append([]float64(nil), endog...)
	m.endog = m.origEndog[order:]

	if m.kDesign > 0 {
		d := mat.NewDense(nfull, m.kDesign, nil)
		col := 0
		for _, name := range trendNames {
			for t := 0; t < nfull; t++ {
				if name == "trend" {
					d.Set(t, col, float64(t+1))
				} else {
					d.Set(t, col, 1)
				}
			}
			col++
		}
		for j := 0; j < kExog; j++ {
			for t := 0; t < nfull; t++ {
				d.Set(t, col, cfg.Exog.At(t, j))
			}
			col++
		}
		m.origDesign = d
		m.design = d.Slice(order, nfull, 0, m.kDesign).(*mat.Dense)
	}

	if order > 0 {
		lg := mat.NewDense(m.nobs, order, nil)
		for t := 0; t < m.nobs; t++ {
			for j := 1; j <= order; j++ {
				lg.Set(t, j-1, m.origEndog[t+order-j])
			}
		}
		m.lagged = lg
	}

	arNames := make([]string, order)
	for j := range arNames {
		arNames[j] = fmt.Sprintf("ar.L%d", j+1)
	}
	m.layout = newLayout(regimes, trendNames, exogNames, arNames, swTrend, swExog, swAR, cfg.SwitchingVariance)
	return m, nil
}

// normalizeSwitching expands a nil switching slice to the block default
// and validates an explicit one against the block size.
func normalizeSwitching(flags []bool, n int, def bool, block string) ([]bool, error) {
	if flags == nil {
		out := make([]bool, n)
		for i := range out {
			out[i] = def
		}
		return out, nil
	}
	if len(flags) != n {
		return nil, fmt.Errorf("msar: %s switching flags have %d entries for %d coefficients", block, len(flags), n)
	}
	return append([]bool(nil), flags...), nil
}

// Regimes returns the number of regimes.
func (m *Model) Regimes() int { return m.k }

// Order returns the autoregressive order.
func (m *Model) Order() int { return m.order }

// NumObs returns the number of scored observations, the sample length
// minus the order.
func (m *Model) NumObs() int { return m.nobs }

// Layout returns the parameter vector layout.
func (m *Model) Layout() *Layout { return m.layout }

// ParamNames returns the parameter names in vector order.
func (m *Model) ParamNames() []string { return m.layout.Names() }

// Chain returns the regime process.
func (m *Model) Chain() *regime.Chain { return m.chain }

// Endog returns a copy of the scored observations.
func (m *Model) Endog() []float64 {
	return append([]float64(nil), m.endog...)
}

func (m *Model) checkParams(params []float64) error {
	if len(params) != m.layout.NumParams() {
		return fmt.Errorf("msar: parameter vector has length %d, want %d", len(params), m.layout.NumParams())
	}
	return nil
}

// LogLikelihood evaluates the sample log-likelihood at params.
func (m *Model) LogLikelihood(params []float64) (float64, error) {
	fr, err := m.Filter(params)
	if err != nil {
		return 0, err
	}
	return fr.LogLikelihood, nil
}

// Filter computes the conditional densities at params and runs the
// Hamilton filter over them.
func (m *Model) Filter(params []float64) (*regime.FilterResult, error) {
	dens, err := m.ConditionalDensities(params)
	if err != nil {
		return nil, err
	}
	return m.chain.Filter(dens)
}

// Smooth computes the conditional densities at params and runs the
// Hamilton filter and Kim smoother over them.
func (m *Model) Smooth(params []float64) (*regime.SmoothResult, error) {
	dens, err := m.ConditionalDensities(params)
	if err != nil {
		return nil, err
	}
	return m.chain.Smooth(dens)
}

// TransformParams maps an unconstrained optimizer vector to model
// parameters: each regime's autoregressive block passes through the
// stationarity reparameterization while every other entry is copied
// unchanged. It panics when the vector length does not match the layout.
func (m *Model) TransformParams(unconstrained []float64) []float64 {
	if len(unconstrained) != m.layout.NumParams() {
		panic(fmt.Sprintf("msar: parameter vector has length %d, want %d", len(unconstrained), m.layout.NumParams()))
	}
	out := append([]float64(nil), unconstrained...)
	if m.order == 0 {
		return out
	}
	for i := 0; i < m.k; i++ {
		block := m.layout.Gather(unconstrained, BlockAR, i)
		m.layout.Scatter(out, BlockAR, i, constrainStationary(block))
	}
	return out
}

// UntransformParams inverts TransformParams. Autoregressive blocks
// outside the stationary region produce non-finite values.
func (m *Model) UntransformParams(constrained []float64) []float64 {
	if len(constrained) != m.layout.NumParams() {
		panic(fmt.Sprintf("msar: parameter vector has length %d, want %d", len(constrained), m.layout.NumParams()))
	}
	out := append([]float64(nil), constrained...)
	if m.order == 0 {
		return out
	}
	for i := 0; i < m.k; i++ {
		block := m.layout.Gather(constrained, BlockAR, i)
		m.layout.Scatter(out, BlockAR, i, unconstrainStationary(block))
	}
	return out
}

// residTensor allocates the (k, ..., k, nobs) tensor with order+1 regime
// axes shared by Residuals and ConditionalDensities.
func (m *Model) residTensor() *tensor.Dense {
	return tensor.NewDense(m.k, m.order+1, m.nobs)
}
