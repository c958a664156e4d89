package msar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/markovswitch/internal/monitoring"
	"github.com/banshee-data/markovswitch/internal/msar/regime"
)

// FitConfig controls the estimation driver.
type FitConfig struct {
	// MaxEMIterations caps the expectation-maximization loop.
	MaxEMIterations int

	// EMTolerance stops the loop once the relative change of the
	// log-likelihood between iterations drops below it.
	EMTolerance float64

	// Refine runs a derivative-free polish of the log-likelihood in the
	// unconstrained parameterization after the EM loop. The refined
	// point is only adopted when it improves the likelihood.
	Refine bool

	// RefineMaxIterations caps the refinement stage. Zero leaves the
	// optimizer's own convergence checks in charge.
	RefineMaxIterations int

	// StartParams overrides the pooled least-squares starting point.
	StartParams []float64
}

// DefaultFitConfig returns the usual estimation settings: up to 50 EM
// iterations at 1e-6 relative tolerance, followed by refinement.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		MaxEMIterations:     50,
		EMTolerance:         1e-6,
		Refine:              true,
		RefineMaxIterations: 500,
	}
}

// FitResult is the output of Fit.
type FitResult struct {
	// Params is the estimated parameter vector in layout order.
	Params []float64

	// LogLikelihood is the sample log-likelihood at Params.
	LogLikelihood float64

	// EMIterations counts completed expectation-maximization passes.
	EMIterations int

	// Converged reports whether the EM loop met EMTolerance before
	// hitting the iteration cap.
	Converged bool

	// Refined reports whether the refinement stage improved on the EM
	// estimate and was adopted.
	Refined bool

	// Smoothed holds the filter and smoother output at Params.
	Smoothed *regime.SmoothResult
}

// Fit estimates the model by expectation-maximization with optional
// Nelder-Mead refinement.
//
// The EM loop always runs at least two iterations so the relative
// log-likelihood change is defined, then stops on tolerance or the
// iteration cap. Refinement maximizes the log-likelihood over the
// unconstrained parameterization, so the polished autoregressive blocks
// stay stationary by construction.
func (m *Model) Fit(cfg FitConfig) (*FitResult, error) {
	if cfg.MaxEMIterations <= 0 {
		return nil, fmt.Errorf("msar: MaxEMIterations must be positive, got %d", cfg.MaxEMIterations)
	}
	if cfg.EMTolerance < 0 {
		return nil, fmt.Errorf("msar: EMTolerance must be non-negative, got %v", cfg.EMTolerance)
	}

	params := cfg.StartParams
	if params == nil {
		var err error
		params, err = m.StartParams()
		if err != nil {
			return nil, err
		}
	} else {
		if err := m.checkParams(params); err != nil {
			return nil, err
		}
		params = append([]float64(nil), params...)
	}

	var llf []float64
	iterations := 0
	delta := math.Inf(1)
	for iterations < cfg.MaxEMIterations && (iterations < 2 || delta > cfg.EMTolerance) {
		sm, next, err := m.EMIteration(params)
		if err != nil {
			return nil, fmt.Errorf("msar: EM iteration %d: %w", iterations, err)
		}
		params = next
		llf = append(llf, sm.LogLikelihood)
		if n := len(llf); n > 1 {
			delta = 2 * (llf[n-1] - llf[n-2]) / math.Abs(llf[n-1]+llf[n-2])
		}
		iterations++
	}

	sm, err := m.Smooth(params)
	if err != nil {
		return nil, fmt.Errorf("msar: evaluating EM estimate: %w", err)
	}
	res := &FitResult{
		Params:        params,
		LogLikelihood: sm.LogLikelihood,
		EMIterations:  iterations,
		Converged:     delta <= cfg.EMTolerance,
		Smoothed:      sm,
	}

	if cfg.Refine {
		m.refine(cfg, res)
	}
	return res, nil
}

// refine polishes the EM estimate with Nelder-Mead on the negative
// log-likelihood over unconstrained parameters, adopting the result only
// when it improves. Optimizer failures keep the EM estimate and are only
// logged: the EM point is already a usable answer.
func (m *Model) refine(cfg FitConfig, res *FitResult) {
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			ll, err := m.LogLikelihood(m.TransformParams(u))
			if err != nil || math.IsNaN(ll) {
				return math.Inf(1)
			}
			return -ll
		},
	}
	var settings *optimize.Settings
	if cfg.RefineMaxIterations > 0 {
		settings = &optimize.Settings{MajorIterations: cfg.RefineMaxIterations}
	}

	u0 := m.UntransformParams(res.Params)
	for _, u := range u0 {
		if math.IsNaN(u) || math.IsInf(u, 0) {
			monitoring.Logf("msar: EM estimate is outside the refinable region, skipping refinement")
			return
		}
	}

	opt, err := optimize.Minimize(problem, u0, settings, &optimize.NelderMead{})
	if err != nil {
		monitoring.Logf("msar: refinement failed, keeping EM estimate: %v", err)
		return
	}
	if math.IsInf(opt.F, 1) || math.IsNaN(opt.F) {
		return
	}

	candidate := m.TransformParams(opt.X)
	ll, err := m.LogLikelihood(candidate)
	if err != nil || ll <= res.LogLikelihood {
		return
	}
	sm, err := m.Smooth(candidate)
	if err != nil {
		return
	}
	res.Params = candidate
	res.LogLikelihood = ll
	res.Refined = true
	res.Smoothed = sm
}
