package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical estimation defaults
// file. This is the single source of truth for all default estimation
// values.
const DefaultConfigPath = "config/estimation.defaults.json"

// rowSumTolerance bounds how far a transition row may drift from
// summing to one before the configuration is rejected.
const rowSumTolerance = 1e-8

// EstimationConfig represents the root configuration for model
// estimation. All fields are optional; the Get* accessors supply
// defaults for anything omitted, so partial configs are safe.
type EstimationConfig struct {
	// Model params
	Regimes           *int    `json:"regimes,omitempty"`
	Order             *int    `json:"order,omitempty"`
	Trend             *string `json:"trend,omitempty"` // "n", "c", "t" or "ct"
	SwitchingVariance *bool   `json:"switching_variance,omitempty"`

	// SwitchingTrend and SwitchingAR toggle regime-specific coefficients
	// for the whole trend and autoregressive blocks. Omitted means the
	// model default: both switch.
	SwitchingTrend *bool `json:"switching_trend,omitempty"`
	SwitchingAR    *bool `json:"switching_ar,omitempty"`

	// Transition holds the regime transition matrix, one row per
	// regime. Omitted means a uniform chain.
	Transition [][]float64 `json:"transition,omitempty"`

	// Initial holds the pre-sample regime distribution. Omitted means
	// the steady state of the transition matrix.
	Initial []float64 `json:"initial,omitempty"`

	// Estimation params
	EMMaxIterations     *int     `json:"em_max_iterations,omitempty"`
	EMTolerance         *float64 `json:"em_tolerance,omitempty"`
	Refine              *bool    `json:"refine,omitempty"`
	RefineMaxIterations *int     `json:"refine_max_iterations,omitempty"`

	// Simulation params (demo data generation)
	Seed *uint64 `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyEstimationConfig returns an EstimationConfig with all fields set
// to nil. Use LoadEstimationConfig to load actual values from a file.
func EmptyEstimationConfig() *EstimationConfig {
	return &EstimationConfig{}
}

// LoadEstimationConfig loads an EstimationConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadEstimationConfig(path string) (*EstimationConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyEstimationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical estimation defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *EstimationConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadEstimationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *EstimationConfig) Validate() error {
	if c.Regimes != nil && *c.Regimes < 1 {
		return fmt.Errorf("regimes must be at least 1, got %d", *c.Regimes)
	}
	if c.Order != nil && *c.Order < 0 {
		return fmt.Errorf("order must be non-negative, got %d", *c.Order)
	}

	if c.Trend != nil {
		switch *c.Trend {
		case "n", "c", "t", "ct":
		default:
			return fmt.Errorf("trend must be one of n, c, t, ct, got %q", *c.Trend)
		}
	}

	if c.Transition != nil {
		k := len(c.Transition)
		if c.Regimes != nil && *c.Regimes != k {
			return fmt.Errorf("transition has %d rows for %d regimes", k, *c.Regimes)
		}
		for i, row := range c.Transition {
			if len(row) != k {
				return fmt.Errorf("transition row %d has %d entries, want %d", i, len(row), k)
			}
			sum := 0.0
			for j, p := range row {
				if math.IsNaN(p) || p < 0 || p > 1 {
					return fmt.Errorf("transition[%d][%d] = %v is not a probability", i, j, p)
				}
				sum += p
			}
			if math.Abs(sum-1) > rowSumTolerance {
				return fmt.Errorf("transition row %d sums to %v, want 1", i, sum)
			}
		}
	}

	if c.Initial != nil {
		if c.Regimes != nil && len(c.Initial) != *c.Regimes {
			return fmt.Errorf("initial has %d entries for %d regimes", len(c.Initial), *c.Regimes)
		}
		if c.Transition != nil && len(c.Initial) != len(c.Transition) {
			return fmt.Errorf("initial has %d entries for %d transition rows", len(c.Initial), len(c.Transition))
		}
		sum := 0.0
		for i, p := range c.Initial {
			if math.IsNaN(p) || p < 0 || p > 1 {
				return fmt.Errorf("initial[%d] = %v is not a probability", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > rowSumTolerance {
			return fmt.Errorf("initial distribution sums to %v, want 1", sum)
		}
	}

	if c.EMMaxIterations != nil && *c.EMMaxIterations < 1 {
		return fmt.Errorf("em_max_iterations must be at least 1, got %d", *c.EMMaxIterations)
	}
	if c.EMTolerance != nil && (*c.EMTolerance < 0 || math.IsNaN(*c.EMTolerance)) {
		return fmt.Errorf("em_tolerance must be non-negative, got %v", *c.EMTolerance)
	}
	if c.RefineMaxIterations != nil && *c.RefineMaxIterations < 0 {
		return fmt.Errorf("refine_max_iterations must be non-negative, got %d", *c.RefineMaxIterations)
	}

	return nil
}

// GetRegimes returns the regimes value or the default.
func (c *EstimationConfig) GetRegimes() int {
	if c.Regimes == nil {
		return 2 // default
	}
	return *c.Regimes
}

// GetOrder returns the order value or the default.
func (c *EstimationConfig) GetOrder() int {
	if c.Order == nil {
		return 1 // default
	}
	return *c.Order
}

// GetTrend returns the trend value or the default.
func (c *EstimationConfig) GetTrend() string {
	if c.Trend == nil || *c.Trend == "" {
		return "c" // default: constant term
	}
	return *c.Trend
}

// GetSwitchingVariance returns the switching_variance value or the default.
func (c *EstimationConfig) GetSwitchingVariance() bool {
	if c.SwitchingVariance == nil {
		return false // default: one shared variance
	}
	return *c.SwitchingVariance
}

// GetSwitchingTrend returns the switching_trend value or the default.
func (c *EstimationConfig) GetSwitchingTrend() bool {
	if c.SwitchingTrend == nil {
		return true // default: per-regime trend coefficients
	}
	return *c.SwitchingTrend
}

// GetSwitchingAR returns the switching_ar value or the default.
func (c *EstimationConfig) GetSwitchingAR() bool {
	if c.SwitchingAR == nil {
		return true // default: per-regime autoregressive coefficients
	}
	return *c.SwitchingAR
}

// GetTransition returns a copy of the transition matrix, or nil when
// unset.
func (c *EstimationConfig) GetTransition() [][]float64 {
	if c.Transition == nil {
		return nil
	}
	out := make([][]float64, len(c.Transition))
	for i, row := range c.Transition {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// GetInitial returns a copy of the initial regime distribution, or nil
// when unset.
func (c *EstimationConfig) GetInitial() []float64 {
	if c.Initial == nil {
		return nil
	}
	return append([]float64(nil), c.Initial...)
}

// GetEMMaxIterations returns the em_max_iterations value or the default.
func (c *EstimationConfig) GetEMMaxIterations() int {
	if c.EMMaxIterations == nil {
		return 50 // default
	}
	return *c.EMMaxIterations
}

// GetEMTolerance returns the em_tolerance value or the default.
func (c *EstimationConfig) GetEMTolerance() float64 {
	if c.EMTolerance == nil {
		return 1e-6 // default
	}
	return *c.EMTolerance
}

// GetRefine returns the refine value or the default.
func (c *EstimationConfig) GetRefine() bool {
	if c.Refine == nil {
		return true // default: polish the EM estimate
	}
	return *c.Refine
}

// GetRefineMaxIterations returns the refine_max_iterations value or the default.
func (c *EstimationConfig) GetRefineMaxIterations() int {
	if c.RefineMaxIterations == nil {
		return 500 // default
	}
	return *c.RefineMaxIterations
}

// GetSeed returns the seed value or the default.
func (c *EstimationConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1 // default
	}
	return *c.Seed
}
