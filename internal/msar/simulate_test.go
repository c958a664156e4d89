package msar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateReproducible(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimConfig()
	a, sa, err := Simulate(cfg)
	require.NoError(t, err)
	b, sb, err := Simulate(cfg)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, sa, sb)

	cfg.Seed = 2
	c, _, err := Simulate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSimulateShapeAndStates(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimConfig()
	cfg.Nobs = 2000
	series, states, err := Simulate(cfg)
	require.NoError(t, err)

	require.Len(t, series, cfg.Nobs)
	require.Len(t, states, cfg.Nobs)

	seen := map[int]bool{}
	for i, s := range states {
		require.GreaterOrEqual(t, s, 0, "t=%d", i)
		require.Less(t, s, 2, "t=%d", i)
		seen[s] = true
	}
	assert.True(t, seen[0] && seen[1], "a persistent chain this long visits both regimes")

	for i, y := range series {
		require.False(t, math.IsNaN(y) || math.IsInf(y, 0), "t=%d", i)
	}
}

func TestSimulateSingleRegime(t *testing.T) {
	t.Parallel()

	series, states, err := Simulate(SimConfig{
		Nobs:       50,
		Const:      []float64{0.3},
		AR:         [][]float64{{0.5}},
		StdDev:     []float64{0.2},
		Transition: [][]float64{{1.0}},
		Seed:       9,
	})
	require.NoError(t, err)
	require.Len(t, series, 50)
	for _, s := range states {
		assert.Equal(t, 0, s)
	}
}

func TestSimulateNoLags(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimConfig()
	cfg.AR = [][]float64{{}, {}}
	series, _, err := Simulate(cfg)
	require.NoError(t, err)
	require.Len(t, series, cfg.Nobs)
}

func TestSimulateValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*SimConfig)
	}{
		{"no regimes", func(c *SimConfig) { c.Const = nil }},
		{"regime count mismatch", func(c *SimConfig) { c.StdDev = []float64{0.4} }},
		{"ragged AR rows", func(c *SimConfig) { c.AR = [][]float64{{0.6}, {0.2, 0.1}} }},
		{"zero stddev", func(c *SimConfig) { c.StdDev = []float64{0.4, 0} }},
		{"short transition row", func(c *SimConfig) { c.Transition = [][]float64{{1}, {0.1, 0.9}} }},
		{"negative probability", func(c *SimConfig) { c.Transition = [][]float64{{1.2, -0.2}, {0.1, 0.9}} }},
		{"row does not sum to one", func(c *SimConfig) { c.Transition = [][]float64{{0.5, 0.3}, {0.1, 0.9}} }},
		{"non-positive sample size", func(c *SimConfig) { c.Nobs = 0 }},
		{"negative burn", func(c *SimConfig) { c.Burn = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultSimConfig()
			tc.mutate(&cfg)
			_, _, err := Simulate(cfg)
			assert.Error(t, err)
		})
	}
}
