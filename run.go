package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/markovswitch/internal/config"
	"github.com/banshee-data/markovswitch/internal/msar"
	"github.com/banshee-data/markovswitch/internal/msar/regime"
	"github.com/banshee-data/markovswitch/internal/report"
	"github.com/banshee-data/markovswitch/internal/store"
)

// run loads or simulates the series, fits the model and writes the
// requested outputs.
func run(cfg Config) (*Result, error) {
	startTime := time.Now()

	var (
		series []float64
		source string
		err    error
	)
	if cfg.Demo {
		sim := msar.DefaultSimConfig()
		sim.Seed = cfg.Seed
		series, _, err = msar.Simulate(sim)
		source = "demo"
	} else {
		series, err = readSeries(cfg.Input)
		source = filepath.Base(cfg.Input)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Fitting %d observations from %s (regimes=%d order=%d trend=%s)",
		len(series), source, cfg.Regimes, cfg.Order, cfg.Trend)

	rows := cfg.TransitionRows
	if cfg.Transition != "" {
		rows, err = parseTransition(cfg.Transition)
		if err != nil {
			return nil, err
		}
	}
	initial := cfg.InitialDist
	if cfg.Initial != "" {
		initial, err = parseCSVFloatSlice(cfg.Initial)
		if err != nil {
			return nil, fmt.Errorf("initial distribution: %w", err)
		}
	}

	mcfg := msar.DefaultModelConfig()
	mcfg.Trend = msar.Trend(cfg.Trend)
	mcfg.SwitchingVariance = cfg.SwitchingVariance
	if cfg.SwitchingTrend != nil {
		mcfg.SwitchingTrend = switchBlock(*cfg.SwitchingTrend, mcfg.Trend.Columns())
	}
	if cfg.SwitchingAR != nil && cfg.Order > 0 {
		mcfg.SwitchingAR = switchBlock(*cfg.SwitchingAR, cfg.Order)
	}
	if rows != nil {
		chain, err := regime.NewChainFromRows(rows)
		if err != nil {
			return nil, err
		}
		mcfg.Chain = chain
	}
	if len(initial) > 0 {
		if mcfg.Chain == nil {
			if cfg.Regimes < 1 {
				return nil, fmt.Errorf("initial distribution needs at least one regime, got %d", cfg.Regimes)
			}
			mcfg.Chain = regime.NewUniformChain(cfg.Regimes)
		}
		if err := mcfg.Chain.SetInitial(initial); err != nil {
			return nil, err
		}
	}

	m, err := msar.NewModel(series, cfg.Regimes, cfg.Order, mcfg)
	if err != nil {
		return nil, err
	}

	res, err := m.Fit(msar.FitConfig{
		MaxEMIterations:     cfg.EMMaxIterations,
		EMTolerance:         cfg.EMTolerance,
		Refine:              cfg.Refine,
		RefineMaxIterations: cfg.RefineMaxIterations,
	})
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	data := report.FromFit(source, m, res)

	names := m.ParamNames()
	params := make([]NamedParam, len(names))
	for i, name := range names {
		params[i] = NamedParam{Name: name, Value: res.Params[i]}
	}

	result := &Result{
		Source:            source,
		Nobs:              m.NumObs(),
		Regimes:           m.Regimes(),
		Order:             m.Order(),
		Trend:             cfg.Trend,
		SwitchingVariance: cfg.SwitchingVariance,
		LogLikelihood:     res.LogLikelihood,
		EMIterations:      res.EMIterations,
		Converged:         res.Converged,
		Refined:           res.Refined,
		Params:            params,
	}

	if cfg.DBPath != "" {
		runID, err := persistRun(cfg, rows, initial, data, res)
		if err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
		result.RunID = runID
		log.Printf("Run saved as %s in %s", runID, cfg.DBPath)
	}

	if cfg.ReportPath != "" {
		if err := writeReport(cfg.ReportPath, data); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
		log.Printf("Report written to: %s", cfg.ReportPath)
	}

	if cfg.PlotDir != "" {
		if err := savePlots(cfg.PlotDir, data); err != nil {
			return nil, fmt.Errorf("save plots: %w", err)
		}
		log.Printf("Plots written to: %s", cfg.PlotDir)
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	return result, nil
}

// readSeries loads one observation per line, skipping blank lines and
// # comments. A line with comma-separated fields contributes its first
// field, so single-column CSV exports load unchanged.
func readSeries(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var series []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if i := strings.IndexByte(text, ','); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid value %q: %w", path, line, text, err)
		}
		series = append(series, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s contains no observations", path)
	}
	return series, nil
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// switchBlock expands a whole-block switching toggle into the
// per-coefficient flags the model takes.
func switchBlock(on bool, n int) []bool {
	if on {
		return msar.SwitchAll(n)
	}
	return msar.SwitchNone(n)
}

// parseTransition parses a row-major transition matrix written as
// semicolon-separated rows of comma-separated probabilities, for
// example "0.9,0.1;0.1,0.9".
func parseTransition(s string) ([][]float64, error) {
	specs := strings.Split(s, ";")
	rows := make([][]float64, 0, len(specs))
	for _, spec := range specs {
		row, err := parseCSVFloatSlice(strings.TrimSpace(spec))
		if err != nil {
			return nil, fmt.Errorf("transition matrix: %w", err)
		}
		if len(row) == 0 {
			return nil, fmt.Errorf("transition matrix: empty row in %q", s)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// persistRun saves the run, its scored series and its smoothed regime
// probabilities, and returns the generated run ID.
func persistRun(cfg Config, rows [][]float64, initial []float64, data *report.Data, res *msar.FitResult) (string, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	params := make([]store.Param, len(data.ParamNames))
	for i, name := range data.ParamNames {
		params[i] = store.Param{Position: i, Name: name, Value: data.Params[i]}
	}

	// Record the resolved estimation settings with the run so a report
	// rebuilt later can state how the fit was produced.
	resolved := config.EstimationConfig{
		Regimes:             &cfg.Regimes,
		Order:               &cfg.Order,
		Trend:               &cfg.Trend,
		SwitchingVariance:   &cfg.SwitchingVariance,
		SwitchingTrend:      cfg.SwitchingTrend,
		SwitchingAR:         cfg.SwitchingAR,
		Transition:          rows,
		Initial:             initial,
		EMMaxIterations:     &cfg.EMMaxIterations,
		EMTolerance:         &cfg.EMTolerance,
		Refine:              &cfg.Refine,
		RefineMaxIterations: &cfg.RefineMaxIterations,
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	run := &store.Run{
		Source:            data.Title,
		Regimes:           cfg.Regimes,
		Order:             cfg.Order,
		Trend:             cfg.Trend,
		SwitchingVariance: cfg.SwitchingVariance,
		EMIterations:      res.EMIterations,
		Converged:         res.Converged,
		Refined:           res.Refined,
		LogLikelihood:     res.LogLikelihood,
		ConfigJSON:        raw,
		Notes:             cfg.Notes,
		Params:            params,
	}
	if err := st.SaveRun(run); err != nil {
		return "", err
	}
	if err := st.SaveSeries(run.RunID, data.Series); err != nil {
		return "", err
	}
	if err := st.SaveProbabilities(run.RunID, data.Probabilities); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func writeReport(path string, data *report.Data) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return data.WriteHTML(f)
}

func savePlots(dir string, data *report.Data) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := data.SaveSeriesPNG(filepath.Join(dir, "series.png")); err != nil {
		return err
	}
	return data.SaveProbabilityPNG(filepath.Join(dir, "probabilities.png"))
}
