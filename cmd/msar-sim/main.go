// Command msar-sim generates draws from a Markov-switching
// autoregression. The output loads unchanged into the msar estimation
// CLI, with the generating regime optionally recorded alongside each
// observation.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/markovswitch/internal/msar"
)

func main() {
	nobs := flag.Int("n", 200, "Number of observations")
	burn := flag.Int("burn", 50, "Burn-in observations discarded before the sample")
	seed := flag.Uint64("seed", 1, "Random seed")
	constList := flag.String("const", "0.5,-0.8", "Per-regime intercepts, comma-separated")
	arList := flag.String("ar", "0.6;0.2", "Per-regime AR coefficients, rows separated by semicolons (empty for none)")
	stddevList := flag.String("stddev", "0.4,1.1", "Per-regime innovation standard deviations")
	transition := flag.String("transition", "0.95,0.05;0.1,0.9", "Transition matrix rows, e.g. '0.95,0.05;0.1,0.9'")
	out := flag.String("out", "", "Output file (default stdout)")
	withStates := flag.Bool("states", false, "Record the generating regime in a second column")

	flag.Parse()

	cfg, err := buildSimConfig(*nobs, *burn, *seed, *constList, *arList, *stddevList, *transition)
	if err != nil {
		log.Fatalf("msar-sim: %v", err)
	}

	series, states, err := msar.Simulate(cfg)
	if err != nil {
		log.Fatalf("msar-sim: %v", err)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("msar-sim: %v", err)
		}
		defer f.Close()
		w = f
	}

	if err := writeSeries(w, cfg, series, states, *withStates); err != nil {
		log.Fatalf("msar-sim: %v", err)
	}
	if *out != "" {
		log.Printf("Wrote %d observations to %s", len(series), *out)
	}
}

// buildSimConfig assembles a simulation config from the flag values.
// Cross-field consistency (regime counts, row sums) is left to the
// simulator's own validation.
func buildSimConfig(nobs, burn int, seed uint64, constList, arList, stddevList, transition string) (msar.SimConfig, error) {
	consts, err := parseCSVFloatSlice(constList)
	if err != nil {
		return msar.SimConfig{}, fmt.Errorf("const: %w", err)
	}
	if len(consts) == 0 {
		return msar.SimConfig{}, fmt.Errorf("at least one regime intercept is required")
	}

	stddevs, err := parseCSVFloatSlice(stddevList)
	if err != nil {
		return msar.SimConfig{}, fmt.Errorf("stddev: %w", err)
	}

	ar, err := parseSemicolonFloatRows(arList)
	if err != nil {
		return msar.SimConfig{}, fmt.Errorf("ar: %w", err)
	}
	if ar == nil {
		// No autoregressive terms: one empty coefficient row per regime.
		ar = make([][]float64, len(consts))
	}

	trans, err := parseSemicolonFloatRows(transition)
	if err != nil {
		return msar.SimConfig{}, fmt.Errorf("transition: %w", err)
	}

	return msar.SimConfig{
		Nobs:       nobs,
		Const:      consts,
		AR:         ar,
		StdDev:     stddevs,
		Transition: trans,
		Burn:       burn,
		Seed:       seed,
	}, nil
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

// parseSemicolonFloatRows parses semicolon-separated rows of
// comma-separated floats. An empty string parses to nil.
func parseSemicolonFloatRows(s string) ([][]float64, error) {
	if s == "" {
		return nil, nil
	}
	specs := strings.Split(s, ";")
	rows := make([][]float64, 0, len(specs))
	for _, spec := range specs {
		row, err := parseCSVFloatSlice(strings.TrimSpace(spec))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeSeries writes the sample with a commented header, one
// observation per line. With states enabled each line carries the
// generating regime after the value; the estimation CLI reads only the
// first field either way.
func writeSeries(w io.Writer, cfg msar.SimConfig, series []float64, states []int, withStates bool) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# msar-sim: %d observations, %d regimes, seed %d\n", len(series), len(cfg.Const), cfg.Seed)
	if withStates {
		fmt.Fprintf(bw, "# value,regime\n")
	}
	for t, v := range series {
		if withStates {
			fmt.Fprintf(bw, "%g,%d\n", v, states[t])
		} else {
			fmt.Fprintf(bw, "%g\n", v)
		}
	}
	return bw.Flush()
}
