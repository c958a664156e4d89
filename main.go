// Command msar fits a Markov-switching autoregression to a univariate
// series and reports the estimated parameters and smoothed regime
// probabilities. Runs can be persisted to a SQLite store and rendered
// as HTML reports or PNG plots.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/markovswitch/internal/config"
	"github.com/banshee-data/markovswitch/internal/version"
)

// Config holds the resolved command-line configuration.
type Config struct {
	Input       string
	Demo        bool
	ConfigFile  string
	ShowVersion bool

	Regimes           int
	Order             int
	Trend             string
	SwitchingVariance bool
	SwitchingTrend    *bool  // nil: model default (switching)
	SwitchingAR       *bool  // nil: model default (switching)
	Transition        string // "0.9,0.1;0.1,0.9" style rows
	TransitionRows    [][]float64
	Initial           string // "0.5,0.5" style distribution
	InitialDist       []float64

	EMMaxIterations     int
	EMTolerance         float64
	Refine              bool
	RefineMaxIterations int
	Seed                uint64

	DBPath     string
	ReportPath string
	PlotDir    string
	OutputJSON string
	Notes      string
}

// NamedParam pairs a parameter name with its estimate.
type NamedParam struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Result summarises one estimation run.
type Result struct {
	Source            string       `json:"source"`
	Nobs              int          `json:"nobs"`
	Regimes           int          `json:"regimes"`
	Order             int          `json:"order"`
	Trend             string       `json:"trend"`
	SwitchingVariance bool         `json:"switching_variance"`
	LogLikelihood     float64      `json:"log_likelihood"`
	EMIterations      int          `json:"em_iterations"`
	Converged         bool         `json:"converged"`
	Refined           bool         `json:"refined"`
	Params            []NamedParam `json:"params"`
	RunID             string       `json:"run_id,omitempty"`
	ProcessingTimeMs  int64        `json:"processing_time_ms"`
}

func main() {
	cfg, setFlags := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("msar %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if cfg.Input == "" && !cfg.Demo {
		log.Fatal("input series file is required (or pass -demo)")
	}
	if cfg.Input != "" && cfg.Demo {
		log.Fatal("-demo cannot be combined with an input file")
	}

	if cfg.ConfigFile != "" {
		if err := applyConfigFile(&cfg, setFlags); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	result, err := run(cfg)
	if err != nil {
		log.Fatalf("Estimation failed: %v", err)
	}

	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() (Config, map[string]bool) {
	cfg := Config{}

	flag.StringVar(&cfg.Input, "input", "", "Series file to fit (one value per line, # comments)")
	flag.BoolVar(&cfg.Demo, "demo", false, "Fit a simulated series instead of reading -input")
	flag.StringVar(&cfg.ConfigFile, "config", "", "JSON estimation config file (explicit flags win)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	flag.IntVar(&cfg.Regimes, "regimes", 2, "Number of regimes")
	flag.IntVar(&cfg.Order, "order", 1, "Autoregressive order")
	flag.StringVar(&cfg.Trend, "trend", "c", "Trend specification: n, c, t or ct")
	flag.BoolVar(&cfg.SwitchingVariance, "switching-variance", false, "Let the innovation variance switch with the regime")
	swTrend := flag.Bool("switching-trend", true, "Let trend coefficients switch with the regime")
	swAR := flag.Bool("switching-ar", true, "Let autoregressive coefficients switch with the regime")
	flag.StringVar(&cfg.Transition, "transition", "", "Transition matrix rows, e.g. '0.9,0.1;0.1,0.9' (default uniform)")
	flag.StringVar(&cfg.Initial, "initial", "", "Pre-sample regime distribution, e.g. '0.5,0.5' (default steady state)")

	flag.IntVar(&cfg.EMMaxIterations, "em-iterations", 50, "Maximum EM iterations")
	flag.Float64Var(&cfg.EMTolerance, "em-tolerance", 1e-6, "Relative log-likelihood tolerance for EM convergence")
	flag.BoolVar(&cfg.Refine, "refine", true, "Polish the EM estimate with Nelder-Mead")
	flag.IntVar(&cfg.RefineMaxIterations, "refine-iterations", 500, "Maximum refinement iterations")
	flag.Uint64Var(&cfg.Seed, "seed", 1, "Random seed for the -demo simulation")

	flag.StringVar(&cfg.DBPath, "db", "", "SQLite run store to persist the run into")
	flag.StringVar(&cfg.ReportPath, "report", "", "HTML report output path")
	flag.StringVar(&cfg.PlotDir, "plot", "", "Directory for PNG plots")
	flag.StringVar(&cfg.OutputJSON, "json", "", "JSON result output path")
	flag.StringVar(&cfg.Notes, "notes", "", "Free-form note stored with the run")

	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// The block toggles only carry meaning when the user passed them;
	// the model keeps its own defaults otherwise.
	if set["switching-trend"] {
		cfg.SwitchingTrend = swTrend
	}
	if set["switching-ar"] {
		cfg.SwitchingAR = swAR
	}

	return cfg, set
}

// applyConfigFile fills cfg from a JSON estimation config file. Flags
// the user passed explicitly keep their command-line values.
func applyConfigFile(cfg *Config, set map[string]bool) error {
	fileCfg, err := config.LoadEstimationConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	if !set["regimes"] {
		cfg.Regimes = fileCfg.GetRegimes()
	}
	if !set["order"] {
		cfg.Order = fileCfg.GetOrder()
	}
	if !set["trend"] {
		cfg.Trend = fileCfg.GetTrend()
	}
	if !set["switching-variance"] {
		cfg.SwitchingVariance = fileCfg.GetSwitchingVariance()
	}
	if !set["switching-trend"] && fileCfg.SwitchingTrend != nil {
		cfg.SwitchingTrend = fileCfg.SwitchingTrend
	}
	if !set["switching-ar"] && fileCfg.SwitchingAR != nil {
		cfg.SwitchingAR = fileCfg.SwitchingAR
	}
	if !set["em-iterations"] {
		cfg.EMMaxIterations = fileCfg.GetEMMaxIterations()
	}
	if !set["em-tolerance"] {
		cfg.EMTolerance = fileCfg.GetEMTolerance()
	}
	if !set["refine"] {
		cfg.Refine = fileCfg.GetRefine()
	}
	if !set["refine-iterations"] {
		cfg.RefineMaxIterations = fileCfg.GetRefineMaxIterations()
	}
	if !set["seed"] {
		cfg.Seed = fileCfg.GetSeed()
	}
	// Explicit -transition and -initial flags win inside run; only the
	// parsed forms are filled here.
	cfg.TransitionRows = fileCfg.GetTransition()
	cfg.InitialDist = fileCfg.GetInitial()
	return nil
}

func printResults(result *Result) {
	fmt.Println("\n=== Markov-Switching Autoregression Fit ===")
	fmt.Printf("Source: %s\n", result.Source)
	fmt.Printf("Observations: %d\n", result.Nobs)
	fmt.Printf("Regimes: %d  Order: %d  Trend: %s\n", result.Regimes, result.Order, result.Trend)
	fmt.Printf("Switching Variance: %v\n", result.SwitchingVariance)
	fmt.Printf("Processing Time: %d ms\n", result.ProcessingTimeMs)

	fmt.Println("\n--- Estimate ---")
	fmt.Printf("Log-Likelihood: %.6f\n", result.LogLikelihood)
	converged := "no"
	if result.Converged {
		converged = "yes"
	}
	fmt.Printf("EM Iterations: %d (converged: %s)\n", result.EMIterations, converged)
	fmt.Printf("Refined: %v\n", result.Refined)

	fmt.Println("\n--- Parameters ---")
	for _, p := range result.Params {
		fmt.Printf("  %-24s %12.6f\n", p.Name, p.Value)
	}

	if result.RunID != "" {
		fmt.Printf("\nRun ID: %s\n", result.RunID)
	}
}

func exportJSON(result *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
