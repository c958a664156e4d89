// Command msar-report renders the HTML report and PNG plots for a
// stored estimation run without refitting. By default the most recent
// run in the store is rendered.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/markovswitch/internal/report"
	"github.com/banshee-data/markovswitch/internal/store"
)

func main() {
	dbPath := flag.String("db", "runs.db", "SQLite run store")
	runID := flag.String("run", "", "Run ID to render (default: latest)")
	outPath := flag.String("out", "report.html", "HTML report output path")
	plotDir := flag.String("plot", "", "Directory for PNG plots (optional)")
	title := flag.String("title", "", "Report title (default: run source)")
	list := flag.Bool("list", false, "List stored runs and exit")

	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("msar-report: %v", err)
	}
	defer st.Close()

	if *list {
		if err := listRuns(st, os.Stdout); err != nil {
			log.Fatalf("msar-report: %v", err)
		}
		return
	}

	id := *runID
	if id == "" {
		id, err = st.LatestRunID()
		if err != nil {
			log.Fatalf("msar-report: %v", err)
		}
		log.Printf("Rendering latest run %s", id)
	}

	data, err := loadRunData(st, id, *title)
	if err != nil {
		log.Fatalf("msar-report: %v", err)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("msar-report: %v", err)
	}
	if err := data.WriteHTML(f); err != nil {
		f.Close()
		log.Fatalf("msar-report: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("msar-report: %v", err)
	}
	log.Printf("Report written to: %s", *outPath)

	if *plotDir != "" {
		if err := savePlots(*plotDir, data); err != nil {
			log.Fatalf("msar-report: %v", err)
		}
		log.Printf("Plots written to: %s", *plotDir)
	}
}

// loadRunData rebuilds report data from a stored run.
func loadRunData(st *store.Store, runID, title string) (*report.Data, error) {
	run, err := st.GetRun(runID)
	if err != nil {
		return nil, err
	}
	series, err := st.Series(runID)
	if err != nil {
		return nil, err
	}
	probs, err := st.Probabilities(runID)
	if err != nil {
		return nil, err
	}
	if len(series) != len(probs) {
		return nil, fmt.Errorf("run %s has %d series values but %d probability rows", runID, len(series), len(probs))
	}

	if title == "" {
		title = run.Source
	}
	names := make([]string, len(run.Params))
	values := make([]float64, len(run.Params))
	for i, p := range run.Params {
		names[i] = p.Name
		values[i] = p.Value
	}

	return &report.Data{
		Title:         title,
		Series:        series,
		Probabilities: probs,
		ParamNames:    names,
		Params:        values,
		LogLikelihood: run.LogLikelihood,
		EMIterations:  run.EMIterations,
		Converged:     run.Converged,
		Refined:       run.Refined,
	}, nil
}

func listRuns(st *store.Store, w io.Writer) error {
	runs, err := st.ListRuns(20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no stored runs")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-16s  %s\n", "RUN", "CREATED", "SOURCE", "LOG-LIK")
	for _, r := range runs {
		created := time.Unix(0, r.CreatedAt).Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%-36s  %-19s  %-16s  %.4f\n", r.RunID, created, r.Source, r.LogLikelihood)
	}
	return nil
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
