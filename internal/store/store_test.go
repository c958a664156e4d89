package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/markovswitch/internal/testutil"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() *Run {
	return &Run{
		Source:            "demo",
		Regimes:           2,
		Order:             1,
		Trend:             "c",
		SwitchingVariance: true,
		EMIterations:      12,
		Converged:         true,
		Refined:           false,
		LogLikelihood:     -181.26,
		ConfigJSON:        json.RawMessage(`{"regimes": 2}`),
		Notes:             "hamilton demo",
		Params: []Param{
			{Position: 0, Name: "const[0]", Value: 1.16},
			{Position: 1, Name: "const[1]", Value: -0.36},
			{Position: 2, Name: "ar.L1[0]", Value: 0.01},
			{Position: 3, Name: "ar.L1[1]", Value: 0.48},
			{Position: 4, Name: "sigma2[0]", Value: 0.54},
			{Position: 5, Name: "sigma2[1]", Value: 1.05},
		},
	}
}

func TestStoreSaveAndGetRun(t *testing.T) {
	s := setupTestStore(t)

	run := sampleRun()
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.RunID == "" {
		t.Error("expected run_id to be generated")
	}
	if run.CreatedAt == 0 {
		t.Error("expected created_at to be set")
	}

	got, err := s.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreGetRunMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun("no-such-run")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListRuns(t *testing.T) {
	s := setupTestStore(t)

	old := sampleRun()
	old.RunID = "run-old"
	old.CreatedAt = 100
	recent := sampleRun()
	recent.RunID = "run-recent"
	recent.CreatedAt = 200
	for _, r := range []*Run{old, recent} {
		if err := s.SaveRun(r); err != nil {
			t.Fatalf("SaveRun %s failed: %v", r.RunID, err)
		}
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-recent" || runs[1].RunID != "run-old" {
		t.Errorf("expected newest first, got %s then %s", runs[0].RunID, runs[1].RunID)
	}
	if len(runs[0].Params) != 0 {
		t.Errorf("summaries should not carry parameter vectors, got %d entries", len(runs[0].Params))
	}

	limited, err := s.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns(1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "run-recent" {
		t.Errorf("expected only the newest run, got %v", limited)
	}
}

func TestStoreLatestRunID(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.LatestRunID(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on empty store, got %v", err)
	}

	run := sampleRun()
	run.RunID = "run-latest"
	run.CreatedAt = 300
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	id, err := s.LatestRunID()
	if err != nil {
		t.Fatalf("LatestRunID failed: %v", err)
	}
	if id != "run-latest" {
		t.Errorf("latest run = %s, want run-latest", id)
	}
}

func TestStoreSeriesRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	run := sampleRun()
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	series := []float64{1.3, -0.2, 0.8, 2.1, -1.4}
	if err := s.SaveSeries(run.RunID, series); err != nil {
		t.Fatalf("SaveSeries failed: %v", err)
	}

	got, err := s.Series(run.RunID)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if diff := cmp.Diff(series, got); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreProbabilitiesRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	run := sampleRun()
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	probs := [][]float64{{0.9, 0.1}, {0.75, 0.25}, {0.2, 0.8}}
	if err := s.SaveProbabilities(run.RunID, probs); err != nil {
		t.Fatalf("SaveProbabilities failed: %v", err)
	}

	got, err := s.Probabilities(run.RunID)
	if err != nil {
		t.Fatalf("Probabilities failed: %v", err)
	}
	if diff := cmp.Diff(probs, got); diff != "" {
		t.Errorf("probabilities mismatch (-want +got):\n%s", diff)
	}
	testutil.AssertProbabilityRows(t, got)
}

func TestStoreDeleteRun(t *testing.T) {
	s := setupTestStore(t)

	run := sampleRun()
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveSeries(run.RunID, []float64{1, 2, 3}); err != nil {
		t.Fatalf("SaveSeries failed: %v", err)
	}
	if err := s.SaveProbabilities(run.RunID, [][]float64{{1, 0}}); err != nil {
		t.Fatalf("SaveProbabilities failed: %v", err)
	}

	if err := s.DeleteRun(run.RunID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := s.GetRun(run.RunID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	series, err := s.Series(run.RunID)
	if err != nil {
		t.Fatalf("Series after delete failed: %v", err)
	}
	if len(series) != 0 {
		t.Errorf("expected no observations after delete, got %d", len(series))
	}

	if err := s.DeleteRun(run.RunID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStoreReopenMigratesCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	run := sampleRun()
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// A second open finds the schema already current and must not fail.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun after reopen failed: %v", err)
	}
	if got.Source != run.Source {
		t.Errorf("source mismatch: got %s, want %s", got.Source, run.Source)
	}
}
