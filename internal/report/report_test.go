package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/markovswitch/internal/msar"
	"github.com/banshee-data/markovswitch/internal/testutil"
)

// fittedData estimates a small two-level model and wraps it for
// rendering.
func fittedData(t *testing.T) *Data {
	t.Helper()

	series := make([]float64, 60)
	for i := range series {
		base := 0.9
		if i >= 30 {
			base = -0.8
		}
		series[i] = base + 0.05*float64(i%5)
	}

	cfg := msar.DefaultModelConfig()
	cfg.SwitchingVariance = true
	m, err := msar.NewModel(series, 2, 0, cfg)
	testutil.AssertNoError(t, err)

	res, err := m.Fit(msar.FitConfig{MaxEMIterations: 5, EMTolerance: 1e-6})
	testutil.AssertNoError(t, err)

	return FromFit("demo fit", m, res)
}

func TestFromFit(t *testing.T) {
	d := fittedData(t)

	if d.Title != "demo fit" {
		t.Errorf("title = %q, want demo fit", d.Title)
	}
	if len(d.Series) != 60 {
		t.Errorf("series length = %d, want 60", len(d.Series))
	}
	if len(d.Probabilities) != 60 {
		t.Errorf("probability rows = %d, want 60", len(d.Probabilities))
	}
	if d.Regimes() != 2 {
		t.Errorf("regimes = %d, want 2", d.Regimes())
	}
	if len(d.ParamNames) != len(d.Params) {
		t.Errorf("have %d names for %d params", len(d.ParamNames), len(d.Params))
	}
	testutil.AssertAllFinite(t, d.Params)
	testutil.AssertProbabilityRows(t, d.Probabilities)
}

func TestRegimesEmpty(t *testing.T) {
	d := &Data{}
	if d.Regimes() != 0 {
		t.Errorf("regimes = %d, want 0", d.Regimes())
	}
}

func TestWriteHTML(t *testing.T) {
	d := fittedData(t)

	var buf bytes.Buffer
	testutil.AssertNoError(t, d.WriteHTML(&buf))

	html := buf.String()
	for _, want := range []string{"echarts", "demo fit", "regime 1", "Parameter estimates"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page is missing %q", want)
		}
	}
}

func TestSavePNGs(t *testing.T) {
	d := fittedData(t)
	dir := t.TempDir()

	seriesPath := filepath.Join(dir, "series.png")
	testutil.AssertNoError(t, d.SaveSeriesPNG(seriesPath))

	probPath := filepath.Join(dir, "probabilities.png")
	testutil.AssertNoError(t, d.SaveProbabilityPNG(probPath))

	for _, path := range []string{seriesPath, probPath} {
		info, err := os.Stat(path)
		testutil.AssertNoError(t, err)
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}
