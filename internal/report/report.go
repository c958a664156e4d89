// Package report renders estimation results as an interactive HTML
// page and as static PNG charts. Rendering works from a plain Data
// value, so stored runs can be re-rendered without refitting.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/markovswitch/internal/msar"
)

// Data holds everything a rendered report needs.
type Data struct {
	Title         string
	Series        []float64   // scored observations
	Probabilities [][]float64 // one row per observation, one entry per regime
	ParamNames    []string
	Params        []float64
	LogLikelihood float64
	EMIterations  int
	Converged     bool
	Refined       bool
}

// FromFit assembles report data from a fitted model.
func FromFit(title string, m *msar.Model, res *msar.FitResult) *Data {
	marg := res.Smoothed.SmoothedMarginal
	k, nobs := marg.Dims()
	probs := make([][]float64, nobs)
	for t := 0; t < nobs; t++ {
		row := make([]float64, k)
		for i := 0; i < k; i++ {
			row[i] = marg.At(i, t)
		}
		probs[t] = row
	}
	return &Data{
		Title:         title,
		Series:        m.Endog(),
		Probabilities: probs,
		ParamNames:    m.ParamNames(),
		Params:        append([]float64(nil), res.Params...),
		LogLikelihood: res.LogLikelihood,
		EMIterations:  res.EMIterations,
		Converged:     res.Converged,
		Refined:       res.Refined,
	}
}

// Regimes returns the regime count carried by the probability rows.
func (d *Data) Regimes() int {
	if len(d.Probabilities) == 0 {
		return 0
	}
	return len(d.Probabilities[0])
}

// WriteHTML renders the full report page: the observed series, the
// smoothed regime probabilities and the parameter estimates.
func (d *Data) WriteHTML(w io.Writer) error {
	page := components.NewPage()
	page.AddCharts(d.seriesChart(), d.probabilityChart(), d.paramChart())
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func (d *Data) subtitle() string {
	status := "not converged"
	if d.Converged {
		status = "converged"
	}
	if d.Refined {
		status += ", refined"
	}
	return fmt.Sprintf("log-likelihood=%.4f EM iterations=%d (%s)", d.LogLikelihood, d.EMIterations, status)
}

func (d *Data) timeAxis() []int {
	xs := make([]int, len(d.Series))
	for t := range xs {
		xs[t] = t
	}
	return xs
}

func (d *Data) seriesChart() *charts.Line {
	data := make([]opts.LineData, len(d.Series))
	for t, v := range d.Series {
		data[t] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: d.Title, Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: d.Title, Subtitle: d.subtitle()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(d.timeAxis()).AddSeries("observed", data)
	return line
}

func (d *Data) probabilityChart() *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Smoothed regime probabilities"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "probability", Min: 0, Max: 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(d.timeAxis())
	for i := 0; i < d.Regimes(); i++ {
		data := make([]opts.LineData, len(d.Probabilities))
		for t, row := range d.Probabilities {
			data[t] = opts.LineData{Value: row[i]}
		}
		line.AddSeries(fmt.Sprintf("regime %d", i), data)
	}
	return line
}

func (d *Data) paramChart() *charts.Bar {
	data := make([]opts.BarData, len(d.Params))
	for j, v := range d.Params {
		data[j] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Parameter estimates"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(d.ParamNames).
		AddSeries("estimate", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
