package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveSeriesPNG writes a static chart of the observed series.
func (d *Data) SaveSeriesPNG(path string) error {
	p := plot.New()
	p.Title.Text = d.Title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "y"

	pts := make(plotter.XYs, len(d.Series))
	for t, v := range d.Series {
		pts[t] = plotter.XY{X: float64(t), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("series line: %w", err)
	}
	line.Color = regimePalette(1)[0]
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save series plot: %w", err)
	}
	return nil
}

// SaveProbabilityPNG writes a static chart of the smoothed regime
// probabilities, one line per regime.
func (d *Data) SaveProbabilityPNG(path string) error {
	p := plot.New()
	p.Title.Text = "Smoothed regime probabilities"
	p.X.Label.Text = "t"
	p.Y.Label.Text = "probability"
	p.Y.Min = 0
	p.Y.Max = 1

	colors := regimePalette(d.Regimes())
	for i := 0; i < d.Regimes(); i++ {
		pts := make(plotter.XYs, len(d.Probabilities))
		for t, row := range d.Probabilities {
			pts[t] = plotter.XY{X: float64(t), Y: row[i]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("regime %d line: %w", i, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("regime %d", i), line)
	}
	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save probability plot: %w", err)
	}
	return nil
}

// regimePalette returns n distinct line colors, cycling once the fixed
// palette runs out.
func regimePalette(n int) []color.Color {
	base := []color.Color{
		color.RGBA{R: 31, G: 119, B: 180, A: 255},
		color.RGBA{R: 255, G: 127, B: 14, A: 255},
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
		color.RGBA{R: 148, G: 103, B: 189, A: 255},
		color.RGBA{R: 140, G: 86, B: 75, A: 255},
	}
	out := make([]color.Color, n)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}
