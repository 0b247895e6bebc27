// Package report renders diagnostic output for an estimation run.
package report

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/andresmejia3/vitals/internal/rppg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNothingToPlot is returned when the run never produced a filtered signal.
var ErrNothingToPlot = errors.New("no filtered signal to plot")

var (
	signalColor = color.RGBA{R: 30, G: 120, B: 200, A: 255}
	peakColor   = color.RGBA{R: 220, G: 40, B: 40, A: 255}
)

// NewPlot draws the filtered signal against time with the detected beats marked.
func NewPlot(est rppg.Estimate) (*plot.Plot, error) {
	if len(est.Filtered) == 0 {
		return nil, ErrNothingToPlot
	}
	rate := est.SampleRate
	if rate <= 0 {
		rate = rppg.DefaultSampleRate
	}

	p := plot.New()
	p.Title.Text = title(est)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Filtered green (a.u.)"

	pts := make(plotter.XYs, len(est.Filtered))
	for i, v := range est.Filtered {
		pts[i] = plotter.XY{X: float64(i) / rate, Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = signalColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("signal", line)

	if len(est.Peaks) > 0 {
		peakPts := make(plotter.XYs, 0, len(est.Peaks))
		for _, idx := range est.Peaks {
			if idx < 0 || idx >= len(est.Filtered) {
				continue
			}
			peakPts = append(peakPts, plotter.XY{X: float64(idx) / rate, Y: est.Filtered[idx]})
		}
		scatter, err := plotter.NewScatter(peakPts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = peakColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("beats (%d)", len(peakPts)), scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func title(est rppg.Estimate) string {
	if est.IsFallback() {
		return fmt.Sprintf("%.1f BPM (fallback: %s)", est.BPM, est.Reason)
	}
	return fmt.Sprintf("%.1f BPM", est.BPM)
}

// WritePlot saves the plot of est to path. The format follows the extension.
func WritePlot(path string, est rppg.Estimate) error {
	p, err := NewPlot(est)
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
