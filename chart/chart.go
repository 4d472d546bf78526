// Package chart draws the training loss history.
package chart

import (
	"errors"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch
)

// History plots the loss recorded at every checkpoint against the global
// step. Checkpoints are stepsPerCheckpoint steps apart. Non-finite losses
// are left out.
func History(title string, losses []float64, stepsPerCheckpoint int) (*plot.Plot, error) {
	var pts plotter.XYs
	for i, loss := range losses {
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64((i + 1) * stepsPerCheckpoint), Y: loss})
	}

	if len(pts) == 0 {
		return nil, errors.New("no finite losses to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	p.Legend.Add("train loss", line)
	p.Legend.Top = true

	return p, nil
}

// Save writes the plot to path in the format named by its extension.
func Save(p *plot.Plot, path string) error {
	return p.Save(width, height, path)
}

// WritePNG encodes the plot as PNG to w.
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}

	_, err = wt.WriteTo(w)
	return err
}
