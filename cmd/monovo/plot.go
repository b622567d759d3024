package main

import (
	"context"
	"image/color"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/monovo/vision/odometry"
)

// plotSink saves the path of a trajectory recorder when the session run ends.
type plotSink struct {
	out      string
	recorder *odometry.TrajectoryRecorder
}

func newPlotSink(out string, recorder *odometry.TrajectoryRecorder) *plotSink {
	return &plotSink{out: out, recorder: recorder}
}

// Consume does nothing, the recorder keeps the poses.
func (ps *plotSink) Consume(ctx context.Context, result odometry.PairResult) error {
	return nil
}

// Close renders the x-z path.
func (ps *plotSink) Close() error {
	return savePathPlot(ps.recorder.Path(), ps.out)
}

func savePathPlot(path []r2.Point, out string) error {
	p := plot.New()
	p.Title.Text = "camera trajectory"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "z"
	p.Add(plotter.NewGrid())

	pts := plotter.XYs(lo.Map(path, func(pt r2.Point, _ int) plotter.XY {
		return plotter.XY{X: pt.X, Y: pt.Y}
	}))
	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return errors.Wrap(err, "cannot plot trajectory")
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1)
	scatter.Radius = vg.Points(2)
	p.Add(line, scatter)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, out); err != nil {
		return errors.Wrapf(err, "cannot save trajectory plot %q", out)
	}
	return nil
}
