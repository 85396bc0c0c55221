// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"fmt"
	"os"
	"path/filepath"

	mg "github.com/erkkah/margaid"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotCurves writes one curve per objective column into dir, named
// "loss_<Label>.pdf". Existing files are overwritten. The x axis runs over
// the recorded epochs.
func (c *Criterion) PlotCurves(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "creating plot directory %q", dir)
	}
	for j, term := range c.terms {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s Loss", term.Label)
		p.X.Label.Text = "Epochs"
		p.Y.Label.Text = "Loss"
		p.Add(plotter.NewGrid())

		values := c.history.Column(j)
		points := make(plotter.XYs, len(values))
		for i, value := range values {
			points[i].X = float64(i + 1)
			points[i].Y = value
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrapf(err, "building %s curve", term.Label)
		}
		p.Add(line)
		p.Legend.Add(p.Title.Text, line)

		filePath := filepath.Join(dir, fmt.Sprintf("loss_%s.pdf", term.Label))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, filePath); err != nil {
			return errors.Wrapf(err, "saving %s", filePath)
		}
	}
	return nil
}

// PlotCurvesSVG writes the same curves as PlotCurves rendered to
// "loss_<Label>.svg" files, for embedding in web pages or notebooks.
func (c *Criterion) PlotCurvesSVG(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "creating plot directory %q", dir)
	}
	for j, term := range c.terms {
		s := mg.NewSeries(mg.Titled(term.Label))
		for i, value := range c.history.Column(j) {
			s.Add(mg.MakeValue(float64(i+1), value))
		}
		diagram := mg.New(800, 400,
			mg.WithAutorange(mg.XAxis, s),
			mg.WithAutorange(mg.YAxis, s),
			mg.WithInset(70),
			mg.WithPadding(2),
			mg.WithColorScheme(90),
			mg.WithBackgroundColor("#f8f8f8"),
		)
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingStrokeWidth(2))
		diagram.Axis(s, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Epochs")
		diagram.Axis(s, mg.YAxis, diagram.ValueTicker('f', 4, 10), true, "Loss")
		diagram.Frame()
		diagram.Title(fmt.Sprintf("%s Loss", term.Label))

		filePath := filepath.Join(dir, fmt.Sprintf("loss_%s.svg", term.Label))
		f, err := os.Create(filePath)
		if err != nil {
			return errors.Wrapf(err, "creating %s", filePath)
		}
		if err := diagram.Render(f); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "rendering %s", filePath)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "closing %s", filePath)
		}
	}
	return nil
}
