// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// NewGonumPlot creates a gonum plot with one line per metric of the given type.
// If logScale is true, the Y-axis uses a log scale, and non-positive values are dropped.
func NewGonumPlot(points Points, metricType string, logScale bool) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = metricType + " per iteration"
	p.X.Label.Text = "Iterations"
	p.Y.Label.Text = metricType
	if logScale {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	var lines []any
	for _, name := range points.MetricsNames() {
		var xys plotter.XYs
		points.Map(func(pt *Point) {
			if pt.MetricName != name || pt.MetricType != metricType {
				return
			}
			if logScale && pt.Value <= 0 {
				return
			}
			xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
		})
		if len(xys) > 0 {
			lines = append(lines, name, xys)
		}
	}
	if len(lines) == 0 {
		return nil, errors.Errorf("no %q points to plot", metricType)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, errors.Wrapf(err, "adding lines to plot")
	}
	return p, nil
}

// SavePNG draws the points of metricType with gonum/plot, and saves it to filePath. The image format
// is taken from the file extension (".png", ".svg", ".pdf", ...).
func SavePNG(points Points, metricType string, logScale bool, filePath string, width, height vg.Length) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	p, err := NewGonumPlot(points, metricType, logScale)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.Save(width, height, filePath), "saving plot to %q", filePath)
}
