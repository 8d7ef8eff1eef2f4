// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"fmt"
	"io"
	"os"
	"slices"

	mg "github.com/erkkah/margaid"
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// SVG draws the points of one metric type with Margaid (https://github.com/erkkah/margaid/), one line
// per metric name. It implements Plotter.
type SVG struct {
	// Image dimensions.
	Width, Height int

	// MetricType used as the Y-axis label and the title.
	MetricType string

	perName   map[string]*mg.Series
	allPoints *mg.Series

	xProjection, yProjection mg.Projection
}

// NewSVG creates an empty SVG plot of the given dimensions.
func NewSVG(width, height int, metricType string) *SVG {
	return &SVG{
		Width:       width,
		Height:      height,
		MetricType:  metricType,
		perName:     make(map[string]*mg.Series),
		allPoints:   mg.NewSeries(),
		xProjection: mg.Lin,
		yProjection: mg.Lin,
	}
}

// LogScaleY sets the Y-axis to a log scale, usually better for losses.
func (p *SVG) LogScaleY() *SVG {
	p.yProjection = mg.Log
	return p
}

// AddPoint implements Plotter. Points of other metric types are ignored.
func (p *SVG) AddPoint(point Point) {
	if point.MetricType != p.MetricType {
		return
	}
	s, found := p.perName[point.MetricName]
	if !found {
		s = mg.NewSeries(mg.Titled(point.MetricName))
		p.perName[point.MetricName] = s
	}
	value := mg.MakeValue(point.Step, point.Value)
	s.Add(value)
	p.allPoints.Add(value)
}

// Render writes the SVG to w.
func (p *SVG) Render(w io.Writer) error {
	if len(p.perName) == 0 {
		return errors.Errorf("no %q points to plot", p.MetricType)
	}
	names := maps.Keys(p.perName)
	slices.Sort(names)
	allSeries := make([]*mg.Series, 0, len(names))
	for _, name := range names {
		allSeries = append(allSeries, p.perName[name])
	}
	diagram := mg.New(p.Width, p.Height,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithProjection(mg.XAxis, p.xProjection),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithProjection(mg.YAxis, p.yProjection),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(p.allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Iterations")
	diagram.Axis(p.allPoints, mg.YAxis, diagram.ValueTicker('f', 3, 10), true, p.MetricType)
	diagram.Frame()
	diagram.Title(fmt.Sprintf("%s per iteration", p.MetricType))
	diagram.Legend(mg.BottomLeft)
	if err := diagram.Render(w); err != nil {
		return errors.Wrapf(err, "failed to render plot for %q", p.MetricType)
	}
	return nil
}

// Save renders the SVG to filePath.
func (p *SVG) Save(filePath string) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating plot file %q", filePath)
	}
	if err := p.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing plot file %q", filePath)
}
