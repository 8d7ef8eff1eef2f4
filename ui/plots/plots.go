// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots collects training plot points (the loss at each iteration), saves and loads them,
// and draws them with different plot libraries: see SVG (margaid) and SavePNG (gonum/plot).
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/layergraph/layergraph/pkg/ml/train"
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/layergraph/layergraph/pkg/support/sets"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"
)

// MetricTypeLoss is the metric type of loss points.
const MetricTypeLoss = "loss"

// Point represents a training plot point. It is used to save/load plots.
type Point struct {
	// MetricName of this point, e.g. "Train loss".
	MetricName string

	// MetricType typically will be "loss".
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Step is the iteration the metric was measured at, stored as a float64.
	Step float64

	// Value is the metric captured.
	Value float64
}

// Plotter is a generic plotter API, implemented by Points, SVG and PointsWriter.
type Plotter interface {
	// AddPoint to be drawn. One metric at a time.
	AddPoint(point Point)
}

// AttachLoss registers an OnStep hook in loop that adds the loss at each iteration to the plotters,
// under the metric name metricName. Non-finite losses are skipped.
func AttachLoss(loop *train.Loop, metricName string, plotters ...Plotter) {
	loop.OnStep("plots."+metricName, 10, func(loop *train.Loop, loss float64) error {
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil
		}
		point := Point{MetricName: metricName, MetricType: MetricTypeLoss, Step: float64(loop.Iteration), Value: loss}
		for _, plotter := range plotters {
			plotter.AddPoint(point)
		}
		return nil
	})
}

// LoadPoints parses all plot points saved in the given file, one JSON object per line.
func LoadPoints(filePath string) ([]Point, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plot points file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plot points file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// PointsWriter appends points to a file asynchronously, so training is not slowed down by I/O.
// It implements Plotter.
type PointsWriter struct {
	points    chan Point
	errReport chan error
}

// NewPointsWriter creates a PointsWriter appending to filePath, created if it doesn't exist.
// If any error occurs while writing, it stops writing and reports it at Close.
func NewPointsWriter(filePath string) (*PointsWriter, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plot points file %q for append", filePath)
	}
	w := &PointsWriter{
		points:    make(chan Point, 100),
		errReport: make(chan error, 1),
	}
	go func() {
		enc := json.NewEncoder(f)
		var err error
		for point := range w.points {
			if err != nil {
				continue
			}
			if err = enc.Encode(point); err != nil {
				err = errors.Wrapf(err, "failed to encode point %v", point)
				klog.Errorf("plots: %v", err)
			}
		}
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "closing plot points file %q", filePath)
		}
		w.errReport <- err
	}()
	return w, nil
}

// AddPoint implements Plotter.
func (w *PointsWriter) AddPoint(point Point) {
	w.points <- point
}

// Close flushes the pending points and closes the file, returning the first error that happened.
func (w *PointsWriter) Close() error {
	close(w.points)
	return <-w.errReport
}

// Points is a collection of Point objects organized by their Step value.
// It implements Plotter.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual `Point`.
func NewPoints(rawPoints []Point) Points {
	points := make(Points)
	for _, p := range rawPoints {
		points.AddPoint(p)
	}
	return points
}

// AddPoint implements Plotter.
func (points Points) AddPoint(p Point) {
	points[p.Step] = append(points[p.Step], p)
}

// steps returns the sorted steps.
func (points Points) steps() []float64 {
	steps := maps.Keys(points)
	slices.Sort(steps)
	return steps
}

// Map executes the given function on all individual points, in `Step` order.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range points.steps() {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Extract converts the Points back to a list of individual points, sorted by Point.Step.
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// Series returns the steps and values of the given metric, sorted by step.
func (points Points) Series(metricName string) (steps, values []float64) {
	points.Map(func(p *Point) {
		if p.MetricName == metricName {
			steps = append(steps, p.Step)
			values = append(values, p.Value)
		}
	})
	return
}

// MetricsNames return the list of metrics names in the whole collection, sorted alphabetically by their type and
// then by their name.
func (points Points) MetricsNames() []string {
	metricNames := sets.Make[string]()
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		metricNames.Insert(p.MetricName)
		nameToType[p.MetricName] = p.MetricType
	})
	names := maps.Keys(metricNames)
	slices.Sort(names)
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// TableForMetrics returns a table with the first column being the `Step` followed
// by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	table.Headers(append([]string{"Step"}, metrics...)...)
	for _, step := range points.steps() {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			if idx := slices.Index(metrics, pt.MetricName); idx != -1 {
				row[idx+1] = strconv.FormatFloat(pt.Value, 'g', 6, 64)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
