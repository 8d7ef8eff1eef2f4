// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

func lossPoints() []Point {
	return []Point{
		{MetricName: "Train loss", MetricType: MetricTypeLoss, Step: 1, Value: 1.5},
		{MetricName: "Train loss", MetricType: MetricTypeLoss, Step: 2, Value: 0.75},
		{MetricName: "Train loss", MetricType: MetricTypeLoss, Step: 3, Value: 0.25},
		{MetricName: "Validation loss", MetricType: MetricTypeLoss, Step: 2, Value: 0.8},
	}
}

func TestPoints(t *testing.T) {
	points := NewPoints(lossPoints())
	assert.Equal(t, []string{"Train loss", "Validation loss"}, points.MetricsNames())
	steps, values := points.Series("Train loss")
	assert.Equal(t, []float64{1, 2, 3}, steps)
	assert.Equal(t, []float64{1.5, 0.75, 0.25}, values)
	assert.Len(t, points.Extract(), 4)

	table := points.String()
	assert.Contains(t, table, "Validation loss")
	assert.Contains(t, table, "0.75")
}

func TestPointsWriter(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "points.json")
	w := must.M1(NewPointsWriter(filePath))
	for _, p := range lossPoints() {
		w.AddPoint(p)
	}
	require.NoError(t, w.Close())
	assert.Equal(t, lossPoints(), must.M1(LoadPoints(filePath)))

	_, err := LoadPoints(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestSVG(t *testing.T) {
	svg := NewSVG(640, 300, MetricTypeLoss).LogScaleY()
	var buf bytes.Buffer
	require.Error(t, svg.Render(&buf))

	for _, p := range lossPoints() {
		svg.AddPoint(p)
	}
	svg.AddPoint(Point{MetricName: "Accuracy", MetricType: "accuracy", Step: 1, Value: 0.5})
	require.NoError(t, svg.Render(&buf))
	assert.Contains(t, buf.String(), "<svg")

	filePath := filepath.Join(t.TempDir(), "loss.svg")
	require.NoError(t, svg.Save(filePath))
	assert.Greater(t, must.M1(os.Stat(filePath)).Size(), int64(0))
}

func TestSavePNG(t *testing.T) {
	points := NewPoints(lossPoints())
	filePath := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, SavePNG(points, MetricTypeLoss, true, filePath, 6*vg.Inch, 3*vg.Inch))
	assert.Greater(t, must.M1(os.Stat(filePath)).Size(), int64(0))

	require.Error(t, SavePNG(points, "accuracy", false, filePath, 6*vg.Inch, 3*vg.Inch))
}
