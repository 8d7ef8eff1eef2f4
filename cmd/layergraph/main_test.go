// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/layergraph/layergraph/ui/plots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunXOR(t *testing.T) {
	dir := t.TempDir()
	svgPath := filepath.Join(dir, "plots", "loss.svg")
	pointsPath := filepath.Join(dir, "points", "loss.jsonl")
	var out bytes.Buffer
	require.NoError(t, run([]string{
		"-progress=false", "-check", "-iterations=30", "-hidden=3, 3",
		"-plot=" + svgPath, "-points=" + pointsPath,
	}, &out))
	output := out.String()
	assert.Contains(t, output, "hidden_1_act")
	assert.Contains(t, output, "Results on xor:")
	assert.Contains(t, output, "Predictions on xor:")
	assert.Contains(t, output, "Gradient checks:")
	assert.NotContains(t, output, "FAILED")

	svg := must.M1(os.ReadFile(svgPath))
	assert.Contains(t, string(svg), "<svg")
	points := must.M1(plots.LoadPoints(pointsPath))
	require.NotEmpty(t, points)
	assert.Equal(t, "xor loss", points[0].MetricName)
	assert.LessOrEqual(t, len(points), 30)
}

func TestRunSpecFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "or.csv"), []byte("a,b,y\n0,0,0\n0,1,1\n1,0,1\n1,1,1\n"), 0644))
	specPath := filepath.Join(dir, "or.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(`
name: or
layers:
  - {name: x, kind: input, size: 2}
  - {name: fc, kind: fully_connected, inputs: [x], units: 1}
  - {name: probs, kind: sigmoid, inputs: [fc], output: true}
training:
  loss: binary_cross_entropy
  method: bfgs
  iterations: 50
  data: {csv: or.csv, inputs: [a, b], targets: [y]}
`), 0644))
	pngPath := filepath.Join(dir, "loss.png")
	var out bytes.Buffer
	require.NoError(t, run([]string{"-spec=" + specPath, "-progress=false", "-method=lbfgs", "-print_spec",
		"-plot=" + pngPath}, &out))
	assert.Contains(t, out.String(), "method: lbfgs")
	assert.Contains(t, out.String(), "Results on "+filepath.Join(dir, "or.csv")+":")
	info := must.M1(os.Stat(pngPath))
	assert.Positive(t, info.Size())
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run([]string{"-method=newton", "-progress=false"}, &out))
	require.Error(t, run([]string{"-hidden=two"}, &out))
	require.Error(t, run([]string{"-hidden=0", "-progress=false"}, &out))
	require.Error(t, run([]string{"-spec=" + filepath.Join(t.TempDir(), "missing.yaml")}, &out))
	require.Error(t, run([]string{"extra"}, &out))
}

func TestCheckWithoutTraining(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-train=false", "-summary=false", "-check"}, &out))
	assert.Contains(t, out.String(), "hidden/weights")
	assert.NotContains(t, out.String(), "Results on")
}
