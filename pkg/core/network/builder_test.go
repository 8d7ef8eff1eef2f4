// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network_test

import (
	"flag"
	"testing"

	"github.com/janpfeifer/must"
	. "github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestBuilderErrors(t *testing.T) {
	t.Run("MultipleOutputLayers", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		sig := must.M1(b.AddSigmoidLayer(x))
		_ = must.M1(b.AddOutputLayer(sig))
		_, err := b.AddOutputLayer(sig)
		require.ErrorIs(t, err, ErrMultipleOutputLayers)
		_, err = b.AddTanhLayer(x, AsOutput())
		require.ErrorIs(t, err, ErrMultipleOutputLayers)
	})

	t.Run("UnknownInputLayer", func(t *testing.T) {
		other := NewBuilder()
		foreign := must.M1(other.AddInputLayer(2, "x"))
		b := NewBuilder()
		_, err := b.AddSigmoidLayer(foreign)
		require.ErrorIs(t, err, ErrUnknownInputLayer)
		_, err = b.AddSigmoidLayer(LayerHandle{})
		require.ErrorIs(t, err, ErrUnknownInputLayer)
		_, err = b.AddSigmoidLayer(InvalidLayerHandle)
		require.ErrorIs(t, err, ErrUnknownInputLayer)
		assert.Equal(t, 0, b.NumLayers())
	})

	t.Run("DuplicateLayer", func(t *testing.T) {
		b := NewBuilder()
		input := Input(3, "x")
		_ = must.M1(b.AddLayer(input))
		_, err := b.AddLayer(input)
		require.ErrorIs(t, err, ErrDuplicateLayer)
	})

	t.Run("MissingOutputLayer", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		_ = must.M1(b.AddSigmoidLayer(x))
		_, err := b.Build()
		require.ErrorIs(t, err, ErrMissingOutputLayer)
	})

	t.Run("OrphanLayer", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		_ = must.M1(b.AddInputLayer(2, "unused"))
		_ = must.M1(b.AddOutputLayer(x))
		_, err := b.Build()
		require.ErrorIs(t, err, ErrOrphanLayer)
	})

	t.Run("OutputLayerConsumed", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		out := must.M1(b.AddSigmoidLayer(x, AsOutput()))
		_, err := b.AddTanhLayer(out)
		require.ErrorIs(t, err, ErrOutputLayerConsumed)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		y := must.M1(b.AddInputLayer(3, "y"))
		_, err := b.AddAdditionLayer([]LayerHandle{x, y})
		require.ErrorIs(t, err, variables.ErrSizeMismatch)
		_, err = b.AddSubtractionLayer(x, y)
		require.ErrorIs(t, err, variables.ErrSizeMismatch)
		_, err = b.AddElementwiseMultiplicationLayer([]LayerHandle{x, x, y})
		require.ErrorIs(t, err, variables.ErrSizeMismatch)
	})

	t.Run("InvalidLayer", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		_, err := b.AddFullyConnectedLayer(x, 0)
		require.ErrorIs(t, err, ErrInvalidLayer)
		_, err = b.AddInputLayer(0, "empty")
		require.ErrorIs(t, err, ErrInvalidLayer)
		_, err = b.AddAdditionLayer(nil)
		require.ErrorIs(t, err, ErrInvalidLayer)
		_, err = b.AddConstantLayer(nil)
		require.ErrorIs(t, err, ErrInvalidLayer)
		_, err = b.AddSigmoidLayer(x, WithoutBias())
		require.ErrorIs(t, err, ErrInvalidLayer)
		_, err = b.AddLayer(nil)
		require.ErrorIs(t, err, ErrInvalidLayer)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		numVars := b.Registry().Len()
		_, err := b.AddInputLayer(2, "x")
		require.ErrorIs(t, err, variables.ErrDuplicateName)
		_, err = b.AddFullyConnectedLayer(x, 2, WeightsName("w"), BiasName("w"))
		require.ErrorIs(t, err, variables.ErrDuplicateName)
		_, err = b.AddSigmoidLayer(x, Named("x"))
		require.ErrorIs(t, err, variables.ErrDuplicateName)
		assert.Equal(t, numVars, b.Registry().Len(), "failed additions must not create variables")
	})

	t.Run("Finalized", func(t *testing.T) {
		b := NewBuilder()
		x := must.M1(b.AddInputLayer(2, "x"))
		_ = must.M1(b.AddOutputLayer(x))
		_ = must.M1(b.Build())
		_, err := b.AddInputLayer(1, "y")
		require.ErrorIs(t, err, ErrBuilderFinalized)
		_, err = b.Build()
		require.ErrorIs(t, err, ErrBuilderFinalized)
	})
}

// TestBuildVerbose builds with the verbose logging of AddLayer and Build enabled.
func TestBuildVerbose(t *testing.T) {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	require.NoError(t, fs.Set("v", "2"))
	defer func() { _ = fs.Set("v", "0") }()

	b := NewBuilder()
	x := must.M1(b.AddInputLayer(3, "x"))
	fc := must.M1(b.AddFullyConnectedLayer(x, 2, WeightsName("w"), BiasName("b"), Named("logits")))
	_ = must.M1(b.AddOutputLayer(fc))
	net := must.M1(b.Build())
	// x, its output, w, b, logits and the output layer's output.
	assert.Equal(t, 6, net.Registry().Len())
	_, err := b.AddInputLayer(1, "y")
	require.ErrorIs(t, err, ErrBuilderFinalized)
}

func TestBuilderVariables(t *testing.T) {
	b := NewBuilder()
	x := must.M1(b.AddInputLayer(3, "x"))
	fc := must.M1(b.AddFullyConnectedLayer(x, 2, WeightsName("w"), BiasName("b"), Named("logits")))
	noBias := must.M1(b.AddFullyConnectedLayer(fc, 2, WithoutBias()))
	_ = must.M1(b.AddOutputLayer(noBias))
	net := must.M1(b.Build())

	fcLayer := net.Layer(fc).(*FullyConnectedLayer)
	require.NotNil(t, fcLayer.Weights())
	assert.Equal(t, "w", fcLayer.Weights().Name())
	assert.Equal(t, variables.KindMatrix, fcLayer.Weights().Kind())
	assert.Equal(t, 2, fcLayer.Weights().Rows())
	assert.Equal(t, 3, fcLayer.Weights().Cols())
	assert.Equal(t, "b", fcLayer.Bias().Name())
	assert.Equal(t, "logits", fcLayer.OutputVariable().Name())
	assert.True(t, fcLayer.OutputVariable().IsLayerOutput())

	noBiasLayer := net.Layer(noBias).(*FullyConnectedLayer)
	assert.Nil(t, noBiasLayer.Bias())
	assert.Len(t, noBiasLayer.Parameters(), 1)

	params := net.Parameters()
	require.Len(t, params, 3)
	assert.Equal(t, "w", params[0].Name())
	assert.Equal(t, "b", params[1].Name())
	assert.Equal(t, 6+2+4, net.NumParameters())

	got, found := net.Variable("w")
	require.True(t, found)
	assert.True(t, got.Equal(fcLayer.Weights()))
	got, found = net.VariableByID(fcLayer.Weights().ID())
	require.True(t, found)
	assert.True(t, got.Equal(fcLayer.Weights()))

	require.Len(t, net.InputVariables(), 1)
	assert.Equal(t, "x", net.InputVariables()[0].Name())
	assert.Len(t, net.InputLayers(), 1)
	assert.Equal(t, KindOutput, net.OutputLayer().Kind())
	assert.Equal(t, 2, net.OutputSize())
	assert.Len(t, net.Variables(), b.Registry().Len())
}

func TestTopologicalOrder(t *testing.T) {
	b := NewBuilder()
	x := must.M1(b.AddInputLayer(2, "x"))
	y := must.M1(b.AddInputLayer(2, "y"))
	sig := must.M1(b.AddSigmoidLayer(y))
	sum := must.M1(b.AddAdditionLayer([]LayerHandle{x, sig}))
	_ = must.M1(b.AddOutputLayer(sum))
	net := must.M1(b.Build())

	position := make(map[int]int)
	for ii, layer := range net.Layers() {
		position[layer.Handle().Index()] = ii
	}
	require.Len(t, position, 5)
	for _, layer := range net.Layers() {
		for _, input := range layer.Inputs() {
			assert.Less(t, position[input.Index()], position[layer.Handle().Index()],
				"input %s must precede %s", input, layer)
		}
	}
}

func TestKind(t *testing.T) {
	kind, err := KindString("fully_connected")
	require.NoError(t, err)
	assert.Equal(t, KindFullyConnected, kind)
	assert.Equal(t, "leaky_rectified_linear", KindLeakyRectifiedLinear.String())
	assert.True(t, KindTanh.IsActivation())
	assert.False(t, KindAddition.IsActivation())
	assert.True(t, KindElementwiseMultiplication.IsCombination())
	_, err = KindString("convolution")
	require.Error(t, err)
	assert.Len(t, KindValues(), 11)
}
