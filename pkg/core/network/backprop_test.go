// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// buildFanOut builds x → {sigmoid, tanh} → addition → output, so x has two consumers.
func buildFanOut(t *testing.T) (net *Network, x, sig, tanh, sum LayerHandle) {
	b := NewBuilder()
	x = must.M1(b.AddInputLayer(2, "x"))
	sig = must.M1(b.AddSigmoidLayer(x))
	tanh = must.M1(b.AddTanhLayer(x))
	sum = must.M1(b.AddAdditionLayer([]LayerHandle{sig, tanh}))
	_ = must.M1(b.AddOutputLayer(sum))
	net = must.M1(b.Build())
	return
}

func TestConsumers(t *testing.T) {
	net, x, sig, tanh, sum := buildFanOut(t)
	assert.Equal(t, []int{sig.index, tanh.index}, net.consumers[x.index])
	assert.Equal(t, []int{sum.index}, net.consumers[sig.index])
	assert.Equal(t, []int{sig.index, tanh.index}, net.distinctInputs[sum.index])
	assert.Empty(t, net.consumers[net.outputIdx])
	assert.Equal(t, []int{0, 1, 2, 3, 4}, net.order)

	// Repeated inputs are counted once.
	b := NewBuilder()
	y := must.M1(b.AddInputLayer(2, "y"))
	square := must.M1(b.AddElementwiseMultiplicationLayer([]LayerHandle{y, y, y}))
	_ = must.M1(b.AddOutputLayer(square))
	net = must.M1(b.Build())
	assert.Equal(t, []int{square.index}, net.consumers[y.index])
	assert.Equal(t, []int{y.index}, net.distinctInputs[square.index])
}

func TestTopologicalOrderStable(t *testing.T) {
	// Layer 0 feeds 3 and 2 feeds 1: Kahn's algorithm must pick the lowest ready index first.
	consumers := [][]int{{3}, {3}, {1}, nil}
	distinctInputs := [][]int{nil, {2}, nil, {0, 1}}
	order := must.M1(topologicalOrder(distinctInputs, consumers))
	assert.Equal(t, []int{0, 2, 1, 3}, order)

	_, err := topologicalOrder([][]int{{1}, {0}}, [][]int{{1}, {0}})
	require.Error(t, err)
}

func TestPartialFanIn(t *testing.T) {
	net, x, sig, _, _ := buildFanOut(t)
	state := net.NewState()
	xVar := net.layers[x.index].(*InputLayer).InputVariable()
	require.NoError(t, state.SetValues(xVar, 0.5, -1))

	pass := net.NewBackwardPass(state)
	pass.seed()
	contribution := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	assert.False(t, pass.receive(x.index, contribution), "x has two consumers, one contribution is not enough")
	assert.False(t, pass.Ready(x))

	_, err := pass.LayerGradient(x)
	require.ErrorIs(t, err, ErrGradientNotReady)
	_, err = pass.Gradient(xVar)
	require.ErrorIs(t, err, ErrGradientNotReady)
	_, err = pass.Gradient(net.layers[sig.index].OutputVariable())
	require.ErrorIs(t, err, ErrGradientNotReady)

	assert.True(t, pass.receive(x.index, contribution))
	grad := must.M1(pass.LayerGradient(x))
	assert.Equal(t, []float64{2, 0, 0, 2}, grad.RawMatrix().Data)

	// Run starts over and gets the full gradient: sigmoid'(x) + tanh'(x).
	require.NoError(t, pass.Run())
	grad = must.M1(pass.Gradient(xVar))
	for ii, value := range []float64{0.5, -1} {
		s := sigmoid(value)
		want := s*(1-s) + 1 - tanhSquared(value)
		assert.InDelta(t, want, grad.At(ii, ii), 1e-12)
	}
	assert.Zero(t, grad.At(0, 1))
}

func tanhSquared(x float64) float64 {
	t := (&ActivationLayer{layerBase: layerBase{kind: KindTanh}}).activation(x)
	return t * t
}
