// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/janpfeifer/must"
	. "github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/support/numdiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func requireMatrixInDelta(t *testing.T, want, got mat.Matrix, delta float64, msgAndArgs ...any) {
	t.Helper()
	wantRows, wantCols := want.Dims()
	gotRows, gotCols := got.Dims()
	require.Equal(t, [2]int{wantRows, wantCols}, [2]int{gotRows, gotCols}, msgAndArgs...)
	diff := numdiff.MaxAbsDiff(want, got)
	require.LessOrEqualf(t, diff, delta, "want=%v\ngot=%v\n%s", mat.Formatted(want), mat.Formatted(got), fmt.Sprint(msgAndArgs...))
}

// buildPerceptron builds Input(2) → FullyConnected(1) → Sigmoid → Output, with
// x=[1, 2], W=[0.5, -0.5] and b=[0.1].
func buildPerceptron(t *testing.T) (net *Network, state *variables.State) {
	b := NewBuilder()
	x := must.M1(b.AddInputLayer(2, "x"))
	fc := must.M1(b.AddFullyConnectedLayer(x, 1, WeightsName("w"), BiasName("b")))
	sig := must.M1(b.AddSigmoidLayer(fc))
	_ = must.M1(b.AddOutputLayer(sig))
	net = must.M1(b.Build())
	state = net.NewState()
	require.NoError(t, state.SetValues(must.M1(varByName(net, "x")), 1, 2))
	require.NoError(t, state.SetValues(must.M1(varByName(net, "w")), 0.5, -0.5))
	require.NoError(t, state.SetValues(must.M1(varByName(net, "b")), 0.1))
	return
}

func varByName(net *Network, name string) (*variables.Variable, error) {
	v, found := net.Variable(name)
	if !found {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	return v, nil
}

func TestPerceptron(t *testing.T) {
	net, state := buildPerceptron(t)
	output := must.M1(net.Evaluate(state))
	require.Equal(t, 1, output.Len())
	want := 1.0 / (1.0 + math.Exp(0.4))
	assert.InDelta(t, 0.401312, output.AtVec(0), 1e-6)
	assert.InDelta(t, want, output.AtVec(0), 1e-12)

	dSigmoid := want * (1 - want)
	w := must.M1(varByName(net, "w"))
	b := must.M1(varByName(net, "b"))
	grads := must.M1(net.Gradients(state, w, b))
	requireMatrixInDelta(t, mat.NewDense(1, 2, []float64{dSigmoid, 2 * dSigmoid}), grads[0], 1e-12)
	requireMatrixInDelta(t, mat.NewDense(1, 1, []float64{dSigmoid}), grads[1], 1e-12)
	assert.NotZero(t, grads[0].At(0, 0))
	assert.NotZero(t, grads[1].At(0, 0))

	// Backpropagation, recursive chain rule and finite differences must all agree.
	for _, v := range []*variables.Variable{w, b, must.M1(varByName(net, "x"))} {
		backprop := must.M1(net.Gradient(state, v))
		recursive := must.M1(net.RecursiveGradient(state, v))
		numerical := must.M1(numdiff.NetworkJacobian(net, state, v, 0))
		requireMatrixInDelta(t, recursive, backprop, 1e-12, v.Name())
		requireMatrixInDelta(t, numerical, backprop, 1e-6, v.Name())
	}
}

func TestEvaluate(t *testing.T) {
	net, state := buildPerceptron(t)
	first := mat.VecDenseCopyOf(must.M1(net.Evaluate(state)))
	second := must.M1(net.Evaluate(state))
	assert.Equal(t, first.RawVector().Data, second.RawVector().Data)

	// Values are memoized until an input changes.
	for _, layer := range net.Layers() {
		assert.True(t, state.Has(layer.OutputVariable()), "layer %s should be memoized", layer)
	}
	require.NoError(t, state.SetValues(must.M1(varByName(net, "x")), 0, 0))
	for _, layer := range net.Layers() {
		assert.False(t, state.Has(layer.OutputVariable()), "layer %s should have been invalidated", layer)
	}
	third := must.M1(net.Evaluate(state))
	assert.InDelta(t, 1.0/(1.0+math.Exp(-0.1)), third.AtVec(0), 1e-12)

	// NewState seeds inputs and parameters with zeros.
	zeros := must.M1(net.Evaluate(net.NewState()))
	assert.Equal(t, 0.5, zeros.AtVec(0))

	// But a bare state has nothing bound.
	_, err := net.Evaluate(variables.NewState())
	require.ErrorIs(t, err, variables.ErrUnboundVariable)
	_, err = net.Gradient(variables.NewState(), must.M1(varByName(net, "w")))
	require.ErrorIs(t, err, variables.ErrUnboundVariable)
}

func TestUnknownVariable(t *testing.T) {
	net, state := buildPerceptron(t)
	foreign := must.M1(variables.NewRegistry().NewVector("w", 2))
	_, err := net.Gradient(state, foreign)
	require.ErrorIs(t, err, ErrUnknownVariable)
	_, err = net.RecursiveGradient(state, foreign)
	require.ErrorIs(t, err, ErrUnknownVariable)
	_, err = net.LocalGradient(state, net.OutputLayer().Handle(), foreign)
	require.ErrorIs(t, err, ErrUnknownVariable)
	pass := net.NewBackwardPass(state)
	require.NoError(t, pass.Run())
	_, err = pass.Gradient(foreign)
	require.ErrorIs(t, err, ErrUnknownVariable)
}

// allKinds holds a network using every kind of layer, with inputs used more than once.
type allKinds struct {
	net   *Network
	state *variables.State
}

func buildAllKinds(t *testing.T) allKinds {
	b := NewBuilder()
	x := must.M1(b.AddInputLayer(3, "x"))
	y := must.M1(b.AddInputLayer(3, "y"))
	c := must.M1(b.AddConstantLayer([]float64{0.5, -1, 2}))
	fc := must.M1(b.AddFullyConnectedLayer(x, 3, WeightsName("w"), BiasName("b")))
	sig := must.M1(b.AddSigmoidLayer(fc, Named("sigmoid")))
	tanh := must.M1(b.AddTanhLayer(y, Named("tanh")))
	relu := must.M1(b.AddRectifiedLinearLayer(x, 0, Named("relu")))
	leaky := must.M1(b.AddLeakyRectifiedLinearLayer(y, 0, DefaultLeakyAlpha, Named("leaky")))
	sum := must.M1(b.AddAdditionLayer([]LayerHandle{sig, tanh, c, sig}, Named("sum")))
	diff := must.M1(b.AddSubtractionLayer(relu, leaky, Named("diff")))
	prod := must.M1(b.AddElementwiseMultiplicationLayer([]LayerHandle{sum, diff, sum}, Named("prod")))
	_ = must.M1(b.AddOutputLayer(prod))
	net := must.M1(b.Build())

	state := net.NewState()
	require.NoError(t, state.SetValues(must.M1(varByName(net, "x")), 0.3, -0.7, 1.2))
	require.NoError(t, state.SetValues(must.M1(varByName(net, "y")), -0.4, 0.9, 0.25))
	require.NoError(t, state.SetValues(must.M1(varByName(net, "w")), 0.1, -0.2, 0.3, 0.4, -0.5, 0.6, -0.7, 0.8, 0.05))
	require.NoError(t, state.SetValues(must.M1(varByName(net, "b")), 0.01, -0.02, 0.03))
	return allKinds{net: net, state: state}
}

func TestLocalGradients(t *testing.T) {
	ak := buildAllKinds(t)
	net, state := ak.net, ak.state
	unrelated := must.M1(varByName(net, "y"))
	for _, layer := range net.Layers() {
		h := layer.Handle()
		var wrt []*variables.Variable
		for _, input := range layer.Inputs() {
			wrt = append(wrt, net.Layer(input).OutputVariable())
		}
		wrt = append(wrt, layer.Parameters()...)
		if input, ok := layer.(*InputLayer); ok {
			wrt = append(wrt, input.InputVariable())
		}
		for _, v := range wrt {
			analytical := must.M1(net.LocalGradient(state, h, v))
			numerical := must.M1(numdiff.LocalJacobian(net, state, h, v, 0))
			requireMatrixInDelta(t, numerical, analytical, 1e-5, fmt.Sprintf("%s w.r.t. %s", layer, v))
		}

		// Identity with respect to its own output.
		own := must.M1(net.LocalGradient(state, h, layer.OutputVariable()))
		requireMatrixInDelta(t, identityMatrix(layer.OutputSize()), own, 0)

		// Zero for variables the layer doesn't read.
		if input, ok := layer.(*InputLayer); !ok || !input.InputVariable().Equal(unrelated) {
			zero := must.M1(net.LocalGradient(state, h, unrelated))
			requireMatrixInDelta(t, mat.NewDense(layer.OutputSize(), unrelated.Size(), nil), zero, 0, layer.String())
		}
	}
}

func TestLocalGradientMultiplicity(t *testing.T) {
	b := NewBuilder()
	x := must.M1(b.AddInputLayer(2, "x"))
	twice := must.M1(b.AddAdditionLayer([]LayerHandle{x, x}))
	zero := must.M1(b.AddSubtractionLayer(x, x))
	square := must.M1(b.AddElementwiseMultiplicationLayer([]LayerHandle{x, x}))
	sum := must.M1(b.AddAdditionLayer([]LayerHandle{twice, zero, square}))
	_ = must.M1(b.AddOutputLayer(sum))
	net := must.M1(b.Build())
	state := net.NewState()
	xVar := must.M1(varByName(net, "x"))
	require.NoError(t, state.SetValues(xVar, 3, -2))
	xOut := net.Layer(x).OutputVariable()

	requireMatrixInDelta(t, mat.NewDense(2, 2, []float64{2, 0, 0, 2}), must.M1(net.LocalGradient(state, twice, xOut)), 0)
	requireMatrixInDelta(t, mat.NewDense(2, 2, nil), must.M1(net.LocalGradient(state, zero, xOut)), 0)
	requireMatrixInDelta(t, mat.NewDense(2, 2, []float64{6, 0, 0, -4}), must.M1(net.LocalGradient(state, square, xOut)), 0)

	// d/dx (2x + 0 + x²) = 2 + 2x.
	want := mat.NewDense(2, 2, []float64{8, 0, 0, -2})
	requireMatrixInDelta(t, want, must.M1(net.Gradient(state, xVar)), 1e-12)
	requireMatrixInDelta(t, want, must.M1(net.RecursiveGradient(state, xVar)), 1e-12)
}

func identityMatrix(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	for ii := range size {
		m.Set(ii, ii, 1)
	}
	return m
}

func TestBackpropMatchesRecursive(t *testing.T) {
	ak := buildAllKinds(t)
	net, state := ak.net, ak.state
	pass := net.NewBackwardPass(state)
	require.NoError(t, pass.Run())
	for _, v := range net.Variables() {
		backprop := must.M1(pass.Gradient(v))
		recursive := must.M1(net.RecursiveGradient(state, v))
		requireMatrixInDelta(t, recursive, backprop, 1e-10, v.String())
		if v.IsLayerOutput() || v.IsConstant() {
			continue
		}
		numerical := must.M1(numdiff.NetworkJacobian(net, state, v, 0))
		requireMatrixInDelta(t, numerical, backprop, 1e-5, v.String())
	}

	// Constants have no gradient.
	for _, v := range net.Variables() {
		if v.IsConstant() {
			grad := must.M1(pass.Gradient(v))
			requireMatrixInDelta(t, mat.NewDense(net.OutputSize(), v.Size(), nil), grad, 0)
		}
	}

	// Every layer received all of its gradient.
	for _, layer := range net.Layers() {
		assert.True(t, pass.Ready(layer.Handle()), "layer %s", layer)
		layerGrad := must.M1(pass.LayerGradient(layer.Handle()))
		requireMatrixInDelta(t, must.M1(pass.Gradient(layer.OutputVariable())), layerGrad, 0)
	}
}

func TestBackwardPassIdempotent(t *testing.T) {
	ak := buildAllKinds(t)
	net, state := ak.net, ak.state
	pass := net.NewBackwardPass(state)
	require.NoError(t, pass.Run())
	first := must.M1(pass.ParameterGradients())
	require.Len(t, first, len(net.Parameters()))
	require.NoError(t, pass.Run())
	second := must.M1(pass.ParameterGradients())
	for ii := range first {
		assert.Equal(t, first[ii].RawMatrix().Data, second[ii].RawMatrix().Data)
	}

	// A pass that hasn't run has no gradients.
	fresh := net.NewBackwardPass(state)
	_, err := fresh.LayerGradient(net.OutputLayer().Handle())
	require.ErrorIs(t, err, ErrGradientNotReady)
	_, err = fresh.ParameterGradients()
	require.ErrorIs(t, err, ErrGradientNotReady)

	// Reset drops everything.
	pass.Reset()
	_, err = pass.Gradient(must.M1(varByName(net, "w")))
	require.ErrorIs(t, err, ErrGradientNotReady)
}

func TestSummary(t *testing.T) {
	ak := buildAllKinds(t)
	summary := ak.net.Summary()
	for _, want := range []string{"fully_connected", "sigmoid", "elementwise_multiplication", "prod", "with 12 values"} {
		assert.Contains(t, summary, want)
	}
	fmt.Println(summary)
	assert.Contains(t, ak.net.String(), "output[3]")
}
