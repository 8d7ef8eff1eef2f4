// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"math"

	"github.com/janpfeifer/must"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// The functions in this file panic with an error on failure (unbound variables, mismatched sizes),
// and are wrapped by exceptions.TryCatch at the public API.

// value returns the memoized output of layer idx, computing it (and its inputs) if needed.
func (n *Network) value(state *variables.State, idx int) *mat.VecDense {
	layer := n.layers[idx]
	output := layer.OutputVariable()
	if state.Has(output) {
		return must.M1(state.Get(output))
	}
	inputs := make([]*mat.VecDense, len(layer.base().inputs))
	for ii, input := range layer.base().inputs {
		inputs[ii] = n.value(state, input.index)
	}
	result := n.compute(state, layer, inputs)
	if err := state.StoreOutput(output, result); err != nil {
		panic(errors.WithMessagef(err, "storing the value of %s", layer))
	}
	return result
}

// compute the output of layer given the values of its inputs.
func (n *Network) compute(state *variables.State, layer Layer, inputs []*mat.VecDense) *mat.VecDense {
	switch l := layer.(type) {
	case *InputLayer:
		return mat.VecDenseCopyOf(must.M1(state.Get(l.bound)))

	case *ConstantLayer:
		return mat.VecDenseCopyOf(must.M1(state.Get(l.constant)))

	case *FullyConnectedLayer:
		weights := must.M1(state.GetMatrix(l.weights))
		result := mat.NewVecDense(l.units, nil)
		result.MulVec(weights, inputs[0])
		if l.useBias {
			result.AddVec(result, must.M1(state.Get(l.bias)))
		}
		return result

	case *ActivationLayer:
		x := inputs[0]
		result := mat.NewVecDense(x.Len(), nil)
		for ii := range x.Len() {
			result.SetVec(ii, l.activation(x.AtVec(ii)))
		}
		return result

	case *CombinationLayer:
		result := mat.VecDenseCopyOf(inputs[0])
		for _, x := range inputs[1:] {
			switch l.kind {
			case KindAddition:
				result.AddVec(result, x)
			case KindSubtraction:
				result.SubVec(result, x)
			case KindElementwiseMultiplication:
				result.MulElemVec(result, x)
			}
		}
		return result

	case *OutputLayer:
		return mat.VecDenseCopyOf(inputs[0])
	}
	panic(errors.Wrapf(ErrInvalidLayer, "can't evaluate layer type %T", layer))
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// activation applies the layer's function to one element.
func (l *ActivationLayer) activation(x float64) float64 {
	switch l.kind {
	case KindSigmoid:
		return sigmoid(x)
	case KindTanh:
		return math.Tanh(x)
	case KindRectifiedLinear:
		if x >= l.threshold {
			return x
		}
		return 0
	case KindLeakyRectifiedLinear:
		if x >= l.threshold {
			return x
		}
		return l.alpha * x
	}
	panic(errors.Wrapf(ErrInvalidLayer, "unknown activation %s", l.kind))
}

// derivative of the activation at x.
func (l *ActivationLayer) derivative(x float64) float64 {
	switch l.kind {
	case KindSigmoid:
		s := sigmoid(x)
		return s * (1 - s)
	case KindTanh:
		t := math.Tanh(x)
		return 1 - t*t
	case KindRectifiedLinear:
		if x >= l.threshold {
			return 1
		}
		return 0
	case KindLeakyRectifiedLinear:
		if x >= l.threshold {
			return 1
		}
		return l.alpha
	}
	panic(errors.Wrapf(ErrInvalidLayer, "unknown activation %s", l.kind))
}

func identity(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	for ii := range size {
		m.Set(ii, ii, 1)
	}
	return m
}

// localGradient of layer idx with respect to v: a layer.OutputSize()×v.Size() matrix.
//
// An input layer appearing k times contributes k times: for Addition that is k·I, for Subtraction(a, a)
// the contributions cancel, and for ElementwiseMultiplication it yields the product rule.
func (n *Network) localGradient(state *variables.State, idx int, v *variables.Variable) *mat.Dense {
	layer := n.layers[idx]
	outputSize := layer.OutputSize()
	if v.Equal(layer.OutputVariable()) {
		return identity(outputSize)
	}
	grad := mat.NewDense(outputSize, v.Size(), nil)
	if v.IsLayerOutput() {
		for pos, input := range layer.base().inputs {
			if v.Equal(n.layers[input.index].OutputVariable()) {
				n.addInputDerivative(state, idx, pos, grad)
			}
		}
		return grad
	}

	switch l := layer.(type) {
	case *InputLayer:
		if v.Equal(l.bound) {
			return identity(outputSize)
		}

	case *FullyConnectedLayer:
		if v.Equal(l.weights) {
			// y_i = Σ_j W[i,j]·x_j, and W[i,j] is element i + j·units of the flattened weights.
			x := n.value(state, l.inputs[0].index)
			for j := range x.Len() {
				for i := range l.units {
					grad.Set(i, i+j*l.units, x.AtVec(j))
				}
			}
		} else if l.useBias && v.Equal(l.bias) {
			return identity(outputSize)
		}
	}
	// Constants, and variables not read by the layer, have zero derivative.
	return grad
}

// addInputDerivative adds to grad the derivative of layer idx with respect to its input at position pos.
func (n *Network) addInputDerivative(state *variables.State, idx, pos int, grad *mat.Dense) {
	layer := n.layers[idx]
	inputs := layer.base().inputs
	switch l := layer.(type) {
	case *FullyConnectedLayer:
		grad.Add(grad, must.M1(state.GetMatrix(l.weights)))

	case *ActivationLayer:
		x := n.value(state, inputs[pos].index)
		for ii := range x.Len() {
			grad.Set(ii, ii, grad.At(ii, ii)+l.derivative(x.AtVec(ii)))
		}

	case *CombinationLayer:
		sign := 1.0
		if l.kind == KindSubtraction && pos == 1 {
			sign = -1.0
		}
		for ii := range l.outputSize {
			delta := sign
			if l.kind == KindElementwiseMultiplication {
				for other, input := range inputs {
					if other != pos {
						delta *= n.value(state, input.index).AtVec(ii)
					}
				}
			}
			grad.Set(ii, ii, grad.At(ii, ii)+delta)
		}

	case *OutputLayer:
		grad.Add(grad, identity(l.outputSize))

	default:
		panic(errors.Wrapf(ErrInvalidLayer, "layer %s has no inputs to differentiate", layer))
	}
}
