// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/layergraph/layergraph/pkg/core/variables"
)

const (
	// DefaultLeakyAlpha is the slope used below the threshold by LeakyRectifiedLinear layers.
	DefaultLeakyAlpha = 0.01
)

// LayerHandle refers to a layer added to a Builder. It's only valid for the Builder (and the Network it
// builds) that returned it.
type LayerHandle struct {
	owner uuid.UUID
	index int
}

// InvalidLayerHandle refers to no layer. The zero LayerHandle is also invalid.
var InvalidLayerHandle = LayerHandle{index: -1}

// Index of the layer within its network, in insertion order.
func (h LayerHandle) Index() int {
	return h.index
}

// Valid returns whether the handle was issued by a Builder.
func (h LayerHandle) Valid() bool {
	return h.owner != uuid.Nil && h.index >= 0
}

// String implements fmt.Stringer.
func (h LayerHandle) String() string {
	if !h.Valid() {
		return "layer#invalid"
	}
	return fmt.Sprintf("layer#%d", h.index)
}

// Layer is a node of the computation graph: it produces one output vector from its input layers and its
// own parameters.
//
// The set of layers is closed: InputLayer, ConstantLayer, FullyConnectedLayer, ActivationLayer,
// CombinationLayer and OutputLayer. They are created with the constructors of this package (Input,
// FullyConnected, Sigmoid, ...) and become part of a graph with Builder.AddLayer, at which point their
// variables are created. A Layer is immutable after it is added.
type Layer interface {
	// Kind of the layer.
	Kind() Kind

	// Inputs returns the handles of the input layers, in order. The same layer may appear more than once.
	Inputs() []LayerHandle

	// Handle of the layer, or InvalidLayerHandle if it was not added to a Builder yet.
	Handle() LayerHandle

	// OutputSize is the size of the output vector. It's only known after the layer is added.
	OutputSize() int

	// OutputVariable is the slot holding the output value of the layer. Nil until added.
	OutputVariable() *variables.Variable

	// Parameters returns the variables to be learned owned by the layer.
	Parameters() []*variables.Variable

	// String implements fmt.Stringer.
	String() string

	base() *layerBase
}

// layerBase holds what is common to every layer. It's filled when the layer is added to a Builder.
type layerBase struct {
	kind       Kind
	inputs     []LayerHandle
	handle     LayerHandle
	outputSize int
	output     *variables.Variable
}

func newLayerBase(kind Kind, inputs ...LayerHandle) layerBase {
	return layerBase{kind: kind, inputs: inputs, handle: InvalidLayerHandle}
}

func (l *layerBase) base() *layerBase { return l }

// Kind implements Layer.
func (l *layerBase) Kind() Kind { return l.kind }

// Inputs implements Layer.
func (l *layerBase) Inputs() []LayerHandle {
	inputs := make([]LayerHandle, len(l.inputs))
	copy(inputs, l.inputs)
	return inputs
}

// Handle implements Layer.
func (l *layerBase) Handle() LayerHandle { return l.handle }

// OutputSize implements Layer.
func (l *layerBase) OutputSize() int { return l.outputSize }

// OutputVariable implements Layer.
func (l *layerBase) OutputVariable() *variables.Variable { return l.output }

// Parameters implements Layer. Only fully-connected layers have parameters.
func (l *layerBase) Parameters() []*variables.Variable { return nil }

// String implements Layer.
func (l *layerBase) String() string {
	if l.output == nil {
		return fmt.Sprintf("%s(unattached)", l.kind)
	}
	return fmt.Sprintf("%s(%s, %s)", l.kind, l.handle, l.output.Name())
}

// InputLayer copies its bound input variable: it's how values enter the network.
type InputLayer struct {
	layerBase
	size  int
	name  string
	bound *variables.Variable
}

// Input creates an input layer of the given size. The bound variable is named name, or gets a default
// name if name is empty.
func Input(size int, name string) *InputLayer {
	return &InputLayer{layerBase: newLayerBase(KindInput), size: size, name: name}
}

// InputVariable is the variable whose value the layer copies. Nil until added.
func (l *InputLayer) InputVariable() *variables.Variable { return l.bound }

// ConstantLayer outputs a fixed value and ignores the state.
type ConstantLayer struct {
	layerBase
	values   []float64
	constant *variables.Variable
}

// Constant creates a layer whose output is always values.
func Constant(values ...float64) *ConstantLayer {
	return &ConstantLayer{layerBase: newLayerBase(KindConstant), values: append([]float64(nil), values...)}
}

// ConstantVariable holds the fixed value of the layer. Nil until added.
func (l *ConstantLayer) ConstantVariable() *variables.Variable { return l.constant }

// FullyConnectedLayer computes W·x + b, where W is a units×inputSize matrix variable and b an optional
// bias vector variable.
type FullyConnectedLayer struct {
	layerBase
	units   int
	useBias bool
	weights *variables.Variable
	bias    *variables.Variable
}

// FullyConnected creates an affine layer with the given number of output units. The bias is included
// unless the WithoutBias option is given when adding it.
func FullyConnected(input LayerHandle, units int) *FullyConnectedLayer {
	return &FullyConnectedLayer{layerBase: newLayerBase(KindFullyConnected, input), units: units, useBias: true}
}

// Units is the number of outputs.
func (l *FullyConnectedLayer) Units() int { return l.units }

// Weights is the units×inputSize matrix variable. Nil until added.
func (l *FullyConnectedLayer) Weights() *variables.Variable { return l.weights }

// Bias is the bias vector variable, nil if the layer has no bias.
func (l *FullyConnectedLayer) Bias() *variables.Variable { return l.bias }

// Parameters implements Layer.
func (l *FullyConnectedLayer) Parameters() []*variables.Variable {
	if l.weights == nil {
		return nil
	}
	if l.bias == nil {
		return []*variables.Variable{l.weights}
	}
	return []*variables.Variable{l.weights, l.bias}
}

// ActivationLayer applies an elementwise activation function to its single input.
type ActivationLayer struct {
	layerBase
	threshold, alpha float64
}

// Sigmoid creates a layer computing 1/(1+exp(-x)) elementwise.
func Sigmoid(input LayerHandle) *ActivationLayer {
	return &ActivationLayer{layerBase: newLayerBase(KindSigmoid, input)}
}

// Tanh creates a layer computing tanh(x) elementwise.
func Tanh(input LayerHandle) *ActivationLayer {
	return &ActivationLayer{layerBase: newLayerBase(KindTanh, input)}
}

// RectifiedLinear creates a layer returning x if x >= threshold, and 0 otherwise.
func RectifiedLinear(input LayerHandle, threshold float64) *ActivationLayer {
	return &ActivationLayer{layerBase: newLayerBase(KindRectifiedLinear, input), threshold: threshold}
}

// LeakyRectifiedLinear creates a layer returning x if x >= threshold, and alpha*x otherwise.
func LeakyRectifiedLinear(input LayerHandle, threshold, alpha float64) *ActivationLayer {
	return &ActivationLayer{layerBase: newLayerBase(KindLeakyRectifiedLinear, input), threshold: threshold, alpha: alpha}
}

// Threshold of the rectified-linear activations.
func (l *ActivationLayer) Threshold() float64 { return l.threshold }

// Alpha is the slope below the threshold of the leaky rectified-linear activation.
func (l *ActivationLayer) Alpha() float64 { return l.alpha }

// CombinationLayer combines inputs of the same size elementwise: sum, difference or product.
type CombinationLayer struct {
	layerBase
}

// Addition creates a layer with the elementwise sum of all inputs.
func Addition(inputs ...LayerHandle) *CombinationLayer {
	return &CombinationLayer{layerBase: newLayerBase(KindAddition, inputs...)}
}

// Subtraction creates a layer computing a - b.
func Subtraction(a, b LayerHandle) *CombinationLayer {
	return &CombinationLayer{layerBase: newLayerBase(KindSubtraction, a, b)}
}

// ElementwiseMultiplication creates a layer with the elementwise product of all inputs.
func ElementwiseMultiplication(inputs ...LayerHandle) *CombinationLayer {
	return &CombinationLayer{layerBase: newLayerBase(KindElementwiseMultiplication, inputs...)}
}

// OutputLayer copies its input, and is always designated as the network output when added.
type OutputLayer struct {
	layerBase
}

// Output creates an output layer reading from input.
func Output(input LayerHandle) *OutputLayer {
	return &OutputLayer{layerBase: newLayerBase(KindOutput, input)}
}

// directVariables returns the non-layer variables a layer reads from the state: the bound input variable,
// the constant or its parameters.
func directVariables(layer Layer) []*variables.Variable {
	switch l := layer.(type) {
	case *InputLayer:
		return []*variables.Variable{l.bound}
	case *ConstantLayer:
		return []*variables.Variable{l.constant}
	case *FullyConnectedLayer:
		return l.Parameters()
	default:
		return nil
	}
}
