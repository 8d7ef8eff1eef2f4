// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"strings"

	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Builder incrementally assembles layers into a Network.
//
// Layers reference their inputs by the LayerHandle returned when those were added, so inputs are always
// added before their consumers. All validation is done eagerly: AddLayer fails as soon as a layer is
// invalid, and the builder is left unchanged.
//
// Each Builder owns the variables.Registry where the variables of its layers are created.
type Builder struct {
	registry  *variables.Registry
	layers    []Layer
	output    int
	finalized bool
}

// NewBuilder returns an empty Builder with its own variables registry.
func NewBuilder() *Builder {
	return &Builder{registry: variables.NewRegistry(), output: -1}
}

// Registry where the builder creates variables.
func (b *Builder) Registry() *variables.Registry {
	return b.registry
}

// NumLayers added so far.
func (b *Builder) NumLayers() int {
	return len(b.layers)
}

// Layer returns the layer for the handle, or nil if it's not from this builder.
func (b *Builder) Layer(h LayerHandle) Layer {
	if !b.owns(h) {
		return nil
	}
	return b.layers[h.index]
}

func (b *Builder) owns(h LayerHandle) bool {
	return h.owner == b.registry.ID() && h.index >= 0 && h.index < len(b.layers)
}

// AddLayer adds the layer to the graph, creating its output variable and parameters.
//
// It fails with ErrDuplicateLayer if the layer was already added, ErrUnknownInputLayer if one of its inputs
// was not added to this builder, ErrMultipleOutputLayers if it's designated as output (with AsOutput or by
// being an OutputLayer) and there is already one, ErrOutputLayerConsumed if it reads from the output layer,
// variables.ErrSizeMismatch if the inputs of an elementwise combination differ in size and ErrInvalidLayer
// for any other invalid configuration.
func (b *Builder) AddLayer(layer Layer, options ...LayerOption) (LayerHandle, error) {
	if b.finalized {
		return InvalidLayerHandle, ErrBuilderFinalized
	}
	if layer == nil {
		return InvalidLayerHandle, errors.Wrap(ErrInvalidLayer, "nil layer")
	}
	base := layer.base()
	if base.handle.Valid() {
		return InvalidLayerHandle, errors.Wrapf(ErrDuplicateLayer, "%s", layer)
	}
	opts := &layerOptions{}
	for _, option := range options {
		option(opts)
	}
	isOutput := opts.output || base.kind == KindOutput
	if isOutput && b.output >= 0 {
		return InvalidLayerHandle, errors.Wrapf(ErrMultipleOutputLayers, "adding %s, output is already %s",
			base.kind, b.layers[b.output])
	}
	if opts.fullyConnectedOnly() && base.kind != KindFullyConnected {
		return InvalidLayerHandle, errors.Wrapf(ErrInvalidLayer, "bias and weights options given to a %s layer", base.kind)
	}
	inputSizes := make([]int, len(base.inputs))
	for ii, input := range base.inputs {
		if !b.owns(input) {
			return InvalidLayerHandle, errors.Wrapf(ErrUnknownInputLayer, "input #%d (%s) of %s layer", ii, input, base.kind)
		}
		if input.index == b.output {
			return InvalidLayerHandle, errors.Wrapf(ErrOutputLayerConsumed, "input #%d of %s layer", ii, base.kind)
		}
		inputSizes[ii] = b.layers[input.index].OutputSize()
	}
	outputSize, err := validateLayer(layer, inputSizes)
	if err != nil {
		return InvalidLayerHandle, err
	}
	if err := b.checkNamesAvailable(append([]string{opts.name}, layerVariableNames(layer, opts)...)...); err != nil {
		return InvalidLayerHandle, err
	}

	// From here on nothing can fail, other than bugs.
	handle := LayerHandle{owner: b.registry.ID(), index: len(b.layers)}
	b.createVariables(layer, opts, inputSizes, outputSize)
	base.handle = handle
	base.outputSize = outputSize
	b.layers = append(b.layers, layer)
	if isOutput {
		b.output = handle.index
	}
	if klog.V(2).Enabled() {
		klog.Infof("network.Builder: added %s with output size %d, inputs %v", layer, outputSize, base.inputs)
	}
	return handle, nil
}

// validateLayer checks the layer configuration against its inputs' sizes and returns its output size.
func validateLayer(layer Layer, inputSizes []int) (int, error) {
	kind := layer.Kind()
	switch l := layer.(type) {
	case *InputLayer:
		if l.size <= 0 {
			return 0, errors.Wrapf(ErrInvalidLayer, "input layer with size %d", l.size)
		}
		return l.size, nil

	case *ConstantLayer:
		if len(l.values) == 0 {
			return 0, errors.Wrap(ErrInvalidLayer, "constant layer with no values")
		}
		return len(l.values), nil

	case *FullyConnectedLayer:
		if len(inputSizes) != 1 {
			return 0, errors.Wrapf(ErrInvalidLayer, "fully-connected layer with %d inputs", len(inputSizes))
		}
		if l.units <= 0 {
			return 0, errors.Wrapf(ErrInvalidLayer, "fully-connected layer with %d units", l.units)
		}
		return l.units, nil

	case *ActivationLayer:
		if !kind.IsActivation() || len(inputSizes) != 1 {
			return 0, errors.Wrapf(ErrInvalidLayer, "%s activation layer with %d inputs", kind, len(inputSizes))
		}
		return inputSizes[0], nil

	case *CombinationLayer:
		if !kind.IsCombination() {
			return 0, errors.Wrapf(ErrInvalidLayer, "combination layer of kind %s", kind)
		}
		if len(inputSizes) == 0 || (kind == KindSubtraction && len(inputSizes) != 2) {
			return 0, errors.Wrapf(ErrInvalidLayer, "%s layer with %d inputs", kind, len(inputSizes))
		}
		for ii, size := range inputSizes[1:] {
			if size != inputSizes[0] {
				return 0, errors.Wrapf(variables.ErrSizeMismatch, "%s layer: input #%d has size %d, but input #0 has size %d",
					kind, ii+1, size, inputSizes[0])
			}
		}
		return inputSizes[0], nil

	case *OutputLayer:
		if len(inputSizes) != 1 {
			return 0, errors.Wrapf(ErrInvalidLayer, "output layer with %d inputs", len(inputSizes))
		}
		return inputSizes[0], nil

	default:
		return 0, errors.Wrapf(ErrInvalidLayer, "unknown layer type %T", layer)
	}
}

// layerVariableNames returns the explicit names of the variables a layer will create, other than its output.
func layerVariableNames(layer Layer, opts *layerOptions) []string {
	switch l := layer.(type) {
	case *InputLayer:
		return []string{l.name}
	case *FullyConnectedLayer:
		if opts.withoutBias {
			return []string{opts.weightsName}
		}
		return []string{opts.weightsName, opts.biasName}
	default:
		return nil
	}
}

func (b *Builder) checkNamesAvailable(names ...string) error {
	seen := sets.Make[string](len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, found := b.registry.ByName(name); found || !seen.Add(name) {
			return errors.Wrapf(variables.ErrDuplicateName, "%q", name)
		}
	}
	return nil
}

// createVariables creates the variables of a validated layer.
// Errors here are bugs, since names and sizes were already validated.
func (b *Builder) createVariables(layer Layer, opts *layerOptions, inputSizes []int, outputSize int) {
	must := func(v *variables.Variable, err error) *variables.Variable {
		if err != nil {
			panic(errors.WithMessagef(err, "network.Builder failed to create variables of a validated %s layer", layer.Kind()))
		}
		return v
	}
	switch l := layer.(type) {
	case *InputLayer:
		l.bound = must(b.registry.NewVector(l.name, l.size))
	case *ConstantLayer:
		l.constant = must(b.registry.NewConstant("", l.values))
	case *FullyConnectedLayer:
		l.weights = must(b.registry.NewMatrix(opts.weightsName, l.units, inputSizes[0]))
		l.useBias = !opts.withoutBias
		if l.useBias {
			l.bias = must(b.registry.NewVector(opts.biasName, l.units))
		}
	}
	layer.base().output = must(b.registry.NewLayerOutput(opts.name, outputSize))
}

// Build freezes the graph into a Network.
//
// It fails with ErrMissingOutputLayer if no layer was designated as output, and with ErrOrphanLayer if
// any other layer's output is never used.
//
// After Build the builder can no longer be used.
func (b *Builder) Build() (*Network, error) {
	if b.finalized {
		return nil, ErrBuilderFinalized
	}
	if b.output < 0 {
		return nil, ErrMissingOutputLayer
	}
	net, err := newNetwork(b.registry, b.layers, b.output)
	if err != nil {
		return nil, err
	}
	b.finalized = true
	if klog.V(1).Enabled() {
		klog.Infof("network.Builder: built network with %d layers, %d variables and %d parameters",
			len(net.layers), net.registry.Len(), len(net.parameters))
	}
	return net, nil
}

func orphanNames(layers []Layer, orphans []int) string {
	parts := make([]string, len(orphans))
	for ii, idx := range orphans {
		parts[ii] = layers[idx].String()
	}
	return strings.Join(parts, ", ")
}

// AddInputLayer adds an input layer of the given size, whose bound variable is named name.
func (b *Builder) AddInputLayer(size int, name string, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Input(size, name), options...)
}

// AddConstantLayer adds a layer that always outputs values.
func (b *Builder) AddConstantLayer(values []float64, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Constant(values...), options...)
}

// AddFullyConnectedLayer adds an affine layer W·x + b with the given number of units.
// Use WithoutBias to drop the bias, and WeightsName/BiasName to name the parameters.
func (b *Builder) AddFullyConnectedLayer(input LayerHandle, units int, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(FullyConnected(input, units), options...)
}

// AddSigmoidLayer adds a sigmoid activation.
func (b *Builder) AddSigmoidLayer(input LayerHandle, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Sigmoid(input), options...)
}

// AddTanhLayer adds a hyperbolic tangent activation.
func (b *Builder) AddTanhLayer(input LayerHandle, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Tanh(input), options...)
}

// AddRectifiedLinearLayer adds a rectified-linear activation with the given threshold.
func (b *Builder) AddRectifiedLinearLayer(input LayerHandle, threshold float64, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(RectifiedLinear(input, threshold), options...)
}

// AddLeakyRectifiedLinearLayer adds a leaky rectified-linear activation. Typical values are a threshold of 0
// and DefaultLeakyAlpha.
func (b *Builder) AddLeakyRectifiedLinearLayer(input LayerHandle, threshold, alpha float64, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(LeakyRectifiedLinear(input, threshold, alpha), options...)
}

// AddAdditionLayer adds the elementwise sum of the inputs.
func (b *Builder) AddAdditionLayer(inputs []LayerHandle, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Addition(inputs...), options...)
}

// AddSubtractionLayer adds the elementwise difference a - b.
func (b *Builder) AddSubtractionLayer(a, c LayerHandle, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(Subtraction(a, c), options...)
}

// AddElementwiseMultiplicationLayer adds the elementwise product of the inputs.
func (b *Builder) AddElementwiseMultiplicationLayer(inputs []LayerHandle, options ...LayerOption) (LayerHandle, error) {
	return b.AddLayer(ElementwiseMultiplication(inputs...), options...)
}

// AddOutputLayer adds an output layer copying input, and designates it as the network output.
func (b *Builder) AddOutputLayer(input LayerHandle) (LayerHandle, error) {
	return b.AddLayer(Output(input))
}
