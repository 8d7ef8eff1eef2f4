// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/support/sets"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Network is an immutable, acyclic graph of layers with exactly one output layer.
//
// It's created by Builder.Build, and can be shared: all the values live in a variables.State, and the
// gradient accumulators live in a BackwardPass, both owned by the caller.
type Network struct {
	registry *variables.Registry

	// layers is the arena indexed by LayerHandle.Index(), in insertion order, which is a valid
	// topological order. order is the one computed at build time, used for traversals.
	layers []Layer
	order  []int

	// distinctInputs[i] lists the inputs of layer i without repetitions, in first-use order.
	// consumers[i] lists the distinct layers that read layer i.
	distinctInputs [][]int
	consumers      [][]int

	outputIdx   int
	inputLayers []int
	parameters  []*variables.Variable

	// outputOwner maps a layer output variable to its layer. users maps every other variable to the
	// layers that read it directly.
	outputOwner map[variables.Key]int
	users       map[variables.Key][]int
}

// newNetwork indexes the layers collected by a Builder, sorts them and checks for orphans.
func newNetwork(registry *variables.Registry, layers []Layer, outputIdx int) (*Network, error) {
	numLayers := len(layers)
	n := &Network{
		registry:       registry,
		layers:         slices.Clone(layers),
		distinctInputs: make([][]int, numLayers),
		consumers:      make([][]int, numLayers),
		outputIdx:      outputIdx,
		outputOwner:    make(map[variables.Key]int, numLayers),
		users:          make(map[variables.Key][]int),
	}
	for idx, layer := range n.layers {
		seen := sets.Make[int]()
		for _, input := range layer.base().inputs {
			if !seen.Add(input.index) {
				continue
			}
			n.distinctInputs[idx] = append(n.distinctInputs[idx], input.index)
			n.consumers[input.index] = append(n.consumers[input.index], idx)
		}
		n.outputOwner[layer.OutputVariable().Key()] = idx
		for _, v := range directVariables(layer) {
			n.users[v.Key()] = append(n.users[v.Key()], idx)
		}
		if layer.Kind() == KindInput {
			n.inputLayers = append(n.inputLayers, idx)
		}
		n.parameters = append(n.parameters, layer.Parameters()...)
	}

	var orphans []int
	for idx := range n.layers {
		if idx != outputIdx && len(n.consumers[idx]) == 0 {
			orphans = append(orphans, idx)
		}
	}
	if len(orphans) > 0 {
		return nil, errors.Wrapf(ErrOrphanLayer, "layers never used: %s", orphanNames(n.layers, orphans))
	}
	order, err := topologicalOrder(n.distinctInputs, n.consumers)
	if err != nil {
		return nil, err
	}
	n.order = order
	return n, nil
}

// topologicalOrder sorts the layers with Kahn's algorithm, always picking the lowest ready index, so
// the order is stable with respect to insertion.
func topologicalOrder(distinctInputs, consumers [][]int) ([]int, error) {
	numLayers := len(distinctInputs)
	pending := make([]int, numLayers)
	var ready []int
	for idx, inputs := range distinctInputs {
		pending[idx] = len(inputs)
		if pending[idx] == 0 {
			ready = append(ready, idx)
		}
	}
	order := make([]int, 0, numLayers)
	for len(ready) > 0 {
		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)
		for _, consumer := range consumers[idx] {
			pending[consumer]--
			if pending[consumer] == 0 {
				pos, _ := slices.BinarySearch(ready, consumer)
				ready = slices.Insert(ready, pos, consumer)
			}
		}
	}
	if len(order) != numLayers {
		// Handles only point to layers added earlier, so this can't happen.
		return nil, errors.Errorf("network has a cycle: only %d of %d layers could be sorted", len(order), numLayers)
	}
	return order, nil
}

// Registry holding the variables of the network.
func (n *Network) Registry() *variables.Registry {
	return n.registry
}

// NumLayers in the network.
func (n *Network) NumLayers() int {
	return len(n.layers)
}

// Layers returns the layers in topological order.
func (n *Network) Layers() []Layer {
	layers := make([]Layer, len(n.order))
	for ii, idx := range n.order {
		layers[ii] = n.layers[idx]
	}
	return layers
}

// Layer returns the layer for the handle, or nil if the handle is not from this network.
func (n *Network) Layer(h LayerHandle) Layer {
	if !n.owns(h) {
		return nil
	}
	return n.layers[h.index]
}

func (n *Network) owns(h LayerHandle) bool {
	return h.owner == n.registry.ID() && h.index >= 0 && h.index < len(n.layers)
}

// OutputLayer of the network.
func (n *Network) OutputLayer() Layer {
	return n.layers[n.outputIdx]
}

// OutputSize is the size of the network output.
func (n *Network) OutputSize() int {
	return n.layers[n.outputIdx].OutputSize()
}

// InputLayers returns the input layers in insertion order.
func (n *Network) InputLayers() []*InputLayer {
	inputs := make([]*InputLayer, len(n.inputLayers))
	for ii, idx := range n.inputLayers {
		inputs[ii] = n.layers[idx].(*InputLayer)
	}
	return inputs
}

// InputVariables returns the variables bound to the input layers, in insertion order.
func (n *Network) InputVariables() []*variables.Variable {
	vars := make([]*variables.Variable, len(n.inputLayers))
	for ii, idx := range n.inputLayers {
		vars[ii] = n.layers[idx].(*InputLayer).bound
	}
	return vars
}

// Parameters returns the variables to be learned, in layer order.
func (n *Network) Parameters() []*variables.Variable {
	return slices.Clone(n.parameters)
}

// NumParameters is the total number of scalar parameters.
func (n *Network) NumParameters() int {
	var total int
	for _, p := range n.parameters {
		total += p.Size()
	}
	return total
}

// Variables returns every variable of the network, ordered by id: inputs, constants, parameters and
// layer outputs.
func (n *Network) Variables() []*variables.Variable {
	return n.registry.All()
}

// Variable returns the variable with the given name.
func (n *Network) Variable(name string) (*variables.Variable, bool) {
	return n.registry.ByName(name)
}

// VariableByID returns the variable with the given id.
func (n *Network) VariableByID(id int) (*variables.Variable, bool) {
	return n.registry.ByID(id)
}

// NewState returns a state where every input and parameter variable is bound to zeros.
func (n *Network) NewState() *variables.State {
	state := variables.NewState()
	for _, v := range slices.Concat(n.InputVariables(), n.parameters) {
		if err := state.Set(v, mat.NewVecDense(v.Size(), nil)); err != nil {
			exceptions.Panicf("Network.NewState: failed to seed %s: %+v", v, err)
		}
	}
	return state
}

// Evaluate returns the value of the output layer.
//
// Layer values are memoized in state, so each layer is computed at most once until an input or
// parameter of state is changed. The returned vector is owned by the state.
func (n *Network) Evaluate(state *variables.State) (*mat.VecDense, error) {
	return n.valueAt(state, n.outputIdx)
}

// Value returns the (memoized) output of the layer h.
func (n *Network) Value(state *variables.State, h LayerHandle) (*mat.VecDense, error) {
	if !n.owns(h) {
		return nil, errors.Wrapf(ErrUnknownInputLayer, "%s is not part of the network", h)
	}
	return n.valueAt(state, h.index)
}

func (n *Network) valueAt(state *variables.State, idx int) (value *mat.VecDense, err error) {
	err = exceptions.TryCatch[error](func() { value = n.value(state, idx) })
	return
}

// LocalGradient returns the derivative of the output of layer h with respect to v, considering only the
// layer's own computation: a matrix of shape OutputSize()×v.Size().
//
// It's the identity for the layer's own output variable, the layer specific derivative for the output
// variable of one of its inputs, or for one of its own variables, and zero for anything else.
func (n *Network) LocalGradient(state *variables.State, h LayerHandle, v *variables.Variable) (grad *mat.Dense, err error) {
	if !n.owns(h) {
		return nil, errors.Wrapf(ErrUnknownInputLayer, "%s is not part of the network", h)
	}
	if err = n.checkVariable(v); err != nil {
		return nil, err
	}
	err = exceptions.TryCatch[error](func() { grad = n.localGradient(state, h.index, v) })
	return
}

// Gradient returns the derivative of the network output with respect to v, a matrix of shape
// OutputSize()×v.Size(), computed with a fresh BackwardPass.
func (n *Network) Gradient(state *variables.State, v *variables.Variable) (*mat.Dense, error) {
	grads, err := n.Gradients(state, v)
	if err != nil {
		return nil, err
	}
	return grads[0], nil
}

// Gradients returns the derivative of the network output with respect to each of vs, sharing one
// backward pass.
func (n *Network) Gradients(state *variables.State, vs ...*variables.Variable) ([]*mat.Dense, error) {
	for _, v := range vs {
		if err := n.checkVariable(v); err != nil {
			return nil, err
		}
	}
	pass := n.NewBackwardPass(state)
	if err := pass.Run(); err != nil {
		return nil, err
	}
	grads := make([]*mat.Dense, len(vs))
	for ii, v := range vs {
		var err error
		grads[ii], err = pass.Gradient(v)
		if err != nil {
			return nil, err
		}
	}
	return grads, nil
}

// checkVariable returns ErrUnknownVariable if v doesn't belong to the network.
func (n *Network) checkVariable(v *variables.Variable) error {
	if v == nil {
		return errors.Wrap(ErrUnknownVariable, "nil variable")
	}
	if !n.registry.Owns(v) {
		return errors.Wrapf(ErrUnknownVariable, "%s", v)
	}
	return nil
}

// String implements fmt.Stringer.
func (n *Network) String() string {
	parts := make([]string, 0, len(n.order))
	for _, idx := range n.order {
		layer := n.layers[idx]
		inputs := make([]string, len(layer.base().inputs))
		for ii, input := range layer.base().inputs {
			inputs[ii] = fmt.Sprintf("#%d", input.index)
		}
		parts = append(parts, fmt.Sprintf("#%d=%s[%d](%s)", idx, layer.Kind(), layer.OutputSize(), strings.Join(inputs, ",")))
	}
	return fmt.Sprintf("Network{%s}", strings.Join(parts, " "))
}
