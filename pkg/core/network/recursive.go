// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"github.com/gomlx/exceptions"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RecursiveGradient returns the gradient of the network output with respect to v by applying the chain
// rule recursively from the output layer.
//
// It's not memoized, and a layer reachable by several paths is differentiated once per path, so it's
// exponential on graphs with many shared sub-graphs. It's kept as a reference to validate BackwardPass.
func (n *Network) RecursiveGradient(state *variables.State, v *variables.Variable) (*mat.Dense, error) {
	return n.LayerRecursiveGradient(state, n.layers[n.outputIdx].Handle(), v)
}

// LayerRecursiveGradient returns the gradient of the output of layer h with respect to v, a matrix of
// shape h.OutputSize()×v.Size(), computed recursively.
func (n *Network) LayerRecursiveGradient(state *variables.State, h LayerHandle, v *variables.Variable) (grad *mat.Dense, err error) {
	if !n.owns(h) {
		return nil, errors.Wrapf(ErrUnknownInputLayer, "%s is not part of the network", h)
	}
	if err = n.checkVariable(v); err != nil {
		return nil, err
	}
	err = exceptions.TryCatch[error](func() { grad = n.recursiveGradient(state, h.index, v) })
	if err != nil {
		err = errors.WithMessagef(err, "RecursiveGradient(%s)", v)
	}
	return
}

// recursiveGradient computes local(h, v) + Σ local(h, out(i)) · recursive(i, v), over the distinct
// inputs i whose output is not v itself (those are already accounted for in local(h, v)).
func (n *Network) recursiveGradient(state *variables.State, idx int, v *variables.Variable) *mat.Dense {
	grad := n.localGradient(state, idx, v)
	if v.Equal(n.layers[idx].OutputVariable()) {
		return grad
	}
	for _, inputIdx := range n.distinctInputs[idx] {
		inputOutput := n.layers[inputIdx].OutputVariable()
		if v.Equal(inputOutput) {
			continue
		}
		var term mat.Dense
		term.Mul(n.localGradient(state, idx, inputOutput), n.recursiveGradient(state, inputIdx, v))
		grad.Add(grad, &term)
	}
	return grad
}
