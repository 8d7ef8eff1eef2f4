// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"github.com/gomlx/exceptions"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// BackwardPass computes the gradient of the network output with respect to every layer output, by
// propagating gradients from the output layer back to the inputs.
//
// Each layer accumulates the gradients sent by its consumers, and only once all of its consumers have
// contributed it forwards its accumulated gradient (times its local gradient) to its inputs. That
// way every layer is visited once, regardless of how many paths lead to it.
//
// A BackwardPass holds the accumulators for one network and one state, and is not safe for concurrent use.
// Independent passes over the same Network can run concurrently with different states.
type BackwardPass struct {
	net   *Network
	state *variables.State

	// accumulated[i] is the gradient of the network output with respect to the output of layer i,
	// a netOutputSize×layerOutputSize matrix. It's nil until the first contribution arrives.
	accumulated []*mat.Dense

	// received[i] counts how many of the consumers of layer i have contributed.
	received []int
	ready    []bool
}

// NewBackwardPass creates a pass over the network for the given state. Call Run to compute the gradients.
func (n *Network) NewBackwardPass(state *variables.State) *BackwardPass {
	numLayers := len(n.layers)
	return &BackwardPass{
		net:         n,
		state:       state,
		accumulated: make([]*mat.Dense, numLayers),
		received:    make([]int, numLayers),
		ready:       make([]bool, numLayers),
	}
}

// Reset clears all accumulated gradients.
func (p *BackwardPass) Reset() {
	clear(p.accumulated)
	clear(p.received)
	clear(p.ready)
}

// Run resets the pass and propagates the gradient from the output layer to every layer.
//
// It fails if evaluating the network fails, for instance if an input is not bound in the state.
func (p *BackwardPass) Run() error {
	p.Reset()
	err := exceptions.TryCatch[error](func() {
		p.seed()
		p.propagate(p.net.outputIdx)
	})
	if err != nil {
		return errors.WithMessage(err, "BackwardPass.Run")
	}
	if klog.V(2).Enabled() {
		var numReady int
		for _, ready := range p.ready {
			if ready {
				numReady++
			}
		}
		klog.Infof("BackwardPass: %d of %d layers received their gradients", numReady, len(p.ready))
	}
	return nil
}

// seed sets the gradient of the output layer with respect to itself.
func (p *BackwardPass) seed() {
	idx := p.net.outputIdx
	p.accumulated[idx] = identity(p.net.layers[idx].OutputSize())
	p.ready[idx] = true
}

// propagate forwards the gradient of a ready layer to its inputs, and recursively to the inputs that
// become ready. It uses an explicit stack, since networks can be deep.
func (p *BackwardPass) propagate(idx int) {
	stack := []int{idx}
	for len(stack) > 0 {
		idx = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, inputIdx := range p.net.distinctInputs[idx] {
			local := p.net.localGradient(p.state, idx, p.net.layers[inputIdx].OutputVariable())
			contribution := &mat.Dense{}
			contribution.Mul(p.accumulated[idx], local)
			if p.receive(inputIdx, contribution) {
				stack = append(stack, inputIdx)
			}
		}
	}
}

// receive adds the contribution of one consumer to the accumulated gradient of layer idx, and returns
// whether the layer has now heard from all of its consumers.
func (p *BackwardPass) receive(idx int, contribution *mat.Dense) bool {
	if p.ready[idx] {
		exceptions.Panicf("BackwardPass: layer %s received more contributions than it has consumers (%d)",
			p.net.layers[idx], len(p.net.consumers[idx]))
	}
	if p.accumulated[idx] == nil {
		p.accumulated[idx] = contribution
	} else {
		p.accumulated[idx].Add(p.accumulated[idx], contribution)
	}
	p.received[idx]++
	if p.received[idx] == len(p.net.consumers[idx]) {
		p.ready[idx] = true
	}
	return p.ready[idx]
}

// Ready returns whether layer h has received the contributions of all its consumers.
func (p *BackwardPass) Ready(h LayerHandle) bool {
	return p.net.owns(h) && p.ready[h.index]
}

// LayerGradient returns the gradient of the network output with respect to the output of layer h,
// or ErrGradientNotReady if not all of the layer's consumers have contributed yet.
func (p *BackwardPass) LayerGradient(h LayerHandle) (*mat.Dense, error) {
	if !p.net.owns(h) {
		return nil, errors.Wrapf(ErrUnknownInputLayer, "%s is not part of the network", h)
	}
	return p.layerGradient(h.index)
}

func (p *BackwardPass) layerGradient(idx int) (*mat.Dense, error) {
	if !p.ready[idx] {
		return nil, errors.Wrapf(ErrGradientNotReady, "layer %s received %d of %d contributions",
			p.net.layers[idx], p.received[idx], len(p.net.consumers[idx]))
	}
	return mat.DenseCopyOf(p.accumulated[idx]), nil
}

// Gradient returns the gradient of the network output with respect to v, a matrix of shape
// netOutputSize×v.Size().
//
// For a layer output variable it's the accumulated gradient of its layer. For any other variable
// (parameters, variables bound to inputs, constants) it's the sum over the layers reading v of their
// accumulated gradient times their local gradient with respect to v.
func (p *BackwardPass) Gradient(v *variables.Variable) (grad *mat.Dense, err error) {
	if err = p.net.checkVariable(v); err != nil {
		return nil, err
	}
	if idx, found := p.net.outputOwner[v.Key()]; found {
		return p.layerGradient(idx)
	}
	users := p.net.users[v.Key()]
	for _, idx := range users {
		if !p.ready[idx] {
			return nil, errors.Wrapf(ErrGradientNotReady, "variable %s is used by %s, which received %d of %d contributions",
				v, p.net.layers[idx], p.received[idx], len(p.net.consumers[idx]))
		}
	}
	err = exceptions.TryCatch[error](func() {
		grad = mat.NewDense(p.net.OutputSize(), v.Size(), nil)
		for _, idx := range users {
			var contribution mat.Dense
			contribution.Mul(p.accumulated[idx], p.net.localGradient(p.state, idx, v))
			grad.Add(grad, &contribution)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "BackwardPass.Gradient(%s)", v)
	}
	return grad, nil
}

// Gradients returns the gradient with respect to each of vs.
func (p *BackwardPass) Gradients(vs ...*variables.Variable) ([]*mat.Dense, error) {
	grads := make([]*mat.Dense, len(vs))
	for ii, v := range vs {
		var err error
		grads[ii], err = p.Gradient(v)
		if err != nil {
			return nil, err
		}
	}
	return grads, nil
}

// ParameterGradients returns the gradients with respect to the network parameters, in the same order
// as Network.Parameters.
func (p *BackwardPass) ParameterGradients() ([]*mat.Dense, error) {
	return p.Gradients(p.net.parameters...)
}
