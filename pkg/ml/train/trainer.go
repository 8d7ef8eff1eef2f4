// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train fits the parameters of a network to a dataset, by minimizing the total loss with the
// gradients computed by network.BackwardPass and the optimizers of gonum.org/v1/gonum/optimize.
package train

import (
	"slices"

	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/ml/losses"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// Method names accepted by MethodByName.
const (
	MethodGradientDescent = "gd"
	MethodBFGS            = "bfgs"
	MethodLBFGS           = "lbfgs"
)

// MethodByName returns a new optimization method: "gd" (gradient descent with backtracking line
// search), "bfgs" or "lbfgs".
func MethodByName(name string) (optimize.Method, error) {
	switch name {
	case MethodGradientDescent:
		return &optimize.GradientDescent{}, nil
	case MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	}
	return nil, errors.Errorf("unknown optimization method %q, valid values are %q, %q and %q",
		name, MethodGradientDescent, MethodBFGS, MethodLBFGS)
}

// Trainer holds the configuration to train a network: the loss, the dataset and the optimizer.
// Use NewLoop to run it.
type Trainer struct {
	net    *network.Network
	loss   losses.LossFn
	data   *Dataset
	method optimize.Method

	// variables optimized, all the network parameters if empty.
	variables []*variables.Variable

	gradientThreshold float64
	functionTolerance float64
}

// Option configures a Trainer.
type Option func(t *Trainer)

// WithMethod sets the optimization method. Defaults to BFGS.
func WithMethod(method optimize.Method) Option {
	return func(t *Trainer) { t.method = method }
}

// WithVariables restricts training to the given variables, which can be any of the network parameters
// or input variables. The other parameters keep the values of the state being trained. By default all
// parameters are trained.
func WithVariables(vs ...*variables.Variable) Option {
	return func(t *Trainer) { t.variables = vs }
}

// WithGradientThreshold stops training when the norm of the gradient falls below threshold.
func WithGradientThreshold(threshold float64) Option {
	return func(t *Trainer) { t.gradientThreshold = threshold }
}

// WithFunctionTolerance stops training when the loss improves less than tolerance over 20 iterations.
func WithFunctionTolerance(tolerance float64) Option {
	return func(t *Trainer) { t.functionTolerance = tolerance }
}

// NewTrainer creates a trainer of net on data, minimizing the total loss.
func NewTrainer(net *network.Network, loss losses.LossFn, data *Dataset, options ...Option) (*Trainer, error) {
	if err := data.Check(net); err != nil {
		return nil, err
	}
	t := &Trainer{
		net:               net,
		loss:              loss,
		data:              data,
		method:            &optimize.BFGS{},
		gradientThreshold: 1e-8,
		functionTolerance: 1e-12,
	}
	for _, option := range options {
		option(t)
	}
	if len(t.variables) > 0 {
		if err := checkOptimizedVariables(net, t.variables); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Network being trained.
func (t *Trainer) Network() *network.Network {
	return t.net
}

// LossFn minimized by the trainer.
func (t *Trainer) LossFn() losses.LossFn {
	return t.loss
}

// Variables trained, in the order the optimizer sees them.
func (t *Trainer) Variables() []*variables.Variable {
	if len(t.variables) == 0 {
		return t.net.Parameters()
	}
	return slices.Clone(t.variables)
}

// Dataset used for training.
func (t *Trainer) Dataset() *Dataset {
	return t.data
}

// Loss evaluates the total loss over the dataset for the parameters in state.
func (t *Trainer) Loss(state *variables.State) (float64, error) {
	objective, err := NewObjective(t.net, t.loss, t.data, state, t.variables...)
	if err != nil {
		return 0, err
	}
	return objective.Loss(state)
}
