// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/ml/losses"
	"github.com/layergraph/layergraph/pkg/support/sets"
	"github.com/layergraph/layergraph/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"k8s.io/klog/v2"
)

// Objective is the total loss of a network over a dataset, as a function of the values of the optimized
// variables flattened into one vector, in the order they were given (by default Network.Parameters),
// each one flattened as stored in the state.
//
// The optimized variables can include the bound variables of input layers: those are then left as
// given by the optimizer, instead of being set from the examples.
//
// It implements the functions of an optimize.Problem. The optimizer calls them from its own goroutine,
// so evaluation errors are not returned: the first one is kept (see Err), and from then on Func returns
// NaN and Grad fills the gradient with NaN, which interrupts the optimization.
//
// An Objective owns its state, and it's not safe for concurrent use.
type Objective struct {
	net       *network.Network
	loss      losses.LossFn
	data      *Dataset
	vars      []*variables.Variable
	inputVars []*variables.Variable
	// fixedInputs marks the input variables that are optimized, and hence not set from the examples.
	fixedInputs []bool
	state       *variables.State
	numValues   int

	// Number of evaluations of Func and Grad, for logging.
	numFuncCalls, numGradCalls int

	err error
}

// NewObjective creates the objective of net over data, measured by loss, as a function of the values
// of vars, or of all the network parameters if none are given. The state provides the values of any
// variable not set by the dataset or the optimizer. It is cloned.
func NewObjective(net *network.Network, loss losses.LossFn, data *Dataset, state *variables.State,
	vars ...*variables.Variable) (*Objective, error) {
	if err := data.Check(net); err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return nil, errors.Errorf("dataset %q is empty", data.Name)
	}
	if len(vars) == 0 {
		vars = net.Parameters()
	} else if err := checkOptimizedVariables(net, vars); err != nil {
		return nil, err
	}
	o := &Objective{
		net:       net,
		loss:      loss,
		data:      data,
		vars:      vars,
		inputVars: net.InputVariables(),
		state:     state.Clone(),
	}
	optimized := sets.MakeWith(xslices.Map(vars, (*variables.Variable).Key)...)
	for _, v := range vars {
		o.numValues += v.Size()
	}
	o.fixedInputs = xslices.Map(o.inputVars, func(v *variables.Variable) bool { return optimized.Has(v.Key()) })
	return o, nil
}

// checkOptimizedVariables verifies vars are distinct parameters or input variables of net.
func checkOptimizedVariables(net *network.Network, vars []*variables.Variable) error {
	candidates := slices.Concat(net.InputVariables(), net.Parameters())
	known := sets.MakeWith(xslices.Map(candidates, (*variables.Variable).Key)...)
	available := sets.MakeWith(xslices.Map(candidates, (*variables.Variable).Key)...)
	for _, v := range vars {
		if v == nil {
			return errors.Wrap(network.ErrUnknownVariable, "nil variable to optimize")
		}
		if !known.Has(v.Key()) {
			return errors.Wrapf(network.ErrUnknownVariable, "%s is not an input or parameter of the network", v)
		}
		if !available.Has(v.Key()) {
			return errors.Errorf("%s is listed more than once in the variables to optimize", v)
		}
		available.Remove(v.Key())
	}
	return nil
}

// Variables returns the optimized variables, in the order their values are flattened.
func (o *Objective) Variables() []*variables.Variable {
	return slices.Clone(o.vars)
}

// NumValues is the dimension of the flattened parameters vector.
func (o *Objective) NumValues() int {
	return o.numValues
}

// Pack flattens the values of the optimized variables in state.
func (o *Objective) Pack(state *variables.State) ([]float64, error) {
	x := make([]float64, 0, o.numValues)
	for _, p := range o.vars {
		value, err := state.Get(p)
		if err != nil {
			return nil, err
		}
		for ii := range value.Len() {
			x = append(x, value.AtVec(ii))
		}
	}
	return x, nil
}

// Unpack sets the optimized variables in state from the flattened x.
func (o *Objective) Unpack(x []float64, state *variables.State) error {
	if len(x) != o.numValues {
		return errors.Wrapf(variables.ErrSizeMismatch, "unpacking %d values into %d optimized values", len(x), o.numValues)
	}
	offset := 0
	for _, p := range o.vars {
		size := p.Size()
		values := make([]float64, size)
		copy(values, x[offset:offset+size])
		if err := state.SetValues(p, values...); err != nil {
			return err
		}
		offset += size
	}
	return nil
}

func (o *Objective) setExample(example Example) {
	for ii, v := range o.inputVars {
		if o.fixedInputs[ii] {
			continue
		}
		if err := o.state.Set(v, example.Inputs[ii]); err != nil {
			panic(errors.WithMessagef(err, "setting input %s", v))
		}
	}
}

// Func returns the total loss over the dataset at parameters x.
func (o *Objective) Func(x []float64) float64 {
	o.numFuncCalls++
	var total float64
	if err := o.try(func() { total = o.totalLoss(x) }); err != nil {
		return math.NaN()
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		klog.Warningf("train.Objective: loss is %g", total)
	}
	return total
}

// Grad sets grad to the gradient of the total loss with respect to the optimized values x: for each
// example, the gradient of the loss with respect to the network output times the gradient of the output
// with respect to the optimized variables.
func (o *Objective) Grad(grad, x []float64) {
	o.numGradCalls++
	if err := o.try(func() { o.gradient(grad, x) }); err != nil {
		for ii := range grad {
			grad[ii] = math.NaN()
		}
	}
}

// try runs fn, converting a panic to an error that is kept in o.err. It does nothing and returns
// the previous error if one already happened.
func (o *Objective) try(fn func()) error {
	if o.err != nil {
		return o.err
	}
	o.err = exceptions.TryCatch[error](fn)
	if o.err != nil {
		klog.Errorf("train.Objective: %+v", o.err)
	}
	return o.err
}

// Err returns the first error that happened while evaluating Func or Grad.
func (o *Objective) Err() error {
	return o.err
}

func (o *Objective) totalLoss(x []float64) float64 {
	if err := o.Unpack(x, o.state); err != nil {
		panic(err)
	}
	var total float64
	for _, example := range o.data.Examples {
		o.setExample(example)
		output, err := o.net.Evaluate(o.state)
		if err != nil {
			panic(err)
		}
		loss, _ := o.loss(output, example.Target)
		total += loss
	}
	return total
}

func (o *Objective) gradient(grad, x []float64) {
	if len(grad) != o.numValues {
		panic(errors.Errorf("train.Objective.Grad: grad has size %d, wanted %d", len(grad), o.numValues))
	}
	if err := o.Unpack(x, o.state); err != nil {
		panic(err)
	}
	clear(grad)
	pass := o.net.NewBackwardPass(o.state)
	for _, example := range o.data.Examples {
		o.setExample(example)
		output, err := o.net.Evaluate(o.state)
		if err != nil {
			panic(err)
		}
		_, lossGrad := o.loss(output, example.Target)
		if err := pass.Run(); err != nil {
			panic(err)
		}
		varGrads, err := pass.Gradients(o.vars...)
		if err != nil {
			panic(err)
		}
		offset := 0
		for _, varGrad := range varGrads {
			_, size := varGrad.Dims()
			var contribution mat.VecDense
			contribution.MulVec(varGrad.T(), lossGrad)
			for ii := range size {
				grad[offset+ii] += contribution.AtVec(ii)
			}
			offset += size
		}
	}
}

// Problem returns the objective as an optimize.Problem.
func (o *Objective) Problem() optimize.Problem {
	return optimize.Problem{Func: o.Func, Grad: o.Grad}
}

// Loss evaluates the total loss for the optimized variables in state.
func (o *Objective) Loss(state *variables.State) (loss float64, err error) {
	x, err := o.Pack(state)
	if err != nil {
		return 0, err
	}
	err = exceptions.TryCatch[error](func() { loss = o.totalLoss(x) })
	return
}

// Calls returns how many times Func and Grad were evaluated.
func (o *Objective) Calls() (funcCalls, gradCalls int) {
	return o.numFuncCalls, o.numGradCalls
}
