// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numdiff estimates derivatives of networks with central finite differences, to check the
// analytical gradients.
package numdiff

import (
	"math"
	"slices"

	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/support/workerspool"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// DefaultStep is the finite difference step used when none is given.
const DefaultStep = 1e-6

// Jacobian estimates the outputSize×len(x) Jacobian of f at x with central differences.
func Jacobian(f func(x []float64) []float64, x []float64, outputSize int, step float64) *mat.Dense {
	if step <= 0 {
		step = DefaultStep
	}
	dst := mat.NewDense(outputSize, len(x), nil)
	fd.Jacobian(dst, func(y, x []float64) {
		copy(y, f(x))
	}, x, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})
	return dst
}

// NetworkJacobian estimates the derivative of the network output with respect to v, which must be an
// input or parameter variable. The state is not modified.
func NetworkJacobian(net *network.Network, state *variables.State, v *variables.Variable, step float64) (*mat.Dense, error) {
	if v.IsLayerOutput() || v.IsConstant() {
		return nil, errors.Errorf("numdiff.NetworkJacobian(%s): only inputs and parameters can be perturbed, got a %s variable", v, v.Kind())
	}
	x, err := state.Get(v)
	if err != nil {
		return nil, err
	}
	var evalErr error
	f := func(x []float64) []float64 {
		s := state.Clone()
		if err := s.SetValues(v, x...); err != nil {
			evalErr = err
			return make([]float64, net.OutputSize())
		}
		y, err := net.Evaluate(s)
		if err != nil {
			evalErr = err
			return make([]float64, net.OutputSize())
		}
		return y.RawVector().Data
	}
	jacobian := Jacobian(f, cloneData(x), net.OutputSize(), step)
	if evalErr != nil {
		return nil, errors.WithMessagef(evalErr, "numdiff.NetworkJacobian(%s)", v)
	}
	return jacobian, nil
}

// LocalJacobian estimates the local gradient of layer h with respect to v: the values of the inputs of h
// are held fixed (except for v itself), so only the layer's own computation is differentiated.
//
// v can be the output variable of one of the inputs of h, or one of the variables h reads directly.
// The state is not modified.
func LocalJacobian(net *network.Network, state *variables.State, h network.LayerHandle, v *variables.Variable, step float64) (*mat.Dense, error) {
	layer := net.Layer(h)
	if layer == nil {
		return nil, errors.Errorf("numdiff.LocalJacobian: %s is not part of the network", h)
	}
	if v.IsConstant() {
		return nil, errors.Errorf("numdiff.LocalJacobian(%s): constants can't be perturbed", v)
	}
	base := state.Clone()
	if _, err := net.Value(base, h); err != nil {
		return nil, err
	}
	inputOutputs := make([]*variables.Variable, 0, len(layer.Inputs()))
	inputValues := make([]*mat.VecDense, 0, len(layer.Inputs()))
	for _, input := range layer.Inputs() {
		output := net.Layer(input).OutputVariable()
		value, err := base.Get(output)
		if err != nil {
			return nil, err
		}
		inputOutputs = append(inputOutputs, output)
		inputValues = append(inputValues, value)
	}
	x, err := base.Get(v)
	if err != nil {
		return nil, err
	}

	var evalErr error
	f := func(x []float64) []float64 {
		s := base.Clone()
		perturbed := mat.NewVecDense(len(x), slices.Clone(x))
		if !v.IsLayerOutput() {
			if err := s.Set(v, perturbed); err != nil {
				evalErr = err
				return make([]float64, layer.OutputSize())
			}
		}
		s.ClearOutputs()
		for ii, output := range inputOutputs {
			value := inputValues[ii]
			if output.Equal(v) {
				value = perturbed
			}
			if err := s.StoreOutput(output, mat.VecDenseCopyOf(value)); err != nil {
				evalErr = err
				return make([]float64, layer.OutputSize())
			}
		}
		y, err := net.Value(s, h)
		if err != nil {
			evalErr = err
			return make([]float64, layer.OutputSize())
		}
		return y.RawVector().Data
	}
	jacobian := Jacobian(f, cloneData(x), layer.OutputSize(), step)
	if evalErr != nil {
		return nil, errors.WithMessagef(evalErr, "numdiff.LocalJacobian(%s, %s)", h, v)
	}
	return jacobian, nil
}

// GradientCheck compares the analytical gradient with respect to one variable with its finite
// difference estimate.
type GradientCheck struct {
	Variable    *variables.Variable
	Analytical  *mat.Dense
	Numerical   *mat.Dense
	MaxAbsError float64
}

// CheckParameters compares the gradient of the network output with respect to each of its parameters,
// computed with a BackwardPass, with a finite difference estimate.
//
// The estimates for the different parameters are computed concurrently, each on its own copy of state.
func CheckParameters(net *network.Network, state *variables.State, step float64) ([]GradientCheck, error) {
	params := net.Parameters()
	analytical, err := net.Gradients(state, params...)
	if err != nil {
		return nil, err
	}
	checks := make([]GradientCheck, len(params))
	errs := make([]error, len(params))
	workerspool.New().ForEach(len(params), func(ii int) {
		p := params[ii]
		numerical, err := NetworkJacobian(net, state, p, step)
		if err != nil {
			errs[ii] = err
			return
		}
		checks[ii] = GradientCheck{
			Variable:    p,
			Analytical:  analytical[ii],
			Numerical:   numerical,
			MaxAbsError: MaxAbsDiff(analytical[ii], numerical),
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return checks, nil
}

// MaxAbsDiff returns the largest absolute difference between the elements of a and b, which must have
// the same dimensions.
func MaxAbsDiff(a, b mat.Matrix) float64 {
	rows, cols := a.Dims()
	var maxDiff float64
	for i := range rows {
		for j := range cols {
			maxDiff = math.Max(maxDiff, math.Abs(a.At(i, j)-b.At(i, j)))
		}
	}
	return maxDiff
}

func cloneData(v *mat.VecDense) []float64 {
	data := make([]float64, v.Len())
	for ii := range data {
		data[ii] = v.AtVec(ii)
	}
	return data
}
