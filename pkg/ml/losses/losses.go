// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package losses has standard losses comparing a network output with a target. They all implement
// LossFn, used by train.Objective.
package losses

import (
	"cmp"
	"math"
	"strings"

	"github.com/layergraph/layergraph/pkg/support/sets"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LossFn returns the loss of one example and its gradient with respect to the output.
//
// output and target must have the same size.
type LossFn func(output, target mat.Vector) (loss float64, gradient *mat.VecDense)

// Epsilon keeps the arguments of logarithms away from zero.
const Epsilon = 1e-12

func vectorData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for ii := range data {
		data[ii] = v.AtVec(ii)
	}
	return data
}

func checkSizes(output, target mat.Vector) {
	if output.Len() != target.Len() {
		panic(errors.Errorf("losses: output has size %d, but target has size %d", output.Len(), target.Len()))
	}
}

// SquaredError returns ½‖output - target‖², whose gradient is output - target.
func SquaredError(output, target mat.Vector) (float64, *mat.VecDense) {
	checkSizes(output, target)
	diff := vectorData(output)
	floats.Sub(diff, vectorData(target))
	return 0.5 * floats.Dot(diff, diff), mat.NewVecDense(len(diff), diff)
}

// AbsoluteError returns ‖output - target‖₁. Its gradient is taken as 0 where output == target.
func AbsoluteError(output, target mat.Vector) (float64, *mat.VecDense) {
	checkSizes(output, target)
	diff := vectorData(output)
	floats.Sub(diff, vectorData(target))
	loss := floats.Norm(diff, 1)
	for ii, d := range diff {
		switch {
		case d > 0:
			diff[ii] = 1
		case d < 0:
			diff[ii] = -1
		default:
			diff[ii] = 0
		}
	}
	return loss, mat.NewVecDense(len(diff), diff)
}

// BinaryCrossEntropy returns -Σ t·log(y) + (1-t)·log(1-y), where y is the output, expected to be a
// probability (e.g. the output of a sigmoid), and t the target in [0, 1].
//
// The output is clipped to [Epsilon, 1-Epsilon].
func BinaryCrossEntropy(output, target mat.Vector) (float64, *mat.VecDense) {
	checkSizes(output, target)
	y, t := vectorData(output), vectorData(target)
	gradient := make([]float64, len(y))
	var loss float64
	for ii := range y {
		p := min(max(y[ii], Epsilon), 1-Epsilon)
		loss -= t[ii]*math.Log(p) + (1-t[ii])*math.Log(1-p)
		gradient[ii] = (p - t[ii]) / (p * (1 - p))
	}
	return loss, mat.NewVecDense(len(gradient), gradient)
}

var byName = map[string]LossFn{
	"squared_error":        SquaredError,
	"absolute_error":       AbsoluteError,
	"binary_cross_entropy": BinaryCrossEntropy,
}

// Names of the losses accepted by ByName, sorted.
func Names() []string {
	names := sets.Make[string](len(byName))
	for name := range byName {
		names.Insert(name)
	}
	return names.Sorted(cmp.Compare[string])
}

// ByName returns the loss with the given name, see Names.
func ByName(name string) (LossFn, error) {
	fn, found := byName[name]
	if !found {
		return nil, errors.Errorf("unknown loss %q, valid losses are: %s", name, strings.Join(Names(), ", "))
	}
	return fn, nil
}
