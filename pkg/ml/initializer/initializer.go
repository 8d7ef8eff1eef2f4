// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer provides functions to set the initial values of network parameters.
package initializer

import (
	"maps"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"k8s.io/klog/v2"
)

// Initializer returns the initial value of a variable, a vector of size v.Size(). For matrix variables
// the value is flattened in column-major order.
type Initializer func(v *variables.Variable) *mat.VecDense

// NewRNG returns a deterministic random number generator for the given seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

var (
	// Zero initializes variables with zero.
	Zero Initializer = func(v *variables.Variable) *mat.VecDense {
		return mat.NewVecDense(v.Size(), nil)
	}

	// One initializes variables with one.
	One Initializer = func(v *variables.Variable) *mat.VecDense {
		return sample(v.Size(), func() float64 { return 1 })
	}
)

func sample(size int, fn func() float64) *mat.VecDense {
	values := make([]float64, size)
	for ii := range values {
		values[ii] = fn()
	}
	return mat.NewVecDense(size, values)
}

// Normal returns an initializer that samples from a normal distribution with mean 0 and the given
// standard deviation.
func Normal(rng *rand.Rand, stddev float64) Initializer {
	dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: rng}
	return func(v *variables.Variable) *mat.VecDense {
		return sample(v.Size(), dist.Rand)
	}
}

// Uniform returns an initializer that samples uniformly from [minValue, maxValue).
func Uniform(rng *rand.Rand, minValue, maxValue float64) Initializer {
	dist := distuv.Uniform{Min: minValue, Max: maxValue, Src: rng}
	return func(v *variables.Variable) *mat.VecDense {
		return sample(v.Size(), dist.Rand)
	}
}

// fanInFanOut of a variable. Matrices are weights of a fully-connected layer, with shape
// units×inputSize. Anything else is taken as a bias, and has no fan.
func fanInFanOut(v *variables.Variable) (fanIn, fanOut int, isWeight bool) {
	if v.Kind() != variables.KindMatrix {
		return 0, 0, false
	}
	return v.Cols(), v.Rows(), true
}

// GlorotUniform returns a Glorot uniform initializer, sampling weights from `[-limit, limit]` where
// `limit = sqrt(3 / ((fanIn + fanOut)/2))`.
//
// It initializes biases (anything not a matrix) to zeros.
func GlorotUniform(rng *rand.Rand) Initializer {
	return fanScaled(func(fanIn, fanOut int) Initializer {
		limit := math.Sqrt(3.0 / max(1.0, float64(fanIn+fanOut)/2.0))
		return Uniform(rng, -limit, limit)
	})
}

// XavierUniform returns an initializer sampling weights uniformly from +/- sqrt(6 / (fanIn+fanOut)).
//
// It initializes biases to zeros.
func XavierUniform(rng *rand.Rand) Initializer {
	return fanScaled(func(fanIn, fanOut int) Initializer {
		limit := math.Sqrt(6.0 / max(1.0, float64(fanIn+fanOut)))
		return Uniform(rng, -limit, limit)
	})
}

// XavierNormal returns an initializer sampling weights from a normal distribution with mean 0 and
// stddev sqrt(2 / (fanIn+fanOut)).
//
// It initializes biases to zeros.
func XavierNormal(rng *rand.Rand) Initializer {
	return fanScaled(func(fanIn, fanOut int) Initializer {
		return Normal(rng, math.Sqrt(2.0/max(1.0, float64(fanIn+fanOut))))
	})
}

// He returns the initializer that tries to preserve a variance of 1 across rectified-linear
// activations: weights are sampled from a normal distribution with stddev sqrt(2 / fanIn).
//
// It initializes biases to zeros.
//
// [1] https://arxiv.org/pdf/1502.01852
func He(rng *rand.Rand) Initializer {
	return fanScaled(func(fanIn, _ int) Initializer {
		return Normal(rng, math.Sqrt(2.0/max(1.0, float64(fanIn))))
	})
}

func fanScaled(forWeights func(fanIn, fanOut int) Initializer) Initializer {
	return func(v *variables.Variable) *mat.VecDense {
		fanIn, fanOut, isWeight := fanInFanOut(v)
		if !isWeight {
			return Zero(v)
		}
		return forWeights(fanIn, fanOut)(v)
	}
}

// Parameters sets every parameter of the network in state to a value drawn from init.
func Parameters(net *network.Network, state *variables.State, init Initializer) error {
	for _, p := range net.Parameters() {
		value := init(p)
		if err := state.Set(p, value); err != nil {
			return errors.WithMessagef(err, "initializing parameter %s", p)
		}
	}
	if klog.V(1).Enabled() {
		klog.Infof("initializer: initialized %d parameters (%d values)", len(net.Parameters()), net.NumParameters())
	}
	return nil
}

// byName maps the names accepted by ByName to initializer constructors.
var byName = map[string]func(rng *rand.Rand) Initializer{
	"zero":           func(*rand.Rand) Initializer { return Zero },
	"one":            func(*rand.Rand) Initializer { return One },
	"normal":         func(rng *rand.Rand) Initializer { return Normal(rng, 1) },
	"uniform":        func(rng *rand.Rand) Initializer { return Uniform(rng, -1, 1) },
	"glorot_uniform": GlorotUniform,
	"xavier_uniform": XavierUniform,
	"xavier_normal":  XavierNormal,
	"he":             He,
}

// Names of the initializers accepted by ByName, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(byName))
}

// ByName returns the initializer with the given name, using rng for the random ones.
// "normal" has stddev 1 and "uniform" samples from [-1, 1).
func ByName(name string, rng *rand.Rand) (Initializer, error) {
	newFn, found := byName[name]
	if !found {
		return nil, errors.Errorf("unknown initializer %q, valid values are: %s", name, strings.Join(Names(), ", "))
	}
	return newFn(rng), nil
}
