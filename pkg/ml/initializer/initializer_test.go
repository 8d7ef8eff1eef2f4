// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package initializer

import (
	"math"
	"slices"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestInitializers(t *testing.T) {
	r := variables.NewRegistry()
	weights := must.M1(r.NewMatrix("w", 40, 60))
	bias := must.M1(r.NewVector("b", 40))

	assert.Equal(t, make([]float64, 40), Zero(bias).RawVector().Data)
	for _, value := range One(weights).RawVector().Data {
		require.Equal(t, 1.0, value)
	}

	limit := math.Sqrt(6.0 / 100.0)
	for name, init := range map[string]Initializer{
		"GlorotUniform": GlorotUniform(NewRNG(1)),
		"XavierUniform": XavierUniform(NewRNG(1)),
		"XavierNormal":  XavierNormal(NewRNG(1)),
		"He":            He(NewRNG(1)),
	} {
		t.Run(name, func(t *testing.T) {
			values := init(weights).RawVector().Data
			require.Len(t, values, 40*60)
			assert.InDelta(t, 0.0, stat.Mean(values, nil), 0.05)
			assert.NotZero(t, stat.StdDev(values, nil))
			assert.Equal(t, make([]float64, 40), init(bias).RawVector().Data, "biases start at zero")
		})
	}

	values := XavierUniform(NewRNG(7))(weights).RawVector().Data
	for _, value := range values {
		require.LessOrEqual(t, math.Abs(value), limit)
	}
	heStddev := stat.StdDev(He(NewRNG(3))(weights).RawVector().Data, nil)
	assert.InDelta(t, math.Sqrt(2.0/60.0), heStddev, 0.02)

	uniform := Uniform(NewRNG(5), 2, 3)(bias).RawVector().Data
	for _, value := range uniform {
		require.True(t, value >= 2 && value < 3)
	}

	// Same seed, same values.
	assert.Equal(t, Normal(NewRNG(11), 1)(weights).RawVector().Data, Normal(NewRNG(11), 1)(weights).RawVector().Data)
}

func TestParameters(t *testing.T) {
	b := network.NewBuilder()
	x := must.M1(b.AddInputLayer(3, "x"))
	fc := must.M1(b.AddFullyConnectedLayer(x, 2, network.WeightsName("w"), network.BiasName("b")))
	_ = must.M1(b.AddOutputLayer(fc))
	net := must.M1(b.Build())
	state := net.NewState()
	require.NoError(t, Parameters(net, state, One))
	w, _ := net.Variable("w")
	values := must.M1(state.Get(w))
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, values.RawVector().Data)
}

func TestByName(t *testing.T) {
	assert.Contains(t, Names(), "xavier_uniform")
	assert.True(t, slices.IsSorted(Names()))
	for _, name := range Names() {
		init, err := ByName(name, NewRNG(1))
		require.NoError(t, err, name)
		require.NotNil(t, init, name)
	}
	_, err := ByName("orthogonal", NewRNG(1))
	require.Error(t, err)
}
