// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package netspec

import (
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Compiled is the network built from a Spec, with the handles of its layers by name.
type Compiled struct {
	Network *network.Network
	Handles map[string]network.LayerHandle
}

// InputSuffix is appended to the name of input layers to name their output variable, since the layer name
// itself names the bound input variable.
const InputSuffix = "/value"

// Compile builds the network described by the spec.
func (s *Spec) Compile() (*Compiled, error) {
	b := network.NewBuilder()
	handles := make(map[string]network.LayerHandle, len(s.Layers))
	for _, layerSpec := range s.Layers {
		inputs := xslices.Map(layerSpec.Inputs, func(name string) network.LayerHandle { return handles[name] })
		handle, err := b.AddLayer(layerSpec.newLayer(inputs), layerSpec.options()...)
		if err != nil {
			return nil, errors.WithMessagef(err, "network spec %q: adding layer %q", s.Name, layerSpec.Name)
		}
		handles[layerSpec.Name] = handle
	}
	net, err := b.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "network spec %q", s.Name)
	}
	klog.V(1).Infof("netspec: compiled %q into %d layers and %d parameter values", s.Name, net.NumLayers(), net.NumParameters())
	return &Compiled{Network: net, Handles: handles}, nil
}

// newLayer creates the unattached layer described by l. Layers of the wrong arity are returned as is, the
// Builder reports them.
func (l *LayerSpec) newLayer(inputs []network.LayerHandle) network.Layer {
	first := func() network.LayerHandle {
		if len(inputs) == 0 {
			return network.LayerHandle{}
		}
		return inputs[0]
	}
	switch l.Kind {
	case network.KindInput:
		return network.Input(l.Size, l.Name)
	case network.KindConstant:
		return network.Constant(l.Values...)
	case network.KindFullyConnected:
		return network.FullyConnected(first(), l.Units)
	case network.KindSigmoid:
		return network.Sigmoid(first())
	case network.KindTanh:
		return network.Tanh(first())
	case network.KindRectifiedLinear:
		return network.RectifiedLinear(first(), l.Threshold)
	case network.KindLeakyRectifiedLinear:
		alpha := network.DefaultLeakyAlpha
		if l.Alpha != nil {
			alpha = *l.Alpha
		}
		return network.LeakyRectifiedLinear(first(), l.Threshold, alpha)
	case network.KindAddition:
		return network.Addition(inputs...)
	case network.KindSubtraction:
		if len(inputs) != 2 {
			return network.Subtraction(first(), network.LayerHandle{})
		}
		return network.Subtraction(inputs[0], inputs[1])
	case network.KindElementwiseMultiplication:
		return network.ElementwiseMultiplication(inputs...)
	case network.KindOutput:
		return network.Output(first())
	}
	return nil
}

func (l *LayerSpec) options() []network.LayerOption {
	var opts []network.LayerOption
	if l.Kind == network.KindInput {
		opts = append(opts, network.Named(l.Name+InputSuffix))
	} else {
		opts = append(opts, network.Named(l.Name))
	}
	if l.Output && l.Kind != network.KindOutput {
		opts = append(opts, network.AsOutput())
	}
	if l.Kind == network.KindFullyConnected {
		weightsName, biasName := l.WeightsName, l.BiasName
		if weightsName == "" {
			weightsName = l.Name + "/weights"
		}
		if biasName == "" {
			biasName = l.Name + "/bias"
		}
		opts = append(opts, network.WeightsName(weightsName))
		if l.WithoutBias {
			opts = append(opts, network.WithoutBias())
		} else {
			opts = append(opts, network.BiasName(biasName))
		}
	}
	return opts
}
