// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

// LayerOption configures how a layer is added to a Builder.
type LayerOption func(opts *layerOptions)

type layerOptions struct {
	output      bool
	name        string
	withoutBias bool
	weightsName string
	biasName    string
}

func (opts *layerOptions) fullyConnectedOnly() bool {
	return opts.withoutBias || opts.weightsName != "" || opts.biasName != ""
}

// AsOutput designates the layer as the output of the network. There can only be one.
func AsOutput() LayerOption {
	return func(opts *layerOptions) { opts.output = true }
}

// Named sets the name of the layer's output variable. By default, it gets the variable's id as name.
func Named(name string) LayerOption {
	return func(opts *layerOptions) { opts.name = name }
}

// WithoutBias removes the bias term of a fully-connected layer.
func WithoutBias() LayerOption {
	return func(opts *layerOptions) { opts.withoutBias = true }
}

// WeightsName sets the name of the weights variable of a fully-connected layer.
func WeightsName(name string) LayerOption {
	return func(opts *layerOptions) { opts.weightsName = name }
}

// BiasName sets the name of the bias variable of a fully-connected layer.
func BiasName(name string) LayerOption {
	return func(opts *layerOptions) { opts.biasName = name }
}
