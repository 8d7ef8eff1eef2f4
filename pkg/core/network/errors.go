// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import "github.com/pkg/errors"

// Construction errors, returned eagerly by Builder.AddLayer and Builder.Build.
var (
	ErrDuplicateLayer       = errors.New("layer already added to the builder")
	ErrUnknownInputLayer    = errors.New("unknown input layer")
	ErrMultipleOutputLayers = errors.New("network already has an output layer")
	ErrMissingOutputLayer   = errors.New("network has no output layer")
	ErrOutputLayerConsumed  = errors.New("output layer cannot be the input of another layer")
	ErrOrphanLayer          = errors.New("layer output is never used")
	ErrInvalidLayer         = errors.New("invalid layer")
	ErrBuilderFinalized     = errors.New("builder already built its network")
)

// Evaluation and gradient errors.
var (
	// ErrUnknownVariable is returned for variables that don't belong to the network.
	ErrUnknownVariable = errors.New("variable doesn't belong to the network")

	// ErrGradientNotReady is returned when querying the gradient of a layer that hasn't yet received
	// the contributions of all its consumers in a backward pass.
	ErrGradientNotReady = errors.New("gradient not yet available")
)
