// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

// Kind enumerates the closed set of layer kinds.
//
// It is converted to snake-format strings (e.g.: KindFullyConnected -> "fully_connected"), and can be
// converted back with KindString.
type Kind int

const (
	KindInput Kind = iota
	KindConstant
	KindFullyConnected
	KindSigmoid
	KindTanh
	KindRectifiedLinear
	KindLeakyRectifiedLinear
	KindAddition
	KindSubtraction
	KindElementwiseMultiplication
	KindOutput
)

//go:generate go tool enumer -type=Kind -trimprefix=Kind -transform=snake -values -text kind.go

// IsActivation returns whether the kind is an elementwise activation of a single input.
func (i Kind) IsActivation() bool {
	switch i {
	case KindSigmoid, KindTanh, KindRectifiedLinear, KindLeakyRectifiedLinear:
		return true
	default:
		return false
	}
}

// IsCombination returns whether the kind combines several inputs of the same size elementwise.
func (i Kind) IsCombination() bool {
	switch i {
	case KindAddition, KindSubtraction, KindElementwiseMultiplication:
		return true
	default:
		return false
	}
}
