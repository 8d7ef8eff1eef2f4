// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package netspec

import (
	_ "embed"
)

//go:embed xor.yaml
var xorSpec []byte

// XOR returns the spec of a small perceptron trained on the exclusive-or function.
func XOR() *Spec {
	spec, err := ParseBytes(xorSpec)
	if err != nil {
		panic(err)
	}
	return spec
}
