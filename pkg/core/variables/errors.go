// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package variables

import "github.com/pkg/errors"

// Errors returned by Registry and State. They are wrapped with context, use errors.Is to test for them.
var (
	// ErrInvalidSize is returned when creating a variable with a non-positive size.
	ErrInvalidSize = errors.New("invalid variable size")

	// ErrDuplicateName is returned when a variable name is already taken in the registry.
	ErrDuplicateName = errors.New("duplicate variable name")

	// ErrUnboundVariable is returned when reading a variable that has no value in the State.
	ErrUnboundVariable = errors.New("unbound variable")

	// ErrSizeMismatch is returned when a value's size disagrees with the variable's declared size.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrConstantVariable is returned when trying to set the value of a constant variable.
	ErrConstantVariable = errors.New("constant variable cannot be set")

	// ErrLayerOutputVariable is returned when trying to set a layer output variable directly: those
	// are only written by evaluation.
	ErrLayerOutputVariable = errors.New("layer output variable cannot be set")

	// ErrNotMatrix is returned when accessing a non-matrix variable in matrix form.
	ErrNotMatrix = errors.New("variable is not a matrix")
)
