// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package variables implements the addressable value slots of a layer graph: Variable, the Registry
// that creates them and the State that binds them to values for one evaluation episode.
//
// Values are vectors (gonum *mat.VecDense). Matrix variables are stored flattened in column-major
// order, so element (i, j) of a rows×cols matrix variable is at index i + j*rows.
package variables

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Kind of Variable.
type Kind int

const (
	// KindVector is a plain vector slot, whose value is supplied through a State.
	KindVector Kind = iota

	// KindMatrix is a matrix slot, stored flattened in column-major order.
	KindMatrix

	// KindConstant has its value fixed at construction, it is never read from a State.
	KindConstant

	// KindLayerOutput is the output slot of a layer, written only by evaluation.
	KindLayerOutput
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindMatrix:
		return "matrix"
	case KindConstant:
		return "constant"
	case KindLayerOutput:
		return "layer_output"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Key uniquely identifies a variable across registries. It is comparable and used to index maps.
type Key struct {
	Registry uuid.UUID
	ID       int
}

// Variable is an addressable, sized value slot. It is immutable once created by a Registry.
//
// Equality is by registry and id (see Equal), not by name.
type Variable struct {
	key        Key
	name       string
	kind       Kind
	rows, cols int

	// constant value, only set for KindConstant.
	constant *mat.VecDense
}

// AssertValid panics if the variable is nil.
func (v *Variable) AssertValid() {
	if v == nil {
		exceptions.Panicf("variables.Variable is nil")
	}
}

// ID of the variable, unique within its Registry.
func (v *Variable) ID() int {
	v.AssertValid()
	return v.key.ID
}

// Key returns the comparable key of the variable.
func (v *Variable) Key() Key {
	v.AssertValid()
	return v.key
}

// Name of the variable, unique within its Registry. It defaults to the decimal id.
func (v *Variable) Name() string {
	v.AssertValid()
	return v.name
}

// Kind of the variable.
func (v *Variable) Kind() Kind {
	v.AssertValid()
	return v.kind
}

// Size is the number of elements of the variable's value.
func (v *Variable) Size() int {
	v.AssertValid()
	return v.rows * v.cols
}

// Rows of a matrix variable. For other kinds it is the same as Size.
func (v *Variable) Rows() int {
	v.AssertValid()
	return v.rows
}

// Cols of a matrix variable. For other kinds it is 1.
func (v *Variable) Cols() int {
	v.AssertValid()
	return v.cols
}

// IsConstant returns whether the variable has a fixed value.
func (v *Variable) IsConstant() bool {
	return v.Kind() == KindConstant
}

// IsLayerOutput returns whether the variable is the output slot of a layer.
func (v *Variable) IsLayerOutput() bool {
	return v.Kind() == KindLayerOutput
}

// ConstantValue returns a copy of the fixed value of a constant variable, or nil for other kinds.
func (v *Variable) ConstantValue() *mat.VecDense {
	v.AssertValid()
	if v.constant == nil {
		return nil
	}
	return mat.VecDenseCopyOf(v.constant)
}

// Equal returns whether v and other refer to the same variable: same registry and same id.
func (v *Variable) Equal(other *Variable) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.key == other.key
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v == nil {
		return "INVALID (NIL) VARIABLE"
	}
	if v.kind == KindMatrix {
		return fmt.Sprintf("%s#%d[%dx%d]", v.name, v.key.ID, v.rows, v.cols)
	}
	return fmt.Sprintf("%s#%d[%d]", v.name, v.key.ID, v.rows)
}
