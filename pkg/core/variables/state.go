// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package variables

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// State binds variables to their current values for one evaluation episode.
//
// Inputs and parameters are bound with Set (or SetMatrix). Layer outputs are memoized by evaluation
// through StoreOutput, and are dropped whenever an input or parameter changes, so a memoized output
// never outlives the bindings it was computed from.
//
// A State is owned by one episode at a time and is not safe for concurrent use.
type State struct {
	entries map[Key]stateEntry
}

type stateEntry struct {
	variable *Variable
	value    *mat.VecDense
}

// NewState returns an empty State: every non-constant variable read before being set is an error.
func NewState() *State {
	return &State{entries: make(map[Key]stateEntry)}
}

// Len returns the number of bound variables, including memoized layer outputs.
func (s *State) Len() int {
	return len(s.entries)
}

// Has returns whether v has a value: always true for constants.
func (s *State) Has(v *Variable) bool {
	v.AssertValid()
	if v.kind == KindConstant {
		return true
	}
	_, found := s.entries[v.key]
	return found
}

// Get returns the value bound to v. Constants return their fixed value.
//
// The returned vector is owned by the State and must not be modified.
func (s *State) Get(v *Variable) (*mat.VecDense, error) {
	v.AssertValid()
	if v.kind == KindConstant {
		return v.constant, nil
	}
	entry, found := s.entries[v.key]
	if !found {
		return nil, errors.Wrapf(ErrUnboundVariable, "variable %s", v)
	}
	return entry.value, nil
}

// Set binds a copy of value to v.
//
// It fails for constants and layer outputs, and when the size of value differs from v.Size().
// Setting any variable drops all memoized layer outputs.
func (s *State) Set(v *Variable, value mat.Vector) error {
	v.AssertValid()
	switch v.kind {
	case KindConstant:
		return errors.Wrapf(ErrConstantVariable, "variable %s", v)
	case KindLayerOutput:
		return errors.Wrapf(ErrLayerOutputVariable, "variable %s", v)
	}
	if value == nil || value.Len() != v.Size() {
		return errors.Wrapf(ErrSizeMismatch, "setting variable %s to a value of size %d", v, vectorLen(value))
	}
	s.ClearOutputs()
	s.entries[v.key] = stateEntry{variable: v, value: mat.VecDenseCopyOf(value)}
	return nil
}

// SetValues is a convenience wrapper around Set that takes the raw values.
func (s *State) SetValues(v *Variable, values ...float64) error {
	if len(values) == 0 {
		return errors.Wrapf(ErrSizeMismatch, "setting variable %s to an empty value", v)
	}
	return s.Set(v, mat.NewVecDense(len(values), values))
}

// SetMatrix binds a matrix variable, flattening m in column-major order.
func (s *State) SetMatrix(v *Variable, m mat.Matrix) error {
	v.AssertValid()
	if v.kind != KindMatrix {
		return errors.Wrapf(ErrNotMatrix, "variable %s", v)
	}
	rows, cols := m.Dims()
	if rows != v.rows || cols != v.cols {
		return errors.Wrapf(ErrSizeMismatch, "setting matrix variable %s to a %dx%d matrix", v, rows, cols)
	}
	flat := mat.NewVecDense(rows*cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			flat.SetVec(i+j*rows, m.At(i, j))
		}
	}
	return s.Set(v, flat)
}

// GetMatrix returns the value of a matrix variable as a newly allocated rows×cols matrix.
func (s *State) GetMatrix(v *Variable) (*mat.Dense, error) {
	v.AssertValid()
	if v.kind != KindMatrix {
		return nil, errors.Wrapf(ErrNotMatrix, "variable %s", v)
	}
	flat, err := s.Get(v)
	if err != nil {
		return nil, err
	}
	m := mat.NewDense(v.rows, v.cols, nil)
	for j := 0; j < v.cols; j++ {
		for i := 0; i < v.rows; i++ {
			m.Set(i, j, flat.AtVec(i+j*v.rows))
		}
	}
	return m, nil
}

// StoreOutput memoizes the value of a layer output variable. It's used by the network evaluation,
// and value is stored without copying.
func (s *State) StoreOutput(v *Variable, value *mat.VecDense) error {
	v.AssertValid()
	if v.kind != KindLayerOutput {
		return errors.Errorf("StoreOutput(%s): variable is of kind %s, not a layer output", v, v.kind)
	}
	if value.Len() != v.Size() {
		return errors.Wrapf(ErrSizeMismatch, "storing output %s with a value of size %d", v, value.Len())
	}
	s.entries[v.key] = stateEntry{variable: v, value: value}
	return nil
}

// ClearOutputs drops all memoized layer outputs.
func (s *State) ClearOutputs() {
	for key, entry := range s.entries {
		if entry.variable.kind == KindLayerOutput {
			delete(s.entries, key)
		}
	}
}

// Clone returns an independent copy of the state. Values are deep-copied.
func (s *State) Clone() *State {
	clone := &State{entries: make(map[Key]stateEntry, len(s.entries))}
	for key, entry := range s.entries {
		clone.entries[key] = stateEntry{variable: entry.variable, value: mat.VecDenseCopyOf(entry.value)}
	}
	return clone
}

// Variables returns the bound variables ordered by registry and id.
func (s *State) Variables() []*Variable {
	vars := make([]*Variable, 0, len(s.entries))
	for _, entry := range s.entries {
		vars = append(vars, entry.variable)
	}
	slices.SortFunc(vars, func(a, b *Variable) int {
		if c := slices.Compare(a.key.Registry[:], b.key.Registry[:]); c != 0 {
			return c
		}
		return a.key.ID - b.key.ID
	})
	return vars
}

func vectorLen(v mat.Vector) int {
	if v == nil {
		return 0
	}
	return v.Len()
}
