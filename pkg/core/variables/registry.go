// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package variables

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Registry creates variables and assigns them ids and unique names.
//
// Each graph builder owns its own Registry, so independent graphs never collide: variables of
// different registries never compare equal, even if they share an id.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	id     uuid.UUID
	byID   []*Variable
	byName map[string]*Variable
}

// NewRegistry returns an empty Registry with a fresh identity.
func NewRegistry() *Registry {
	return &Registry{
		id:     uuid.New(),
		byName: make(map[string]*Variable),
	}
}

// ID returns the identity of the registry, shared by the Key of all its variables.
func (r *Registry) ID() uuid.UUID {
	return r.id
}

// Len returns the number of variables created so far.
func (r *Registry) Len() int {
	return len(r.byID)
}

// NewVector creates a vector variable. If name is empty, the decimal id is used.
func (r *Registry) NewVector(name string, size int) (*Variable, error) {
	return r.create(name, KindVector, size, 1, nil)
}

// NewMatrix creates a rows×cols matrix variable, stored flattened in column-major order.
// If name is empty, the decimal id is used.
func (r *Registry) NewMatrix(name string, rows, cols int) (*Variable, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "matrix variable %q with shape %dx%d", name, rows, cols)
	}
	return r.create(name, KindMatrix, rows, cols, nil)
}

// NewConstant creates a constant variable holding a copy of value.
func (r *Registry) NewConstant(name string, value []float64) (*Variable, error) {
	if len(value) == 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "constant variable %q with no values", name)
	}
	constant := mat.NewVecDense(len(value), append([]float64(nil), value...))
	return r.create(name, KindConstant, len(value), 1, constant)
}

// NewLayerOutput creates the output slot of a layer.
func (r *Registry) NewLayerOutput(name string, size int) (*Variable, error) {
	return r.create(name, KindLayerOutput, size, 1, nil)
}

func (r *Registry) create(name string, kind Kind, rows, cols int, constant *mat.VecDense) (*Variable, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "%s variable %q with size %d", kind, name, rows*cols)
	}
	id := len(r.byID)
	if name == "" {
		name = r.defaultName(id)
	} else if _, found := r.byName[name]; found {
		return nil, errors.Wrapf(ErrDuplicateName, "%q", name)
	}
	v := &Variable{
		key:      Key{Registry: r.id, ID: id},
		name:     name,
		kind:     kind,
		rows:     rows,
		cols:     cols,
		constant: constant,
	}
	r.byID = append(r.byID, v)
	r.byName[name] = v
	if klog.V(3).Enabled() {
		klog.Infof("variables: created %s (%s)", v, kind)
	}
	return v, nil
}

// defaultName is the decimal id, prefixed with "_" while it collides with an explicit name.
func (r *Registry) defaultName(id int) string {
	name := strconv.Itoa(id)
	for {
		if _, found := r.byName[name]; !found {
			return name
		}
		name = "_" + name
	}
}

// ByID returns the variable with the given id.
func (r *Registry) ByID(id int) (*Variable, bool) {
	if id < 0 || id >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// ByName returns the variable with the given name.
func (r *Registry) ByName(name string) (*Variable, bool) {
	v, found := r.byName[name]
	return v, found
}

// Owns returns whether v was created by this registry.
func (r *Registry) Owns(v *Variable) bool {
	return v != nil && v.key.Registry == r.id
}

// All returns the variables ordered by id. The returned slice can be modified freely.
func (r *Registry) All() []*Variable {
	all := make([]*Variable, len(r.byID))
	copy(all, r.byID)
	return all
}
