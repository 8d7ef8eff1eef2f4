// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package netspec describes networks (and how to train them) in YAML, and compiles the description
// through a network.Builder.
//
// Example:
//
//	name: xor
//	layers:
//	  - {name: x, kind: input, size: 2}
//	  - {name: hidden, kind: fully_connected, inputs: [x], units: 4}
//	  - {name: act, kind: tanh, inputs: [hidden]}
//	  - {name: logits, kind: fully_connected, inputs: [act], units: 1}
//	  - {name: probs, kind: sigmoid, inputs: [logits], output: true}
//	training:
//	  loss: squared_error
//	  method: bfgs
//	  iterations: 200
//	  initializer: xavier_uniform
//	  data: {builtin: xor}
//
// Layers can only take as inputs the layers listed before them.
package netspec

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/janpfeifer/must"
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Spec is the description of a network and, optionally, of how to train it.
type Spec struct {
	Name     string      `yaml:"name" validate:"required"`
	Layers   []LayerSpec `yaml:"layers" validate:"required,min=1,dive"`
	Training *Training   `yaml:"training,omitempty" validate:"omitempty"`

	// baseDir is used to resolve relative data paths.
	baseDir string
}

// LayerSpec describes one layer. Which fields apply depends on the Kind.
type LayerSpec struct {
	// Name of the layer, used to refer to it in Inputs. It's also the name of the layer's output variable,
	// or of the bound input variable for input layers.
	Name string `yaml:"name" validate:"required"`

	Kind network.Kind `yaml:"kind" validate:"layerkind"`

	// Inputs lists the names of previously defined layers. Repetitions are allowed.
	Inputs []string `yaml:"inputs,omitempty" validate:"dive,required"`

	// Size of input layers.
	Size int `yaml:"size,omitempty" validate:"gte=0"`

	// Values of constant layers.
	Values []float64 `yaml:"values,omitempty"`

	// Units, WeightsName, BiasName and WithoutBias apply to fully-connected layers.
	Units       int    `yaml:"units,omitempty" validate:"gte=0"`
	WeightsName string `yaml:"weights,omitempty"`
	BiasName    string `yaml:"bias,omitempty"`
	WithoutBias bool   `yaml:"without_bias,omitempty"`

	// Threshold and Alpha apply to (leaky) rectified-linear layers.
	Threshold float64  `yaml:"threshold,omitempty"`
	Alpha     *float64 `yaml:"alpha,omitempty"`

	// Output marks the layer as the network output, instead of using a separate "output" layer.
	Output bool `yaml:"output,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	must.M(v.RegisterValidation("layerkind", func(fl validator.FieldLevel) bool {
		kind, ok := fl.Field().Interface().(network.Kind)
		return ok && kind.IsAKind()
	}))
	return v
}

// Parse a YAML description. Unknown fields are rejected.
func Parse(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	spec := &Spec{}
	if err := dec.Decode(spec); err != nil {
		return nil, errors.Wrap(err, "parsing network spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// ParseBytes parses a YAML description held in memory.
func ParseBytes(data []byte) (*Spec, error) {
	return Parse(bytes.NewReader(data))
}

// Load reads and parses the YAML file at filePath. Relative data paths in the training section are
// resolved with respect to the file's directory.
func Load(filePath string) (*Spec, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	if exists, err := fsutil.FileExists(filePath); err != nil {
		return nil, err
	} else if !exists {
		return nil, errors.Wrapf(os.ErrNotExist, "network spec %q", filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening network spec %q", filePath)
	}
	defer func() { _ = f.Close() }()
	spec, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "network spec %q", filePath)
	}
	spec.baseDir = filepath.Dir(filePath)
	return spec, nil
}

// Validate checks the struct constraints and the references between layers.
func (s *Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrapf(err, "invalid network spec %q", s.Name)
	}
	defined := make(map[string]bool, len(s.Layers))
	var numOutputs int
	for ii, layer := range s.Layers {
		if defined[layer.Name] {
			return errors.Errorf("network spec %q: layer #%d name %q is used more than once", s.Name, ii, layer.Name)
		}
		for _, input := range layer.Inputs {
			if !defined[input] {
				return errors.Errorf("network spec %q: layer %q input %q is not defined before it", s.Name, layer.Name, input)
			}
		}
		if err := layer.validateKind(); err != nil {
			return errors.WithMessagef(err, "network spec %q: layer %q", s.Name, layer.Name)
		}
		if layer.Output || layer.Kind == network.KindOutput {
			numOutputs++
		}
		defined[layer.Name] = true
	}
	if numOutputs != 1 {
		return errors.Errorf("network spec %q: wants exactly one output layer, got %d", s.Name, numOutputs)
	}
	if s.Training != nil {
		if err := s.Training.Data.validate(); err != nil {
			return errors.WithMessagef(err, "network spec %q", s.Name)
		}
	}
	return nil
}

// validateKind checks the fields required by the layer kind. Input sizes are checked by the Builder.
func (l *LayerSpec) validateKind() error {
	switch l.Kind {
	case network.KindInput:
		if l.Size <= 0 {
			return errors.Errorf("input layers need a positive size, got %d", l.Size)
		}
	case network.KindConstant:
		if len(l.Values) == 0 {
			return errors.New("constant layers need values")
		}
	case network.KindFullyConnected:
		if l.Units <= 0 {
			return errors.Errorf("fully_connected layers need a positive number of units, got %d", l.Units)
		}
	}
	if (l.Kind == network.KindInput || l.Kind == network.KindConstant) && len(l.Inputs) > 0 {
		return errors.Errorf("%s layers take no inputs", l.Kind)
	}
	if l.Kind != network.KindFullyConnected && (l.WeightsName != "" || l.BiasName != "" || l.WithoutBias) {
		return errors.Errorf("weights, bias and without_bias only apply to fully_connected layers, not %s", l.Kind)
	}
	return nil
}

// Marshal the spec back to YAML.
func (s *Spec) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	return data, errors.Wrap(err, "marshaling network spec")
}
