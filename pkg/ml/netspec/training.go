// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package netspec

import (
	"os"
	"path/filepath"

	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/ml/initializer"
	"github.com/layergraph/layergraph/pkg/ml/losses"
	"github.com/layergraph/layergraph/pkg/ml/train"
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Training describes how to train the network.
type Training struct {
	Loss        string `yaml:"loss" validate:"required,oneof=squared_error absolute_error binary_cross_entropy"`
	Method      string `yaml:"method" validate:"required,oneof=gd bfgs lbfgs"`
	Iterations  int    `yaml:"iterations" validate:"required,gt=0"`
	Initializer string `yaml:"initializer,omitempty"`
	Seed        uint64 `yaml:"seed,omitempty"`
	Data        Data   `yaml:"data"`
}

// Data selects the training dataset: either a built-in one, or a CSV file with a header line.
type Data struct {
	Builtin string   `yaml:"builtin,omitempty" validate:"omitempty,oneof=xor"`
	CSV     string   `yaml:"csv,omitempty"`
	Inputs  []string `yaml:"inputs,omitempty" validate:"required_with=CSV"`
	Targets []string `yaml:"targets,omitempty" validate:"required_with=CSV"`
}

func (d *Data) validate() error {
	if (d.Builtin == "") == (d.CSV == "") {
		return errors.New("training data needs exactly one of builtin or csv")
	}
	return nil
}

// DefaultInitializer is used when the training section doesn't name one.
const DefaultInitializer = "xavier_uniform"

// Trainer creates the trainer for the compiled network, from the training section of the spec.
func (s *Spec) Trainer(compiled *Compiled) (*train.Trainer, error) {
	if s.Training == nil {
		return nil, errors.Errorf("network spec %q has no training section", s.Name)
	}
	loss, err := losses.ByName(s.Training.Loss)
	if err != nil {
		return nil, err
	}
	method, err := train.MethodByName(s.Training.Method)
	if err != nil {
		return nil, err
	}
	ds, err := s.Dataset()
	if err != nil {
		return nil, err
	}
	return train.NewTrainer(compiled.Network, loss, ds, train.WithMethod(method))
}

// Dataset loads the training data.
func (s *Spec) Dataset() (*train.Dataset, error) {
	if s.Training == nil {
		return nil, errors.Errorf("network spec %q has no training section", s.Name)
	}
	data := s.Training.Data
	if data.Builtin == "xor" {
		return train.XOR(), nil
	}
	csvPath, err := fsutil.ReplaceTildeInDir(data.CSV)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(csvPath) && s.baseDir != "" {
		csvPath = filepath.Join(s.baseDir, csvPath)
	}
	if exists, err := fsutil.FileExists(csvPath); err != nil {
		return nil, err
	} else if !exists {
		return nil, errors.Wrapf(os.ErrNotExist, "training data of network spec %q", s.Name)
	}
	return train.LoadCSV(csvPath, data.Inputs, data.Targets)
}

// InitialState returns a state for the network, with the parameters set by the spec's initializer.
func (s *Spec) InitialState(net *network.Network) (*variables.State, error) {
	name, seed := DefaultInitializer, uint64(0)
	if s.Training != nil {
		seed = s.Training.Seed
		if s.Training.Initializer != "" {
			name = s.Training.Initializer
		}
	}
	init, err := initializer.ByName(name, initializer.NewRNG(seed))
	if err != nil {
		return nil, err
	}
	state := net.NewState()
	if err := initializer.Parameters(net, state, init); err != nil {
		return nil, err
	}
	return state, nil
}
