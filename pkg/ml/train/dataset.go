// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Example is one training example: a value for each input layer of the network (in the order of
// Network.InputVariables) and the expected output.
type Example struct {
	Inputs []*mat.VecDense
	Target *mat.VecDense
}

// Dataset is a named, in-memory list of examples.
type Dataset struct {
	Name     string
	Examples []Example
}

// NewDataset creates a dataset for networks with a single input layer, from rows of inputs and targets.
func NewDataset(name string, inputs, targets [][]float64) (*Dataset, error) {
	if len(inputs) != len(targets) {
		return nil, errors.Errorf("dataset %q: %d inputs but %d targets", name, len(inputs), len(targets))
	}
	ds := &Dataset{Name: name, Examples: make([]Example, len(inputs))}
	for ii := range inputs {
		if len(inputs[ii]) == 0 || len(targets[ii]) == 0 {
			return nil, errors.Errorf("dataset %q: example #%d is empty", name, ii)
		}
		ds.Examples[ii] = Example{
			Inputs: []*mat.VecDense{mat.NewVecDense(len(inputs[ii]), inputs[ii])},
			Target: mat.NewVecDense(len(targets[ii]), targets[ii]),
		}
	}
	return ds, nil
}

// XOR returns the four examples of the exclusive-or function, with targets 0 and 1.
func XOR() *Dataset {
	ds, err := NewDataset("xor",
		[][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		[][]float64{{0}, {1}, {1}, {0}})
	if err != nil {
		panic(err)
	}
	return ds
}

// Len returns the number of examples.
func (ds *Dataset) Len() int {
	return len(ds.Examples)
}

// Check verifies that every example fits the network: one input per input layer, with matching sizes,
// and a target of the size of the network output.
func (ds *Dataset) Check(net *network.Network) error {
	inputVars := net.InputVariables()
	for ii, example := range ds.Examples {
		if len(example.Inputs) != len(inputVars) {
			return errors.Errorf("dataset %q: example #%d has %d inputs, but the network has %d input layers",
				ds.Name, ii, len(example.Inputs), len(inputVars))
		}
		for jj, input := range example.Inputs {
			if input.Len() != inputVars[jj].Size() {
				return errors.Errorf("dataset %q: example #%d input #%d has size %d, but %s has size %d",
					ds.Name, ii, jj, input.Len(), inputVars[jj], inputVars[jj].Size())
			}
		}
		if example.Target.Len() != net.OutputSize() {
			return errors.Errorf("dataset %q: example #%d target has size %d, but the network output has size %d",
				ds.Name, ii, example.Target.Len(), net.OutputSize())
		}
	}
	return nil
}

// ReadCSV reads a dataset for a single-input network from CSV with a header line: the inputColumns are
// concatenated into the input vector and the targetColumns into the target. All of them must be numeric.
func ReadCSV(name string, r io.Reader, inputColumns, targetColumns []string) (*Dataset, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "reading CSV for dataset %q", name)
	}
	inputs, err := columnsToRows(df, inputColumns)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q inputs", name)
	}
	targets, err := columnsToRows(df, targetColumns)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q targets", name)
	}
	return NewDataset(name, inputs, targets)
}

// LoadCSV reads the CSV file at path, see ReadCSV.
func LoadCSV(path string, inputColumns, targetColumns []string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dataset %q", path)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(path, f, inputColumns, targetColumns)
}

func columnsToRows(df dataframe.DataFrame, columns []string) ([][]float64, error) {
	if len(columns) == 0 {
		return nil, errors.New("no columns selected")
	}
	selected := df.Select(columns)
	if selected.Err != nil {
		return nil, errors.Wrapf(selected.Err, "selecting columns %v", columns)
	}
	numRows, numCols := selected.Dims()
	rows := make([][]float64, numRows)
	for ii := range rows {
		rows[ii] = make([]float64, numCols)
	}
	for jj, name := range columns {
		col := selected.Col(name)
		if col.Type() != series.Float && col.Type() != series.Int {
			return nil, errors.Errorf("column %q is of type %s, not numeric", name, col.Type())
		}
		for ii, value := range col.Float() {
			rows[ii][jj] = value
		}
	}
	return rows, nil
}
