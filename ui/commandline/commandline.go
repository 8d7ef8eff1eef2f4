// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/ml/train"
	"github.com/layergraph/layergraph/pkg/support/numdiff"
)

// ReportLoss reports on w the total and mean loss of trainer's network on each of the datasets.
func ReportLoss(w io.Writer, trainer *train.Trainer, state *variables.State, datasets ...*train.Dataset) error {
	for _, ds := range datasets {
		dsTrainer, err := train.NewTrainer(trainer.Network(), trainer.LossFn(), ds)
		if err != nil {
			return err
		}
		loss, err := dsTrainer.Loss(state)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "Results on %s:\n", ds.Name)
		_, _ = fmt.Fprintf(w, "\ttotal loss: %g\n", loss)
		if ds.Len() > 0 {
			_, _ = fmt.Fprintf(w, "\tmean loss: %g\n", loss/float64(ds.Len()))
		}
	}
	return nil
}

// GradientChecksTable renders the comparison of analytical and numerical gradients as a table.
// Rows whose error is above tolerance are highlighted.
func GradientChecksTable(checks []numdiff.GradientCheck, tolerance float64) string {
	failedStyle := normalStyle.Foreground(lipgloss.Color("#E05050")).Bold(true)
	failed := make([]bool, len(checks))
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers("Variable", "Shape", "Max abs error", "Status").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row >= 0 && row < len(failed) && failed[row] {
				return failedStyle
			}
			if col == 2 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	for ii, check := range checks {
		rows, cols := check.Analytical.Dims()
		status := "ok"
		if check.MaxAbsError > tolerance {
			failed[ii] = true
			status = "FAILED"
		}
		table.Row(check.Variable.Name(), fmt.Sprintf("%dx%d", rows, cols),
			strconv.FormatFloat(check.MaxAbsError, 'e', 2, 64), status)
	}
	return table.String()
}
