// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	summaryHeaderStyle  = lipgloss.NewStyle().Reverse(true).Padding(0, 2, 0, 2).Align(lipgloss.Center)
	summaryOddRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).PaddingLeft(1).PaddingRight(1)
	summaryEvenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).PaddingLeft(1).PaddingRight(1)
)

// Summary renders a table with one row per layer, in topological order, followed by the totals.
func (n *Network) Summary() string {
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return summaryHeaderStyle
			}
			s := summaryEvenRowStyle
			if row%2 == 0 {
				s = summaryOddRowStyle
			}
			if col == 0 || col == 4 || col == 5 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		}).
		Headers("#", "Kind", "Output", "Inputs", "Size", "# Params")
	for _, idx := range n.order {
		layer := n.layers[idx]
		inputs := make([]string, len(layer.base().inputs))
		for ii, input := range layer.base().inputs {
			inputs[ii] = fmt.Sprintf("#%d", input.index)
		}
		var numParams int
		for _, p := range layer.Parameters() {
			numParams += p.Size()
		}
		kind := layer.Kind().String()
		if idx == n.outputIdx && layer.Kind() != KindOutput {
			kind += " (output)"
		}
		table.Row(
			fmt.Sprintf("%d", idx),
			kind,
			layer.OutputVariable().Name(),
			strings.Join(inputs, ", "),
			humanize.Comma(int64(layer.OutputSize())),
			humanize.Comma(int64(numParams)),
		)
	}
	totals := fmt.Sprintf("%s layers, %s variables, %s parameter variables with %s values",
		humanize.Comma(int64(len(n.layers))), humanize.Comma(int64(n.registry.Len())),
		humanize.Comma(int64(len(n.parameters))), humanize.Comma(int64(n.NumParameters())))
	return table.Render() + "\n" + totals
}
