// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/layergraph/layergraph/pkg/ml/train"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/optimize"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each update of the progress bar, and it should return a name and the current value.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version, if the terminal supports its symbols.
var ProgressbarStyle = progressbar.ThemeASCII

// Output where the progress bar is drawn.
var Output io.Writer = os.Stdout

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "layergraph.ui.commandline.progressBar"

// maxUpdateFrequency is the minimum time between redraws of the stats table.
const maxUpdateFrequency = time.Millisecond * 200

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// progressBar holds a progressbar being displayed, and the table of stats drawn above it.
type progressBar struct {
	bar           *progressbar.ProgressBar
	termenv       *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool

	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup
	lastReported     int

	extraMetricFns []ExtraMetricFn
}

type progressBarUpdate struct {
	amount    int
	iteration int
	loss      float64
}

func (pBar *progressBar) onStart(loop *train.Loop) error {
	pBar.lastReported = 0
	pBar.isFirstOutput = true
	pBar.bar = progressbar.NewOptions(loop.MaxIterations,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iterations"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(Output),
	)
	pBar.updates = make(chan progressBarUpdate, 100)
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates(loop)
	return nil
}

func (pBar *progressBar) onStep(loop *train.Loop, loss float64) error {
	amount := loop.Iteration - pBar.lastReported
	if amount <= 0 {
		return nil
	}
	pBar.lastReported = loop.Iteration
	pBar.updates <- progressBarUpdate{amount: amount, iteration: loop.Iteration, loss: loss}
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ *optimize.Result) error {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	pBar.termenv.ShowCursor()
	_, _ = fmt.Fprintln(Output)
	return nil
}

// drawUpdates draws the updates asynchronously, so training is not slowed down by a slow terminal.
// Updates accumulated while drawing are merged.
func (pBar *progressBar) drawUpdates(loop *train.Loop) {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.statsTable.Row("Iteration", fmt.Sprintf("%s of %s",
			humanize.Comma(int64(update.iteration)), humanize.Comma(int64(loop.MaxIterations))))
		pBar.statsTable.Row("Median iteration duration", FormatDuration(loop.MedianStepDuration()))
		pBar.statsTable.Row("Loss", strconv.FormatFloat(update.loss, 'g', 6, 64))
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// Move back over the previous table (rows plus borders) and progress bar line.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			pBar.termenv.CursorPrevLine(3 + 2 + 2 + len(pBar.extraMetricFns))
		}
		pBar.isFirstOutput = false
		_, _ = fmt.Fprintln(Output, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount)
		_, _ = fmt.Fprintln(Output)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// AttachProgressBar creates a command-line progress bar and attaches it to the Loop, so that every
// time Loop is run, it displays the progression, the median iteration time and the current loss.
//
// Optionally, one can provide extraMetrics: functions called at every update of the progress bar,
// returning a name and a value to be included in the stats table.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	pBar := &progressBar{
		termenv:        termenv.NewOutput(Output),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		extraMetricFns: extraMetrics,
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	loop.OnStep(ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}
