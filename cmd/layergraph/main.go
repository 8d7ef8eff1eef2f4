// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// layergraph builds a network from a YAML description, checks its gradients against finite differences
// and trains it with one of gonum's optimizers.
//
// Without -spec it uses the built-in exclusive-or perceptron, whose hidden layers can be changed
// with -hidden. Example:
//
//	layergraph -hidden=8,4 -method=lbfgs -iterations=500 -plot=~/tmp/xor_loss.svg
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/janpfeifer/must"
	"github.com/layergraph/layergraph/pkg/core/network"
	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/layergraph/layergraph/pkg/ml/netspec"
	"github.com/layergraph/layergraph/pkg/ml/train"
	"github.com/layergraph/layergraph/pkg/support/fsutil"
	"github.com/layergraph/layergraph/pkg/support/numdiff"
	"github.com/layergraph/layergraph/pkg/support/xslices"
	"github.com/layergraph/layergraph/ui/commandline"
	"github.com/layergraph/layergraph/ui/plots"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		klog.Fatalf("layergraph: %+v", err)
	}
}

// config holds the parsed command-line flags.
type config struct {
	specPath       string
	hidden         []int
	printSpec      bool
	summary        bool
	check          bool
	checkStep      float64
	checkTolerance float64
	train          bool
	progress       bool
	predict        bool
	method         string
	initializer    string
	iterations     int
	seed           int64
	plotPath       string
	pointsPath     string
	plotWidth      int
	plotHeight     int
}

func parseFlags(args []string, output io.Writer) (*config, error) {
	fs := flag.NewFlagSet("layergraph", flag.ContinueOnError)
	fs.SetOutput(output)
	klog.InitFlags(fs)
	cfg := &config{}
	fs.StringVar(&cfg.specPath, "spec", "", "YAML file describing the network and its training. "+
		"If empty, the built-in exclusive-or perceptron is used.")
	hidden := xslices.FlagSet(fs, "hidden", nil,
		"Comma-separated sizes of the hidden layers of the built-in exclusive-or perceptron.", strconv.Atoi)
	fs.BoolVar(&cfg.printSpec, "print_spec", false, "Print the YAML description of the network.")
	fs.BoolVar(&cfg.summary, "summary", true, "Print a summary of the network layers.")
	fs.BoolVar(&cfg.check, "check", false, "Compare the gradients of the network output with respect to "+
		"each parameter with finite differences, after training.")
	fs.Float64Var(&cfg.checkStep, "check_step", 1e-6, "Finite difference step used by -check.")
	fs.Float64Var(&cfg.checkTolerance, "check_tolerance", 1e-5, "Largest absolute error accepted by -check.")
	fs.BoolVar(&cfg.train, "train", true, "Train the network with the training section of the description.")
	fs.BoolVar(&cfg.progress, "progress", true, "Display a progress bar while training.")
	fs.BoolVar(&cfg.predict, "predict", true, "Print the network output for each training example.")
	fs.StringVar(&cfg.method, "method", "", fmt.Sprintf("Overrides the optimization method: %q, %q or %q.",
		train.MethodGradientDescent, train.MethodBFGS, train.MethodLBFGS))
	fs.StringVar(&cfg.initializer, "initializer", "", "Overrides the parameters initializer.")
	fs.IntVar(&cfg.iterations, "iterations", 0, "Overrides the maximum number of training iterations.")
	fs.Int64Var(&cfg.seed, "seed", -1, "Overrides the seed of the parameters initializer, if >= 0.")
	fs.StringVar(&cfg.plotPath, "plot", "", "Plot the training loss to this file: \".svg\" files are "+
		"drawn with margaid, other extensions (\".png\", \".pdf\", ...) with gonum/plot.")
	fs.IntVar(&cfg.plotWidth, "plot_width", 1024, "Width of the -plot image, in pixels.")
	fs.IntVar(&cfg.plotHeight, "plot_height", 400, "Height of the -plot image, in pixels.")
	fs.StringVar(&cfg.pointsPath, "points", "", "Append the training loss points, as JSON lines, to this file.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments %q", fs.Args())
	}
	cfg.hidden = *hidden
	return cfg, nil
}

// loadSpec loads the network description and applies the command-line overrides.
func (cfg *config) loadSpec() (*netspec.Spec, error) {
	var spec *netspec.Spec
	if cfg.specPath == "" {
		spec = netspec.XOR()
		if len(cfg.hidden) > 0 {
			spec.Layers = xorLayers(cfg.hidden)
		}
	} else {
		if len(cfg.hidden) > 0 {
			return nil, errors.New("-hidden only applies to the built-in network, not to -spec")
		}
		var err error
		spec, err = netspec.Load(cfg.specPath)
		if err != nil {
			return nil, err
		}
	}
	if spec.Training != nil {
		if cfg.method != "" {
			spec.Training.Method = cfg.method
		}
		if cfg.initializer != "" {
			spec.Training.Initializer = cfg.initializer
		}
		if cfg.iterations > 0 {
			spec.Training.Iterations = cfg.iterations
		}
		if cfg.seed >= 0 {
			spec.Training.Seed = uint64(cfg.seed)
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// xorLayers returns the layers of the exclusive-or perceptron with the given hidden layer sizes.
func xorLayers(hidden []int) []netspec.LayerSpec {
	layers := []netspec.LayerSpec{{Name: "x", Kind: network.KindInput, Size: 2}}
	previous := "x"
	for ii, units := range hidden {
		name := fmt.Sprintf("hidden_%d", ii)
		layers = append(layers,
			netspec.LayerSpec{Name: name, Kind: network.KindFullyConnected, Inputs: []string{previous}, Units: units},
			netspec.LayerSpec{Name: name + "_act", Kind: network.KindTanh, Inputs: []string{name}})
		previous = name + "_act"
	}
	return append(layers,
		netspec.LayerSpec{Name: "logits", Kind: network.KindFullyConnected, Inputs: []string{previous}, Units: 1},
		netspec.LayerSpec{Name: "probs", Kind: network.KindSigmoid, Inputs: []string{"logits"}},
		netspec.LayerSpec{Name: "output", Kind: network.KindOutput, Inputs: []string{"probs"}})
}

func run(args []string, stdout io.Writer) error {
	cfg, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}
	spec, err := cfg.loadSpec()
	if err != nil {
		return err
	}
	if cfg.printSpec {
		_, _ = stdout.Write(must.M1(spec.Marshal()))
	}
	compiled, err := spec.Compile()
	if err != nil {
		return err
	}
	net := compiled.Network
	if cfg.summary {
		_, _ = fmt.Fprintf(stdout, "Network %q:\n%s\n", spec.Name, net.Summary())
	}
	state, err := spec.InitialState(net)
	if err != nil {
		return err
	}

	var trainer *train.Trainer
	if cfg.train {
		trainer, err = spec.Trainer(compiled)
		if err != nil {
			return err
		}
		if err := cfg.trainLoop(trainer, state, spec.Training.Iterations); err != nil {
			return err
		}
		if err := commandline.ReportLoss(stdout, trainer, state, trainer.Dataset()); err != nil {
			return err
		}
		if cfg.predict {
			if err := printPredictions(stdout, net, state, trainer.Dataset()); err != nil {
				return err
			}
		}
	}

	if cfg.check {
		if trainer != nil && trainer.Dataset().Len() > 0 {
			if err := bindInputs(net, state, trainer.Dataset().Examples[0]); err != nil {
				return err
			}
		}
		checks, err := numdiff.CheckParameters(net, state, cfg.checkStep)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Gradient checks:\n%s\n", commandline.GradientChecksTable(checks, cfg.checkTolerance))
		for _, check := range checks {
			if check.MaxAbsError > cfg.checkTolerance {
				return errors.Errorf("gradient of %s differs from finite differences by %g", check.Variable, check.MaxAbsError)
			}
		}
	}
	return nil
}

// trainLoop trains with a Loop, attaching the progress bar and the plotters requested.
func (cfg *config) trainLoop(trainer *train.Trainer, state *variables.State, iterations int) error {
	loop := train.NewLoop(trainer)
	if cfg.progress {
		commandline.AttachProgressBar(loop)
	}

	var plotters []plots.Plotter
	points := plots.NewPoints(nil)
	var svg *plots.SVG
	if cfg.plotPath != "" {
		if strings.ToLower(filepath.Ext(cfg.plotPath)) == ".svg" {
			svg = plots.NewSVG(cfg.plotWidth, cfg.plotHeight, plots.MetricTypeLoss).LogScaleY()
			plotters = append(plotters, svg)
		} else {
			plotters = append(plotters, points)
		}
	}
	var writer *plots.PointsWriter
	if cfg.pointsPath != "" {
		if err := fsutil.CreateParentDir(cfg.pointsPath); err != nil {
			return err
		}
		var err error
		writer, err = plots.NewPointsWriter(cfg.pointsPath)
		if err != nil {
			return err
		}
		plotters = append(plotters, writer)
	}
	if len(plotters) > 0 {
		plots.AttachLoss(loop, trainer.Dataset().Name+" loss", plotters...)
	}

	_, err := loop.Run(state, iterations)
	if writer != nil {
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return err
	}

	if cfg.plotPath == "" {
		return nil
	}
	if err := fsutil.CreateParentDir(cfg.plotPath); err != nil {
		return err
	}
	if svg != nil {
		return svg.Save(cfg.plotPath)
	}
	// gonum/plot uses 1/72 inch points, images are rendered at 96 DPI.
	toLength := func(pixels int) vg.Length { return vg.Length(pixels) * vg.Inch / 96 }
	return plots.SavePNG(points, plots.MetricTypeLoss, true, cfg.plotPath, toLength(cfg.plotWidth), toLength(cfg.plotHeight))
}

func bindInputs(net *network.Network, state *variables.State, example train.Example) error {
	for ii, v := range net.InputVariables() {
		if err := state.Set(v, example.Inputs[ii]); err != nil {
			return err
		}
	}
	return nil
}

// printPredictions prints the network output for each example of ds, next to the target.
func printPredictions(w io.Writer, net *network.Network, state *variables.State, ds *train.Dataset) error {
	_, _ = fmt.Fprintf(w, "Predictions on %s:\n", ds.Name)
	format := func(values []float64) string {
		return strings.Join(xslices.Map(values, func(v float64) string {
			return strconv.FormatFloat(v, 'g', 4, 64)
		}), ", ")
	}
	for _, example := range ds.Examples {
		if err := bindInputs(net, state, example); err != nil {
			return err
		}
		output, err := net.Evaluate(state)
		if err != nil {
			return err
		}
		inputs := xslices.Map(example.Inputs, func(v *mat.VecDense) string { return format(v.RawVector().Data) })
		_, _ = fmt.Fprintf(w, "\t[%s] -> [%s] (target [%s])\n", strings.Join(inputs, "; "),
			format(output.RawVector().Data), format(example.Target.RawVector().Data))
	}
	return nil
}
