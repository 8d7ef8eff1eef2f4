// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/layergraph/layergraph/pkg/core/variables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
	"k8s.io/klog/v2"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop) error

// OnStepFn is the type of OnStep hooks, called after each major iteration of the optimizer with the
// current total loss.
type OnStepFn func(loop *Loop, loss float64) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop, result *optimize.Result) error

// Loop runs the optimizer of a Trainer, calling the hooks registered for the start, each iteration and
// the end of the run. Tools like progress bars or plots attach themselves through hooks.
//
// It implements optimize.Recorder. The public attributes are meant for reading only.
type Loop struct {
	Trainer *Trainer

	// Iteration is the number of major iterations completed in the current run.
	Iteration int

	// MaxIterations is the limit of major iterations of the current run.
	MaxIterations int

	// Losses holds the total loss at each major iteration.
	Losses []float64

	// StepDurations holds the wall time of each major iteration.
	StepDurations []time.Duration
	lastStepTime  time.Time

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

var _ optimize.Recorder = (*Loop)(nil)

// NewLoop creates a training loop for trainer.
func NewLoop(trainer *Trainer) *Loop {
	return &Loop{
		Trainer: trainer,
		onStart: newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:  newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:   newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// Run minimizes the loss starting from the parameters in state, for at most maxIterations major
// iterations. On success, state is updated with the best parameters found.
//
// Optimizer failures that still produce a result (e.g. a line search that can't make progress) are
// logged, and the best result is kept.
func (loop *Loop) Run(state *variables.State, maxIterations int) (*optimize.Result, error) {
	t := loop.Trainer
	objective, err := NewObjective(t.net, t.loss, t.data, state, t.variables...)
	if err != nil {
		return nil, err
	}
	x0, err := objective.Pack(state)
	if err != nil {
		return nil, errors.WithMessage(err, "train.Loop: reading initial parameters")
	}
	loop.Iteration = 0
	loop.MaxIterations = maxIterations
	loop.Losses = loop.Losses[:0]
	loop.StepDurations = loop.StepDurations[:0]

	settings := &optimize.Settings{
		MajorIterations:   maxIterations,
		GradientThreshold: t.gradientThreshold,
		Converger: &optimize.FunctionConverge{
			Absolute:   t.functionTolerance,
			Iterations: 20,
		},
		Recorder: loop,
	}
	result, err := optimize.Minimize(objective.Problem(), x0, settings, t.method)
	if evalErr := objective.Err(); evalErr != nil {
		return nil, errors.WithMessage(evalErr, "train.Loop: evaluating the network")
	}
	if err != nil {
		if result == nil {
			return nil, errors.WithMessage(err, "train.Loop: optimization failed")
		}
		klog.Warningf("train.Loop: optimizer stopped with %v, keeping the best result (loss=%g)", err, result.F)
	}
	if err := objective.Unpack(result.X, state); err != nil {
		return nil, err
	}
	funcCalls, gradCalls := objective.Calls()
	klog.V(1).Infof("train.Loop: finished after %d iterations with status %s, loss=%g (%d loss and %d gradient evaluations)",
		loop.Iteration, result.Status, result.F, funcCalls, gradCalls)
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop, result); err != nil {
			return nil, errors.WithMessagef(err, "train.Loop.OnEnd(hook %q)", hook.name)
		}
	}
	return result, nil
}

// Init implements optimize.Recorder, and calls the OnStart hooks.
func (loop *Loop) Init() error {
	loop.lastStepTime = time.Now()
	for hook := range loop.onStart.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "train.Loop.OnStart(hook %q)", hook.name)
		}
	}
	return nil
}

// Record implements optimize.Recorder, and calls the OnStep hooks at every major iteration.
func (loop *Loop) Record(location *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	now := time.Now()
	loop.StepDurations = append(loop.StepDurations, now.Sub(loop.lastStepTime))
	loop.lastStepTime = now
	loop.Iteration++
	loss := location.F
	loop.Losses = append(loop.Losses, loss)
	for hook := range loop.onStep.All() {
		if err := hook.fn(loop, loss); err != nil {
			return errors.WithMessagef(err, "train.Loop.OnStep(hook %q)", hook.name)
		}
	}
	if math.IsNaN(loss) {
		return errors.Errorf("loss is NaN, training interrupted")
	}
	if math.IsInf(loss, 0) {
		return errors.Errorf("loss is infinity (%f), training interrupted", loss)
	}
	return nil
}

// MedianStepDuration returns the median duration of the iterations of the current run.
func (loop *Loop) MedianStepDuration() time.Duration {
	if len(loop.StepDurations) == 0 {
		// Something different from 0 to avoid division by 0.
		return time.Millisecond
	}
	times := slices.Clone(loop.StepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a run.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook with given priority and name (for error reporting), called after each iteration.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a run.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over the hooks in priority order, and in insertion order within a priority.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
