// Package loop runs a Trainer over a reader.Source, invoking hooks around
// each step.
//
// In itself the Loop only feeds minibatches; checkpointing, progress display
// and logging are attached as hooks (see AttachCheckpoints and
// progress.Attach).
package loop

import (
	"context"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/reader"
	"github.com/naresrac/CNTK/internal/trainer"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Priority orders hooks, lowest first.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop) error

// OnStepFn is the type of OnStep hooks, called after each successful step.
type OnStepFn func(loop *Loop, step *Step) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop, reason StopReason) error

// Step summarizes one training step.
type Step struct {
	Minibatch   int64 // trainer minibatch counter after the step
	LossAverage float64
	EvalAverage float64
	Samples     int
	Duration    time.Duration
	EndOfSweep  bool
}

// StopReason tells why a run ended.
type StopReason int

const (
	// StepsDone means the requested number of steps ran.
	StepsDone StopReason = iota
	// EndOfData means the source returned io.EOF.
	EndOfData
	// LearnersExhausted means every learner reported it is done.
	LearnersExhausted
)

func (r StopReason) String() string {
	switch r {
	case StepsDone:
		return "steps done"
	case EndOfData:
		return "end of data"
	case LearnersExhausted:
		return "learners exhausted"
	}
	return "unknown"
}

// Loop drives a Trainer. Public fields are meant for reading from hooks.
type Loop struct {
	Trainer       *trainer.Trainer
	Device        *device.Descriptor
	MinibatchSize int

	// LoopStep counts steps run by this Loop across runs.
	LoopStep int
	// StartStep is LoopStep at the start of the current run.
	StartStep int
	// EndStep is one past the last step of the current run, -1 when the run
	// goes until the data or the learners end.
	EndStep int
	// Sweeps counts completed passes over the source.
	Sweeps int

	StepDurations []time.Duration

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// New creates a Loop. dev may be nil for the process default device.
func New(tr *trainer.Trainer, minibatchSize int, dev *device.Descriptor) *Loop {
	return &Loop{
		Trainer:       tr,
		Device:        dev,
		MinibatchSize: minibatchSize,
		onStart:       newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:        newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:         newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// OnStart adds a hook run before the first step of each run.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook run after every successful step.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook run once a run stops without error.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// RunSteps trains on minibatches from src for at most steps steps; steps <= 0
// runs until the source or the learners are exhausted. The context is
// checked between steps. It can be called again to pick up where it stopped.
func (loop *Loop) RunSteps(ctx context.Context, src reader.Source, steps int) (reason StopReason, err error) {
	if loop.MinibatchSize <= 0 {
		return 0, errors.Errorf("Loop.RunSteps: invalid minibatch size %d", loop.MinibatchSize)
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = -1
	if steps > 0 {
		loop.EndStep = loop.LoopStep + steps
	}
	loop.StepDurations = loop.StepDurations[:0]
	if err = loop.start(); err != nil {
		return 0, err
	}

	inputs := loop.Trainer.Inputs()
	reason = StepsDone
	for loop.EndStep < 0 || loop.LoopStep < loop.EndStep {
		if err = ctx.Err(); err != nil {
			return 0, errors.WithMessagef(err, "Loop.RunSteps: interrupted at LoopStep=%d", loop.LoopStep)
		}
		mb, err := src.Next(loop.MinibatchSize)
		if err == io.EOF {
			reason = EndOfData
			break
		}
		if err != nil {
			return 0, errors.WithMessagef(err, "Loop.RunSteps: failed reading minibatch (LoopStep=%d)", loop.LoopStep)
		}
		args, err := mb.Arguments(inputs)
		if err != nil {
			return 0, errors.WithMessagef(err, "Loop.RunSteps: LoopStep=%d", loop.LoopStep)
		}

		startTime := time.Now()
		updated, err := loop.Trainer.TrainMinibatch(args, loop.Device)
		if err != nil {
			return 0, errors.WithMessagef(err, "Loop.RunSteps: failed TrainMinibatch (LoopStep=%d)", loop.LoopStep)
		}
		if !updated {
			reason = LearnersExhausted
			break
		}
		step := &Step{
			Minibatch:   loop.Trainer.Minibatches(),
			LossAverage: loop.Trainer.PreviousMinibatchLossAverage(),
			EvalAverage: loop.Trainer.PreviousMinibatchEvaluationAverage(),
			Samples:     loop.Trainer.PreviousMinibatchSampleCount(),
			Duration:    time.Since(startTime),
			EndOfSweep:  mb.EndOfSweep,
		}
		loop.StepDurations = append(loop.StepDurations, step.Duration)
		if mb.EndOfSweep {
			loop.Sweeps++
		}
		if err = loop.step(step); err != nil {
			return 0, err
		}
		loop.LoopStep++
	}
	klog.V(1).Infof("loop: stopped after %d steps: %s", loop.LoopStep-loop.StartStep, reason)
	if err = loop.end(reason); err != nil {
		return 0, err
	}
	return reason, nil
}

func (loop *Loop) start() (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			return
		}
		if err = hook.fn(loop); err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) step(s *Step) (err error) {
	loop.onStep.Enumerate(func(hook *hookWithName[OnStepFn]) {
		if err != nil {
			return
		}
		if err = hook.fn(loop, s); err != nil {
			err = errors.WithMessagef(err, "OnStep(hook %q, LoopStep=%d)", hook.name, loop.LoopStep)
		}
	})
	return
}

func (loop *Loop) end(reason StopReason) (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			return
		}
		if err = hook.fn(loop, reason); err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// MedianStepDuration returns the median duration of the steps of the last
// run, or a millisecond if none ran.
func (loop *Loop) MedianStepDuration() time.Duration {
	if len(loop.StepDurations) == 0 {
		return time.Millisecond
	}
	times := slices.Clone(loop.StepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks keeps hooks in insertion order within each priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
