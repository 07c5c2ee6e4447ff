// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package trainer

import (
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/engine"
	"github.com/naresrac/CNTK/internal/engine/reference"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/parallel"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/naresrac/CNTK/internal/trainer"
)

// Trainer

// Trainer coordinates a model, its loss and evaluation functions and the
// learners that update its parameters.
type Trainer = trainer.Trainer

// Option configures a Trainer.
type Option = trainer.Option

// StepResult is returned by TrainMinibatchWithOutputs.
type StepResult = trainer.StepResult

// Engine computes losses and gradients for the trainer.
type Engine = engine.Engine

// New creates a Trainer. eval may be nil.
func New(eng Engine, model, loss, eval Function, learners []learner.Learner, opts ...Option) (*Trainer, error) {
	return trainer.New(eng, model, loss, eval, learners, opts...)
}

// WithRunID sets the run id recorded in checkpoints.
func WithRunID(id string) Option { return trainer.WithRunID(id) }

// WithMetadata adds key/value pairs to every checkpoint.
func WithMetadata(metadata map[string]string) Option { return trainer.WithMetadata(metadata) }

// WithHalfPrecisionCheckpoints stores parameters as float16 in checkpoints.
// Learner state stays float32.
func WithHalfPrecisionCheckpoints() Option {
	return trainer.WithCheckpointOptions(checkpoint.WithHalfPrecisionParameters())
}

// Variables and functions

// Variable is a model input, output or parameter.
type Variable = graph.Variable

// Function is a computation with declared arguments, outputs and parameters.
type Function = graph.Function

// NewInput creates an input variable with the given per-sample shape.
func NewInput(name string, shape tensor.Shape) *Variable { return graph.NewInput(name, shape) }

// Minibatch data

// Arguments is a minibatch passed to the trainer.
type Arguments = adapter.Arguments

// Positional values follow the trainer's declared input order.
type Positional = adapter.Positional

// Named values are keyed by input name or uid.
type Named = adapter.Named

// Value is the data of one input: a list of sequences.
type Value = adapter.Value

// Sequence holds steps × sample size values.
type Sequence = adapter.Sequence

// FromSamples builds a Value with one single-step sequence per sample.
func FromSamples(samples ...[]float32) *Value { return adapter.FromSamples(samples...) }

// FromSequences builds a Value from whole sequences.
func FromSequences(seqs ...[]float32) *Value { return adapter.FromSequences(seqs...) }

// PositionalWithStarts attaches sequence start flags to positional values.
func PositionalWithStarts(starts []bool, values ...*Value) Arguments {
	return adapter.PositionalWithStarts(starts, values...)
}

// NamedWithStarts attaches sequence start flags to named values.
func NamedWithStarts(values map[string]*Value, starts []bool) Arguments {
	return adapter.NamedWithStarts(values, starts)
}

// Devices

// Device identifies a compute device.
type Device = device.Descriptor

// CPU returns the CPU device.
func CPU() Device { return device.CPU() }

// GPU returns the GPU device with the given ordinal.
func GPU(id int) Device { return device.GPU(id) }

// UseDefault returns the process default device, freezing it.
func UseDefault() Device { return device.UseDefault() }

// TrySetDefault sets the default device; false once it has been used.
func TrySetDefault(d Device) bool { return device.TrySetDefault(d) }

// Reference engine

// Dense is a fully connected model understood by the reference engine.
type Dense = reference.Dense

// Criterion is a loss or evaluation function of a Dense model.
type Criterion = reference.Criterion

// CriterionKind selects a criterion.
type CriterionKind = reference.CriterionKind

// Criterion kinds.
const (
	SquaredError            = reference.SquaredError
	CrossEntropyWithSoftmax = reference.CrossEntropyWithSoftmax
	ClassificationError     = reference.ClassificationError
)

// NewDense creates a dense model with deterministic initialization.
func NewDense(name string, input *Variable, outDim int, seed uint64) (*Dense, error) {
	return reference.NewDense(name, input, outDim, seed)
}

// NewCriterion creates a criterion comparing the model output to labels.
func NewCriterion(kind CriterionKind, model *Dense, labels *Variable) (*Criterion, error) {
	return reference.NewCriterion(kind, model, labels)
}

// NewReferenceEngine returns the CPU engine, running samples in parallel.
func NewReferenceEngine() Engine { return reference.New() }

// NewSequentialReferenceEngine returns the CPU engine on a single goroutine.
func NewSequentialReferenceEngine() Engine {
	return reference.New(reference.WithParallel(parallel.Sequential()))
}

// Errors

var (
	ErrShapeMismatch      = adapter.ErrShapeMismatch
	ErrLengthMismatch     = adapter.ErrLengthMismatch
	ErrDevice             = device.ErrDevice
	ErrIO                 = checkpoint.ErrIO
	ErrCorrupt            = checkpoint.ErrCorrupt
	ErrNonFiniteLoss      = trainer.ErrNonFiniteLoss
	ErrCheckpointMismatch = trainer.ErrCheckpointMismatch
	ErrEngine             = trainer.ErrEngine
)
