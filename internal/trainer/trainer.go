// Package trainer drives training of a model: it feeds minibatches through a
// compute engine, applies the resulting gradients with a set of learners and
// keeps the statistics of the last minibatch.
//
// A Trainer serializes all operations with a mutex. Every operation either
// completes or leaves parameters, learner state and statistics untouched.
package trainer

import (
	"fmt"
	"math"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/engine"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Errors returned by the trainer in addition to those of the adapter,
// device, learner and checkpoint packages.
var (
	ErrNonFiniteLoss      = errors.New("non-finite loss")
	ErrCheckpointMismatch = errors.New("checkpoint does not match trainer")
	ErrEngine             = errors.New("engine failure")
)

// Engine is the compute collaborator.
type Engine = engine.Engine

// Option configures a Trainer.
type Option func(*Trainer)

// WithRunID sets the id written into checkpoints. By default a random UUID.
func WithRunID(id string) Option {
	return func(t *Trainer) { t.runID = id }
}

// WithCheckpointOptions sets options applied on every SaveCheckpoint.
func WithCheckpointOptions(opts ...checkpoint.SaveOption) Option {
	return func(t *Trainer) { t.saveOpts = append(t.saveOpts, opts...) }
}

// WithMetadata adds free-form key/values to every checkpoint.
func WithMetadata(metadata map[string]string) Option {
	return func(t *Trainer) {
		for k, v := range metadata {
			t.metadata[k] = v
		}
	}
}

// Trainer coordinates a model, its loss and evaluation functions and the
// learners that update its parameters.
type Trainer struct {
	mu sync.Mutex

	engine   Engine
	model    graph.Function
	loss     graph.Function
	eval     graph.Function
	learners *learner.Set

	inputs []*graph.Variable // model args, then loss/eval args not seen yet
	params []*graph.Variable

	runID    string
	saveOpts []checkpoint.SaveOption
	metadata map[string]string

	// Statistics of the last successful training step.
	lossAverage float64
	evalAverage float64
	sampleCount int

	samplesSeen int64
	minibatches int64
}

// New creates a Trainer. eval may be nil, in which case TestMinibatch is not
// available. Every learner parameter must be a parameter of model or loss,
// and every such parameter must be owned by exactly one learner.
func New(eng Engine, model, loss, eval graph.Function, learners []learner.Learner, opts ...Option) (*Trainer, error) {
	if eng == nil {
		return nil, errors.New("trainer: nil engine")
	}
	if model == nil || loss == nil {
		return nil, errors.New("trainer: model and loss functions are required")
	}
	set, err := learner.NewSet(learners...)
	if err != nil {
		return nil, errors.WithMessage(err, "trainer")
	}

	t := &Trainer{
		engine:   eng,
		model:    model,
		loss:     loss,
		eval:     eval,
		learners: set,
		inputs:   graph.MergeArguments(model, loss, eval),
		params:   graph.MergeParameters(model, loss),
		runID:    uuid.NewString(),
		metadata: map[string]string{},
	}
	for _, opt := range opts {
		opt(t)
	}

	known := make(map[*graph.Variable]bool, len(t.params))
	for _, p := range t.params {
		known[p] = true
	}
	owned := make(map[*graph.Variable]bool, len(t.params))
	for _, p := range set.Parameters() {
		if !known[p] {
			return nil, errors.Errorf("trainer: learner parameter %s is not a parameter of %s or %s", p, model.Name(), loss.Name())
		}
		owned[p] = true
	}
	for _, p := range t.params {
		if !owned[p] {
			return nil, errors.Errorf("trainer: parameter %s is not covered by any learner", p)
		}
	}

	klog.V(1).Infof("trainer: engine %s, %d inputs, %d parameters, %d learners",
		eng.Name(), len(t.inputs), len(t.params), len(learners))
	return t, nil
}

// StepResult is returned by TrainMinibatchWithOutputs.
type StepResult struct {
	// Updated is false only when every learner is exhausted.
	Updated bool
	// Outputs holds exactly the requested variables.
	Outputs map[*graph.Variable][]adapter.Sequence
}

// TrainMinibatch runs one training step and reports whether any learner
// updated its parameters. dev nil selects the process default device.
func (t *Trainer) TrainMinibatch(args adapter.Arguments, dev *device.Descriptor) (bool, error) {
	res, err := t.TrainMinibatchWithOutputs(args, nil, dev)
	if err != nil {
		return false, err
	}
	return res.Updated, nil
}

// TrainMinibatchWithOutputs runs one training step and also returns the
// values of outputs computed during the forward pass.
func (t *Trainer) TrainMinibatchWithOutputs(args adapter.Arguments, outputs []*graph.Variable, dev *device.Descriptor) (*StepResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, err := device.Resolve(dev, t.engine.Devices())
	if err != nil {
		return nil, err
	}
	batch, err := adapter.Normalize(t.inputs, args)
	if err != nil {
		return nil, err
	}
	requested, err := dedupe(outputs)
	if err != nil {
		return nil, err
	}

	res, err := t.train(&engine.Request{
		Batch:      batch,
		Device:     d,
		Model:      t.model,
		Loss:       t.loss,
		Eval:       t.eval,
		Parameters: t.params,
		Outputs:    requested,
	})
	if err != nil {
		return nil, err
	}
	if res.Samples <= 0 {
		return nil, errors.Wrapf(ErrEngine, "%s reported %d samples", t.engine.Name(), res.Samples)
	}
	if math.IsNaN(res.LossSum) || math.IsInf(res.LossSum, 0) {
		return nil, errors.Wrapf(ErrNonFiniteLoss, "loss sum %g over %d samples", res.LossSum, res.Samples)
	}

	values := make(map[*graph.Variable][]adapter.Sequence, len(requested))
	for v, seqs := range adapter.Sequences(res.Outputs, requested) {
		values[v] = seqs
	}
	for _, v := range requested {
		if _, ok := values[v]; !ok {
			return nil, errors.Wrapf(ErrEngine, "%s did not return output %s", t.engine.Name(), v)
		}
	}

	updated, err := t.learners.Apply(res.Gradients, res.Samples)
	if err != nil {
		return nil, err
	}

	t.lossAverage = res.LossSum / float64(res.Samples)
	if t.eval != nil {
		t.evalAverage = res.EvalSum / float64(res.Samples)
	}
	t.sampleCount = res.Samples
	t.samplesSeen += int64(res.Samples)
	t.minibatches++
	klog.V(1).Infof("minibatch %d: %d samples, loss %.6g, eval %.6g, updated=%v",
		t.minibatches, res.Samples, t.lossAverage, t.evalAverage, updated)
	return &StepResult{Updated: updated, Outputs: values}, nil
}

// TestMinibatch evaluates the evaluation function on args and returns the
// average per sample. args are matched against the evaluation function's
// arguments. seqStarts, when non-nil, gives one start flag per sequence.
// Statistics, parameters and learners are not touched.
func (t *Trainer) TestMinibatch(args adapter.Arguments, seqStarts []bool, dev *device.Descriptor) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.eval == nil {
		return 0, errors.New("trainer: no evaluation function")
	}
	d, err := device.Resolve(dev, t.engine.Devices())
	if err != nil {
		return 0, err
	}
	batch, err := adapter.Normalize(t.eval.Arguments(), args)
	if err != nil {
		return 0, err
	}
	if seqStarts != nil {
		if batch.HasExplicitStarts() {
			return 0, errors.Wrap(adapter.ErrShapeMismatch, "sequence starts given twice")
		}
		if batch, err = adapter.AttachSequenceStarts(batch, seqStarts); err != nil {
			return 0, err
		}
	}

	var ev *engine.Evaluation
	err = t.guard(func() error {
		var err error
		ev, err = t.engine.Evaluate(&engine.Request{
			Batch:  batch,
			Device: d,
			Model:  t.model,
			Loss:   t.loss,
			Eval:   t.eval,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	if ev.Samples <= 0 {
		return 0, errors.Wrapf(ErrEngine, "%s reported %d samples", t.engine.Name(), ev.Samples)
	}
	return ev.EvalSum / float64(ev.Samples), nil
}

func (t *Trainer) train(req *engine.Request) (*engine.Result, error) {
	var res *engine.Result
	err := t.guard(func() error {
		var err error
		res, err = t.engine.Train(req)
		return err
	})
	return res, err
}

// guard runs an engine call, converting panics into ErrEngine errors.
func (t *Trainer) guard(call func() error) error {
	var callErr error
	panicErr := exceptions.TryCatch[error](func() { callErr = call() })
	if panicErr != nil {
		return errors.Wrapf(ErrEngine, "%s: %v", t.engine.Name(), panicErr)
	}
	if callErr != nil {
		return errors.WithMessagef(callErr, "%s", t.engine.Name())
	}
	return nil
}

func dedupe(outputs []*graph.Variable) ([]*graph.Variable, error) {
	seen := make(map[*graph.Variable]bool, len(outputs))
	out := make([]*graph.Variable, 0, len(outputs))
	for i, v := range outputs {
		if v == nil {
			return nil, fmt.Errorf("trainer: output #%d is nil", i)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}
