package trainer

import (
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
)

// Model returns the model function.
func (t *Trainer) Model() graph.Function { return t.model }

// LossFunction returns the loss function.
func (t *Trainer) LossFunction() graph.Function { return t.loss }

// EvaluationFunction returns the evaluation function, nil if none was given.
func (t *Trainer) EvaluationFunction() graph.Function { return t.eval }

// ParameterLearners returns the learners in order.
func (t *Trainer) ParameterLearners() []learner.Learner { return t.learners.Learners() }

// Inputs returns the declared inputs in positional order: the model's
// arguments followed by the loss and evaluation arguments not already listed.
func (t *Trainer) Inputs() []*graph.Variable {
	return append([]*graph.Variable(nil), t.inputs...)
}

// Parameters returns the trained parameters in checkpoint order.
func (t *Trainer) Parameters() []*graph.Variable {
	return append([]*graph.Variable(nil), t.params...)
}

// RunID returns the id written into checkpoints.
func (t *Trainer) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}

// PreviousMinibatchLossAverage returns the average loss per sample of the
// last successful training step, 0 before the first.
func (t *Trainer) PreviousMinibatchLossAverage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lossAverage
}

// PreviousMinibatchEvaluationAverage returns the average evaluation per
// sample of the last successful training step.
func (t *Trainer) PreviousMinibatchEvaluationAverage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evalAverage
}

// PreviousMinibatchSampleCount returns the number of samples of the last
// successful training step.
func (t *Trainer) PreviousMinibatchSampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleCount
}

// TotalNumberOfSamplesSeen returns the samples of all successful training
// steps, including those restored from a checkpoint.
func (t *Trainer) TotalNumberOfSamplesSeen() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samplesSeen
}

// Minibatches returns the number of successful training steps.
func (t *Trainer) Minibatches() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minibatches
}

// Exhausted reports whether every learner's schedule has ended.
func (t *Trainer) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.learners.Exhausted()
}
