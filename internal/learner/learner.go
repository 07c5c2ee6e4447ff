// Package learner implements parameter-update strategies ("learners").
//
// This package provides:
//   - Learner interface: a strategy owning a disjoint subset of parameters
//   - SGD, MomentumSGD and Adam update rules
//   - Schedule: learning rate as a function of samples seen; a schedule that
//     ends exhausts its learner
//   - Set: the ordered learner collection a trainer applies gradients through
//
// Example usage:
//
//	sgd, _ := learner.NewMomentumSGD(model.Parameters(), learner.MomentumConfig{
//	    Schedule: learner.Limited(learner.Constant(0.01), 60000),
//	    Momentum: 0.9,
//	})
//	set, _ := learner.NewSet(sgd)
//	updated, err := set.Apply(grads, sampleCount)
package learner

import (
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrMissingGradient       = errors.New("missing gradient")
	ErrGradientShape         = errors.New("gradient shape mismatch")
	ErrOverlappingParameters = errors.New("parameter owned by more than one learner")
	ErrStateMismatch         = errors.New("learner state does not match learner")
)

// Gradients maps parameters to the gradient of the minibatch loss.
type Gradients map[*graph.Variable]*tensor.RawTensor

// Learner is the interface of all update strategies.
type Learner interface {
	// Kind identifies the update rule ("sgd", "momentum_sgd", "adam").
	Kind() string

	// Parameters returns the parameters this learner owns, in a stable order.
	Parameters() []*graph.Variable

	// LearningRate returns the rate the next update would use, 0 when exhausted.
	LearningRate() float64

	// Validate checks that grads holds a correctly shaped gradient for every
	// owned parameter. It does not mutate anything.
	Validate(grads Gradients) error

	// Update applies one step computed over sampleCount samples and reports
	// whether it was performed. An exhausted learner does nothing and
	// returns false. Update must only be called with validated gradients.
	Update(grads Gradients, sampleCount int) bool

	// Exhausted reports whether the learning rate schedule has ended.
	Exhausted() bool

	// SamplesSeen returns the number of samples this learner has been updated with.
	SamplesSeen() int64

	// State returns a deep copy of the internal state, for checkpoints.
	State() State

	// Restore replaces the internal state. On error nothing is changed.
	Restore(state State) error
}

// State is the serializable internal state of a learner: counters plus
// named tensors (momentum buffers, moment estimates).
type State struct {
	Kind     string
	Counters map[string]int64
	Tensors  map[string]*tensor.RawTensor
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Kind:     s.Kind,
		Counters: make(map[string]int64, len(s.Counters)),
		Tensors:  make(map[string]*tensor.RawTensor, len(s.Tensors)),
	}
	for k, v := range s.Counters {
		out.Counters[k] = v
	}
	for k, v := range s.Tensors {
		out.Tensors[k] = v.Clone()
	}
	return out
}

// Options are shared by all learners.
type Options struct {
	// L2RegularizationWeight adds weight*param to every gradient.
	L2RegularizationWeight float64
	// GradientClippingThreshold rescales a parameter gradient whose L2 norm
	// exceeds it. 0 disables clipping.
	GradientClippingThreshold float64
}
