package learner

import (
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
)

// SGD implements plain stochastic gradient descent.
//
// Update rule:
//
//	param = param - lr * gradient
type SGD struct {
	base
}

// NewSGD creates a plain SGD learner over params.
func NewSGD(params []*graph.Variable, schedule Schedule, opts Options) (*SGD, error) {
	b, err := newBase("sgd", params, schedule, opts)
	if err != nil {
		return nil, err
	}
	return &SGD{base: b}, nil
}

// Update implements Learner.
func (s *SGD) Update(grads Gradients, sampleCount int) bool {
	lr, ok := s.begin()
	if !ok {
		return false
	}
	for _, p := range s.params {
		g := s.gradient(p, grads)
		data := p.Value().AsFloat32()
		for i := range data {
			data[i] -= lr * g[i]
		}
	}
	s.finish(sampleCount)
	return true
}

// State implements Learner.
func (s *SGD) State() State {
	return State{Kind: s.kind, Counters: s.counters(), Tensors: map[string]*tensor.RawTensor{}}
}

// Restore implements Learner.
func (s *SGD) Restore(state State) error {
	if err := s.checkState(state); err != nil {
		return err
	}
	if len(state.Tensors) != 0 {
		return errors.Wrapf(ErrStateMismatch, "sgd learner carries no tensors, got %d", len(state.Tensors))
	}
	s.restoreCounters(state)
	return nil
}

// MomentumConfig holds configuration for MomentumSGD.
type MomentumConfig struct {
	Schedule Schedule
	Momentum float32 // default: 0.9
	Options  Options
}

// MomentumSGD implements SGD with a velocity buffer per parameter.
//
// Update rule:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Velocity buffers are created lazily on the first update and appear in the
// state as "velocity.<parameter index>".
type MomentumSGD struct {
	base
	momentum   float32
	velocities map[int]*tensor.RawTensor
}

// NewMomentumSGD creates a momentum SGD learner over params.
func NewMomentumSGD(params []*graph.Variable, config MomentumConfig) (*MomentumSGD, error) {
	if config.Momentum == 0 {
		config.Momentum = 0.9
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, errors.Errorf("momentum must be in [0, 1), got %g", config.Momentum)
	}
	b, err := newBase("momentum_sgd", params, config.Schedule, config.Options)
	if err != nil {
		return nil, err
	}
	return &MomentumSGD{
		base:       b,
		momentum:   config.Momentum,
		velocities: make(map[int]*tensor.RawTensor),
	}, nil
}

// Update implements Learner.
func (s *MomentumSGD) Update(grads Gradients, sampleCount int) bool {
	lr, ok := s.begin()
	if !ok {
		return false
	}
	for idx, p := range s.params {
		g := s.gradient(p, grads)
		vel, exists := s.velocities[idx]
		if !exists {
			vel = tensor.Zeros(p.Shape())
			s.velocities[idx] = vel
		}
		v := vel.AsFloat32()
		data := p.Value().AsFloat32()
		for i := range data {
			v[i] = s.momentum*v[i] + g[i]
			data[i] -= lr * v[i]
		}
	}
	s.finish(sampleCount)
	return true
}

// State implements Learner.
func (s *MomentumSGD) State() State {
	tensors := make(map[string]*tensor.RawTensor, len(s.velocities))
	for idx, vel := range s.velocities {
		tensors[bufferKey("velocity", idx)] = vel.Clone()
	}
	return State{Kind: s.kind, Counters: s.counters(), Tensors: tensors}
}

// Restore implements Learner.
func (s *MomentumSGD) Restore(state State) error {
	if err := s.checkState(state); err != nil {
		return err
	}
	if err := s.checkBuffers(state, "velocity"); err != nil {
		return err
	}
	s.restoreCounters(state)
	s.velocities = make(map[int]*tensor.RawTensor)
	for idx := range s.params {
		if vel, ok := state.Tensors[bufferKey("velocity", idx)]; ok {
			s.velocities[idx] = vel.Clone()
		}
	}
	return nil
}
