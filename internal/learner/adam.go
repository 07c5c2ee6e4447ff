package learner

import (
	"math"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
)

const counterTimestep = "timestep"

// AdamConfig holds configuration for Adam.
type AdamConfig struct {
	Schedule Schedule
	Betas    [2]float32 // default: [0.9, 0.999]
	Eps      float32    // default: 1e-8
	Options  Options
}

// Adam implements Adaptive Moment Estimation.
//
//	m = beta1 * m + (1-beta1) * gradient
//	v = beta2 * v + (1-beta2) * gradient²
//	param = param - lr * (m / (1-beta1^t)) / (sqrt(v / (1-beta2^t)) + eps)
//
// The timestep t counts performed updates and is part of the state, so a
// restored learner continues with the same bias correction.
type Adam struct {
	base
	beta1, beta2 float32
	eps          float32
	t            int64
	m, v         map[int]*tensor.RawTensor
}

// NewAdam creates an Adam learner over params.
func NewAdam(params []*graph.Variable, config AdamConfig) (*Adam, error) {
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	for _, beta := range config.Betas {
		if beta < 0 || beta >= 1 {
			return nil, errors.Errorf("adam betas must be in [0, 1), got %v", config.Betas)
		}
	}
	b, err := newBase("adam", params, config.Schedule, config.Options)
	if err != nil {
		return nil, err
	}
	return &Adam{
		base:  b,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[int]*tensor.RawTensor),
		v:     make(map[int]*tensor.RawTensor),
	}, nil
}

// Update implements Learner.
func (a *Adam) Update(grads Gradients, sampleCount int) bool {
	lr, ok := a.begin()
	if !ok {
		return false
	}
	a.t++
	bc1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for idx, p := range a.params {
		g := a.gradient(p, grads)
		m := a.moment(a.m, idx, p).AsFloat32()
		v := a.moment(a.v, idx, p).AsFloat32()
		data := p.Value().AsFloat32()
		for i := range data {
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g[i]*g[i]
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			data[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	a.finish(sampleCount)
	return true
}

func (a *Adam) moment(buffers map[int]*tensor.RawTensor, idx int, p *graph.Variable) *tensor.RawTensor {
	buf, ok := buffers[idx]
	if !ok {
		buf = tensor.Zeros(p.Shape())
		buffers[idx] = buf
	}
	return buf
}

// State implements Learner.
func (a *Adam) State() State {
	counters := a.counters()
	counters[counterTimestep] = a.t
	tensors := make(map[string]*tensor.RawTensor, len(a.m)+len(a.v))
	for idx, buf := range a.m {
		tensors[bufferKey("m", idx)] = buf.Clone()
	}
	for idx, buf := range a.v {
		tensors[bufferKey("v", idx)] = buf.Clone()
	}
	return State{Kind: a.kind, Counters: counters, Tensors: tensors}
}

// Restore implements Learner.
func (a *Adam) Restore(state State) error {
	if err := a.checkState(state); err != nil {
		return err
	}
	t, ok := state.Counters[counterTimestep]
	if !ok || t < 0 {
		return errors.Wrapf(ErrStateMismatch, "adam learner: counter %q missing or negative", counterTimestep)
	}
	if err := a.checkBuffers(state, "m", "v"); err != nil {
		return err
	}
	a.restoreCounters(state)
	a.t = t
	a.m = make(map[int]*tensor.RawTensor)
	a.v = make(map[int]*tensor.RawTensor)
	for idx := range a.params {
		if buf, ok := state.Tensors[bufferKey("m", idx)]; ok {
			a.m[idx] = buf.Clone()
		}
		if buf, ok := state.Tensors[bufferKey("v", idx)]; ok {
			a.v[idx] = buf.Clone()
		}
	}
	return nil
}
