package learner

import (
	"fmt"
	"math"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
)

// Counter names shared by all learners.
const (
	counterSamplesSeen = "samples_seen"
	counterUpdates     = "updates"
)

// base holds what every learner has in common: owned parameters, the
// schedule, regularization options and progress counters.
type base struct {
	kind        string
	params      []*graph.Variable
	schedule    Schedule
	opts        Options
	samplesSeen int64
	updates     int64
}

func newBase(kind string, params []*graph.Variable, schedule Schedule, opts Options) (base, error) {
	if len(params) == 0 {
		return base{}, errors.Errorf("%s learner without parameters", kind)
	}
	for _, p := range params {
		if p == nil || !p.IsParameter() {
			return base{}, errors.Errorf("%s learner given non-parameter variable %v", kind, p)
		}
	}
	if schedule == nil {
		return base{}, errors.Errorf("%s learner without a learning rate schedule", kind)
	}
	return base{
		kind:     kind,
		params:   append([]*graph.Variable(nil), params...),
		schedule: schedule,
		opts:     opts,
	}, nil
}

// Kind implements Learner.
func (b *base) Kind() string { return b.kind }

// Parameters implements Learner.
func (b *base) Parameters() []*graph.Variable { return b.params }

// SamplesSeen implements Learner.
func (b *base) SamplesSeen() int64 { return b.samplesSeen }

// Exhausted implements Learner.
func (b *base) Exhausted() bool {
	_, ok := b.schedule.Rate(b.samplesSeen)
	return !ok
}

// LearningRate implements Learner.
func (b *base) LearningRate() float64 {
	rate, _ := b.schedule.Rate(b.samplesSeen)
	return rate
}

// Validate implements Learner.
func (b *base) Validate(grads Gradients) error {
	for _, p := range b.params {
		g, ok := grads[p]
		if !ok || g == nil {
			return errors.Wrapf(ErrMissingGradient, "%s learner: parameter %s", b.kind, p)
		}
		if !g.Shape().Equal(p.Shape()) || g.DType() != tensor.Float32 {
			return errors.Wrapf(ErrGradientShape, "%s learner: parameter %s%s got gradient %s%s",
				b.kind, p, p.Shape(), g.DType(), g.Shape())
		}
	}
	return nil
}

// begin returns the rate for the step about to be applied, false if exhausted.
func (b *base) begin() (float32, bool) {
	rate, ok := b.schedule.Rate(b.samplesSeen)
	return float32(rate), ok
}

// finish advances the counters after a performed step.
func (b *base) finish(sampleCount int) {
	b.samplesSeen += int64(sampleCount)
	b.updates++
}

// gradient returns the regularized, clipped gradient of parameter p as a
// fresh slice; grads is never mutated.
func (b *base) gradient(p *graph.Variable, grads Gradients) []float32 {
	src := grads[p].AsFloat32()
	g := make([]float32, len(src))
	copy(g, src)
	if l2 := float32(b.opts.L2RegularizationWeight); l2 != 0 {
		param := p.Value().AsFloat32()
		for i := range g {
			g[i] += l2 * param[i]
		}
	}
	if threshold := b.opts.GradientClippingThreshold; threshold > 0 {
		var sq float64
		for _, v := range g {
			sq += float64(v) * float64(v)
		}
		if norm := math.Sqrt(sq); norm > threshold {
			scale := float32(threshold / norm)
			for i := range g {
				g[i] *= scale
			}
		}
	}
	return g
}

func (b *base) counters() map[string]int64 {
	return map[string]int64{
		counterSamplesSeen: b.samplesSeen,
		counterUpdates:     b.updates,
	}
}

// checkState validates the parts of a state every learner shares.
func (b *base) checkState(state State) error {
	if state.Kind != b.kind {
		return errors.Wrapf(ErrStateMismatch, "state of a %q learner restored into a %q learner", state.Kind, b.kind)
	}
	for _, name := range []string{counterSamplesSeen, counterUpdates} {
		if v, ok := state.Counters[name]; !ok || v < 0 {
			return errors.Wrapf(ErrStateMismatch, "%s learner: counter %q missing or negative", b.kind, name)
		}
	}
	return nil
}

// checkBuffers validates state tensors named "<prefix>.<param index>".
func (b *base) checkBuffers(state State, prefixes ...string) error {
	for _, prefix := range prefixes {
		for i, p := range b.params {
			buf, ok := state.Tensors[bufferKey(prefix, i)]
			if !ok {
				continue
			}
			if !buf.Shape().Equal(p.Shape()) || buf.DType() != tensor.Float32 {
				return errors.Wrapf(ErrStateMismatch, "%s shape mismatch for parameter %d: expected %s, got %s",
					prefix, i, p.Shape(), buf.Shape())
			}
		}
	}
	for key := range state.Tensors {
		if !b.knownBuffer(key, prefixes) {
			return errors.Wrapf(ErrStateMismatch, "%s learner: unexpected state tensor %q", b.kind, key)
		}
	}
	return nil
}

func (b *base) knownBuffer(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		for i := range b.params {
			if key == bufferKey(prefix, i) {
				return true
			}
		}
	}
	return false
}

func (b *base) restoreCounters(state State) {
	b.samplesSeen = state.Counters[counterSamplesSeen]
	b.updates = state.Counters[counterUpdates]
}

func bufferKey(prefix string, index int) string {
	return fmt.Sprintf("%s.%d", prefix, index)
}
