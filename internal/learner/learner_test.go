package learner_test

import (
	"math"
	"testing"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(t *testing.T, name string, values ...float32) *graph.Variable {
	t.Helper()
	raw, err := tensor.FromFloat32(values, tensor.Shape{len(values)})
	require.NoError(t, err)
	return graph.NewParameter(name, raw)
}

func grad(t *testing.T, values ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(values, tensor.Shape{len(values)})
	require.NoError(t, err)
	return raw
}

func TestSGD_Update(t *testing.T) {
	w := param(t, "w", 1, 2, 3)
	sgd, err := learner.NewSGD([]*graph.Variable{w}, learner.Constant(0.1), learner.Options{})
	require.NoError(t, err)

	ok := sgd.Update(learner.Gradients{w: grad(t, 1, 1, 1)}, 4)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0.9, 1.9, 2.9}, w.Value().AsFloat32(), 1e-6)
	assert.Equal(t, int64(4), sgd.SamplesSeen())
}

func TestSGD_L2AndClipping(t *testing.T) {
	w := param(t, "w", 1, 0)
	sgd, err := learner.NewSGD([]*graph.Variable{w}, learner.Constant(1), learner.Options{
		L2RegularizationWeight:    1,
		GradientClippingThreshold: 1,
	})
	require.NoError(t, err)

	g := grad(t, 2, 0)
	sgd.Update(learner.Gradients{w: g}, 1)
	// (2+1, 0) clipped to unit norm.
	assert.InDeltaSlice(t, []float32{0, 0}, w.Value().AsFloat32(), 1e-6)
	assert.Equal(t, []float32{2, 0}, g.AsFloat32(), "gradients must not be mutated")
}

func TestMomentumSGD_Velocity(t *testing.T) {
	w := param(t, "w", 0)
	m, err := learner.NewMomentumSGD([]*graph.Variable{w}, learner.MomentumConfig{
		Schedule: learner.Constant(1),
		Momentum: 0.5,
	})
	require.NoError(t, err)

	grads := learner.Gradients{w: grad(t, 1)}
	m.Update(grads, 1) // v=1, w=-1
	m.Update(grads, 1) // v=1.5, w=-2.5
	assert.InDelta(t, -2.5, w.Value().AsFloat32()[0], 1e-6)

	state := m.State()
	require.Contains(t, state.Tensors, "velocity.0")
	assert.InDelta(t, 1.5, state.Tensors["velocity.0"].AsFloat32()[0], 1e-6)
	assert.Equal(t, int64(2), state.Counters["updates"])
}

func TestAdam_FirstStep(t *testing.T) {
	w := param(t, "w", 1, -1)
	a, err := learner.NewAdam([]*graph.Variable{w}, learner.AdamConfig{Schedule: learner.Constant(0.1)})
	require.NoError(t, err)

	a.Update(learner.Gradients{w: grad(t, 0.5, -2)}, 1)
	// First bias-corrected step moves each weight by ~lr against the gradient sign.
	assert.InDeltaSlice(t, []float32{0.9, -0.9}, w.Value().AsFloat32(), 1e-4)
	assert.Equal(t, int64(1), a.State().Counters["timestep"])
}

func TestAdam_StateRoundTripContinuesIdentically(t *testing.T) {
	newPair := func() (*graph.Variable, *learner.Adam) {
		w := param(t, "w", 1, 2)
		a, err := learner.NewAdam([]*graph.Variable{w}, learner.AdamConfig{Schedule: learner.Constant(0.01)})
		require.NoError(t, err)
		return w, a
	}
	w1, a1 := newPair()
	for range 3 {
		a1.Update(learner.Gradients{w1: grad(t, 0.3, -0.7)}, 2)
	}

	w2, a2 := newPair()
	require.NoError(t, w2.Value().CopyFrom(w1.Value()))
	require.NoError(t, a2.Restore(a1.State()))

	a1.Update(learner.Gradients{w1: grad(t, 0.1, 0.1)}, 2)
	a2.Update(learner.Gradients{w2: grad(t, 0.1, 0.1)}, 2)
	assert.Equal(t, w1.Value().AsFloat32(), w2.Value().AsFloat32())
	assert.Equal(t, a1.SamplesSeen(), a2.SamplesSeen())
}

func TestLearner_RestoreRejectsMismatch(t *testing.T) {
	w := param(t, "w", 1, 2)
	sgd, err := learner.NewSGD([]*graph.Variable{w}, learner.Constant(0.1), learner.Options{})
	require.NoError(t, err)
	m, err := learner.NewMomentumSGD([]*graph.Variable{w}, learner.MomentumConfig{Schedule: learner.Constant(0.1)})
	require.NoError(t, err)

	require.ErrorIs(t, m.Restore(sgd.State()), learner.ErrStateMismatch)

	bad := m.State()
	bad.Tensors["velocity.0"] = tensor.Zeros(tensor.Shape{3})
	require.ErrorIs(t, m.Restore(bad), learner.ErrStateMismatch)
}

func TestLearner_ValidateMissingGradient(t *testing.T) {
	w := param(t, "w", 1)
	b := param(t, "b", 1)
	sgd, err := learner.NewSGD([]*graph.Variable{w, b}, learner.Constant(0.1), learner.Options{})
	require.NoError(t, err)

	require.ErrorIs(t, sgd.Validate(learner.Gradients{w: grad(t, 1)}), learner.ErrMissingGradient)
	require.ErrorIs(t, sgd.Validate(learner.Gradients{w: grad(t, 1), b: grad(t, 1, 2)}), learner.ErrGradientShape)
}

func TestSchedules(t *testing.T) {
	per, err := learner.PerSamples(10, 0.1, 0.01)
	require.NoError(t, err)
	r, _ := per.Rate(5)
	assert.Equal(t, 0.1, r)
	r, _ = per.Rate(10)
	assert.Equal(t, 0.01, r)
	r, _ = per.Rate(1000)
	assert.Equal(t, 0.01, r)

	lim := learner.Limited(learner.Constant(0.5), 100)
	_, ok := lim.Rate(99)
	assert.True(t, ok)
	_, ok = lim.Rate(100)
	assert.False(t, ok)

	cos, err := learner.Cosine(1, 0, 100)
	require.NoError(t, err)
	r, _ = cos.Rate(0)
	assert.InDelta(t, 1, r, 1e-9)
	r, _ = cos.Rate(50)
	assert.InDelta(t, 0.5, r, 1e-9)
	r, _ = cos.Rate(100)
	assert.InDelta(t, 1, r, 1e-9, "restarts after a period")

	_, err = learner.Cosine(0.1, 1, 10)
	require.Error(t, err)
	_, err = learner.PerSamples(0, 1)
	require.Error(t, err)
}

func TestSet_RejectsOverlap(t *testing.T) {
	w := param(t, "w", 1)
	a, _ := learner.NewSGD([]*graph.Variable{w}, learner.Constant(0.1), learner.Options{})
	b, _ := learner.NewSGD([]*graph.Variable{w}, learner.Constant(0.1), learner.Options{})
	_, err := learner.NewSet(a, b)
	require.ErrorIs(t, err, learner.ErrOverlappingParameters)
}

func TestSet_ApplyIsAllOrNothing(t *testing.T) {
	w := param(t, "w", 1)
	b := param(t, "b", 1)
	lw, _ := learner.NewSGD([]*graph.Variable{w}, learner.Constant(0.1), learner.Options{})
	lb, _ := learner.NewSGD([]*graph.Variable{b}, learner.Constant(0.1), learner.Options{})
	set, err := learner.NewSet(lw, lb)
	require.NoError(t, err)

	_, err = set.Apply(learner.Gradients{w: grad(t, 1)}, 1)
	require.ErrorIs(t, err, learner.ErrMissingGradient)
	assert.Equal(t, float32(1), w.Value().AsFloat32()[0], "first learner must not update when the second fails")
	assert.Zero(t, lw.SamplesSeen())
}

func TestSet_FalseOnlyWhenAllExhausted(t *testing.T) {
	w := param(t, "w", 1)
	b := param(t, "b", 1)
	short, _ := learner.NewSGD([]*graph.Variable{w}, learner.Limited(learner.Constant(0.1), 2), learner.Options{})
	long, _ := learner.NewSGD([]*graph.Variable{b}, learner.Limited(learner.Constant(0.1), 4), learner.Options{})
	set, err := learner.NewSet(short, long)
	require.NoError(t, err)
	grads := learner.Gradients{w: grad(t, 1), b: grad(t, 1)}

	var results []bool
	for range 3 {
		ok, err := set.Apply(grads, 2)
		require.NoError(t, err)
		results = append(results, ok)
	}
	assert.Equal(t, []bool{true, true, false}, results)
	assert.True(t, set.Exhausted())
	assert.True(t, math.Abs(float64(w.Value().AsFloat32()[0])-0.9) < 1e-6, "short learner stopped after one step")
	assert.InDelta(t, 0.8, b.Value().AsFloat32()[0], 1e-6)
}

func TestSet_RestoreRollsBack(t *testing.T) {
	w := param(t, "w", 1)
	b := param(t, "b", 1, 2)
	lw, _ := learner.NewMomentumSGD([]*graph.Variable{w}, learner.MomentumConfig{Schedule: learner.Constant(0.1)})
	lb, _ := learner.NewMomentumSGD([]*graph.Variable{b}, learner.MomentumConfig{Schedule: learner.Constant(0.1)})
	set, err := learner.NewSet(lw, lb)
	require.NoError(t, err)
	_, err = set.Apply(learner.Gradients{w: grad(t, 1), b: grad(t, 1, 1)}, 3)
	require.NoError(t, err)

	states := set.States()
	states[0].Counters["samples_seen"] = 100
	states[1].Kind = "adam"
	require.ErrorIs(t, set.Restore(states), learner.ErrStateMismatch)
	assert.Equal(t, int64(3), lw.SamplesSeen())
}
