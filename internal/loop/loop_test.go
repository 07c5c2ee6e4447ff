package loop_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/engine/reference"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/loop"
	"github.com/naresrac/CNTK/internal/parallel"
	"github.com/naresrac/CNTK/internal/reader"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/naresrac/CNTK/internal/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const data = `a,b,label
1,0,0
0,1,1
1,0.1,0
0.1,1,1
0.9,0,0
0,0.9,1
1,0.2,0
0.2,1,1
`

func source(t *testing.T, sweeps int) *reader.CSVSource {
	t.Helper()
	src, err := reader.NewCSVSource(strings.NewReader(data), reader.CSVConfig{
		Streams: []reader.CSVStream{
			{Name: "x", Columns: []string{"a", "b"}},
			{Name: "y", Columns: []string{"label"}, OneHot: 2},
		},
		Sweeps: sweeps,
	})
	require.NoError(t, err)
	return src
}

func newTrainer(t *testing.T, seed uint64, schedule learner.Schedule) *trainer.Trainer {
	t.Helper()
	x := graph.NewInput("x", tensor.Shape{2})
	y := graph.NewInput("y", tensor.Shape{2})
	model, err := reference.NewDense("dense", x, 2, seed)
	require.NoError(t, err)
	loss, err := reference.NewCriterion(reference.CrossEntropyWithSoftmax, model, y)
	require.NoError(t, err)
	eval, err := reference.NewCriterion(reference.ClassificationError, model, y)
	require.NoError(t, err)
	if schedule == nil {
		schedule = learner.Constant(0.5)
	}
	sgd, err := learner.NewSGD(model.Parameters(), schedule, learner.Options{})
	require.NoError(t, err)
	eng := reference.New(reference.WithParallel(parallel.Sequential()))
	tr, err := trainer.New(eng, model, loss, eval, []learner.Learner{sgd})
	require.NoError(t, err)
	return tr
}

func TestRunSteps_UntilEndOfData(t *testing.T) {
	tr := newTrainer(t, 1, nil)
	l := loop.New(tr, 3, nil)
	var order []string
	var steps []*loop.Step
	l.OnStart("start", 0, func(*loop.Loop) error { order = append(order, "start"); return nil })
	l.OnStep("late", 1, func(*loop.Loop, *loop.Step) error { order = append(order, "late"); return nil })
	l.OnStep("early", -1, func(_ *loop.Loop, s *loop.Step) error {
		order = append(order, "early")
		steps = append(steps, s)
		return nil
	})
	l.OnEnd("end", 0, func(_ *loop.Loop, r loop.StopReason) error {
		order = append(order, "end:"+r.String())
		return nil
	})

	reason, err := l.RunSteps(context.Background(), source(t, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, loop.EndOfData, reason)
	assert.Equal(t, 3, l.LoopStep)
	assert.Equal(t, 1, l.Sweeps)
	assert.Equal(t, []string{"start", "early", "late", "early", "late", "early", "late", "end:end of data"}, order)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{3, 3, 2}, []int{steps[0].Samples, steps[1].Samples, steps[2].Samples})
	assert.True(t, steps[2].EndOfSweep)
	assert.Equal(t, int64(3), steps[2].Minibatch)
	assert.Equal(t, int64(8), tr.TotalNumberOfSamplesSeen())
	assert.Positive(t, l.MedianStepDuration())
}

func TestRunSteps_ResumesCount(t *testing.T) {
	tr := newTrainer(t, 1, nil)
	l := loop.New(tr, 2, nil)
	src := source(t, -1)

	reason, err := l.RunSteps(context.Background(), src, 2)
	require.NoError(t, err)
	assert.Equal(t, loop.StepsDone, reason)
	assert.Equal(t, 2, l.LoopStep)

	_, err = l.RunSteps(context.Background(), src, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, l.StartStep)
	assert.Equal(t, 5, l.LoopStep)
	assert.Equal(t, 1, l.Sweeps)
	assert.Equal(t, int64(5), tr.Minibatches())
}

func TestRunSteps_LearnersExhausted(t *testing.T) {
	tr := newTrainer(t, 1, learner.Limited(learner.Constant(0.1), 4))
	l := loop.New(tr, 3, nil)
	reason, err := l.RunSteps(context.Background(), source(t, -1), 0)
	require.NoError(t, err)
	assert.Equal(t, loop.LearnersExhausted, reason)
	assert.Equal(t, 2, l.LoopStep)
	// The step that found the learners exhausted still counts its samples.
	assert.Equal(t, int64(9), tr.TotalNumberOfSamplesSeen())
}

func TestRunSteps_Errors(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := loop.New(newTrainer(t, 1, nil), 2, nil)
		_, err := l.RunSteps(ctx, source(t, 1), 0)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, l.LoopStep)
	})
	t.Run("hook", func(t *testing.T) {
		boom := errors.New("boom")
		l := loop.New(newTrainer(t, 1, nil), 2, nil)
		ended := false
		l.OnStep("failing", 0, func(*loop.Loop, *loop.Step) error { return boom })
		l.OnEnd("end", 0, func(*loop.Loop, loop.StopReason) error { ended = true; return nil })
		_, err := l.RunSteps(context.Background(), source(t, 1), 0)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `"failing"`)
		assert.False(t, ended)
	})
	t.Run("minibatch size", func(t *testing.T) {
		l := loop.New(newTrainer(t, 1, nil), 0, nil)
		_, err := l.RunSteps(context.Background(), source(t, 1), 0)
		require.Error(t, err)
	})
}

func TestCheckpoints_SaveAndResume(t *testing.T) {
	rot, err := checkpoint.NewRotator(t.TempDir(), 2)
	require.NoError(t, err)

	tr := newTrainer(t, 1, nil)
	l := loop.New(tr, 2, nil)
	loop.AttachCheckpoints(l, rot, 3)
	_, err = l.RunSteps(context.Background(), source(t, 1), 0)
	require.NoError(t, err)

	entries, err := rot.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Step)
	assert.Equal(t, int64(4), entries[1].Step)

	resumed := newTrainer(t, 99, nil)
	ok, err := loop.Resume(resumed, rot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), resumed.Minibatches())
	assert.Equal(t, int64(8), resumed.TotalNumberOfSamplesSeen())
	for i, p := range tr.Parameters() {
		assert.Equal(t, p.Value().Data(), resumed.Parameters()[i].Value().Data())
	}
}

func TestResume_EmptyDirectory(t *testing.T) {
	rot, err := checkpoint.NewRotator(t.TempDir(), 2)
	require.NoError(t, err)
	ok, err := loop.Resume(newTrainer(t, 1, nil), rot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	tr := newTrainer(t, 1, nil)
	l := loop.New(tr, 4, nil)
	_, err := l.RunSteps(context.Background(), source(t, 20), 0)
	require.NoError(t, err)

	before := tr.PreviousMinibatchLossAverage()
	avg, n, err := loop.Evaluate(context.Background(), tr, source(t, 1), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.LessOrEqual(t, avg, 0.25, "linearly separable data is mostly learned")
	assert.Equal(t, before, tr.PreviousMinibatchLossAverage())
}
