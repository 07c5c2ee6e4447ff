package trainer_test

import (
	"fmt"

	"github.com/naresrac/CNTK/learner"
	"github.com/naresrac/CNTK/tensor"
	"github.com/naresrac/CNTK/trainer"
)

func Example() {
	x := trainer.NewInput("features", tensor.Shape{2})
	y := trainer.NewInput("labels", tensor.Shape{2})
	model, _ := trainer.NewDense("dense", x, 2, 42)
	loss, _ := trainer.NewCriterion(trainer.CrossEntropyWithSoftmax, model, y)
	eval, _ := trainer.NewCriterion(trainer.ClassificationError, model, y)
	sgd, _ := learner.NewSGD(model.Parameters(), learner.Constant(0.5), learner.Options{})

	t, err := trainer.New(trainer.NewSequentialReferenceEngine(), model, loss, eval, []learner.Learner{sgd})
	if err != nil {
		fmt.Println(err)
		return
	}
	batch := trainer.Named{
		"features": trainer.FromSamples([]float32{1, 0}, []float32{0, 1}),
		"labels":   trainer.FromSamples([]float32{1, 0}, []float32{0, 1}),
	}
	for range 3 {
		if _, err := t.TrainMinibatch(batch, nil); err != nil {
			fmt.Println(err)
			return
		}
	}
	fmt.Println(t.PreviousMinibatchSampleCount(), t.TotalNumberOfSamplesSeen())
	// Output: 2 6
}
