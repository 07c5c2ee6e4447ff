package loop

import (
	"context"
	"io"

	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/reader"
	"github.com/naresrac/CNTK/internal/trainer"
	"github.com/pkg/errors"
)

// Evaluate runs the evaluation function of tr over src until io.EOF and
// returns the average per sample along with the number of samples.
func Evaluate(ctx context.Context, tr *trainer.Trainer, src reader.Source, minibatchSize int, dev *device.Descriptor) (average float64, samples int, err error) {
	eval := tr.EvaluationFunction()
	if eval == nil {
		return 0, 0, errors.New("Evaluate: trainer has no evaluation function")
	}
	inputs := eval.Arguments()
	var sum float64
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		mb, err := src.Next(minibatchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, errors.WithMessage(err, "Evaluate: failed reading minibatch")
		}
		args, err := mb.Arguments(inputs)
		if err != nil {
			return 0, 0, err
		}
		avg, err := tr.TestMinibatch(args, nil, dev)
		if err != nil {
			return 0, 0, errors.WithMessagef(err, "Evaluate: after %d samples", samples)
		}
		sum += avg * float64(mb.NumSamples)
		samples += mb.NumSamples
	}
	if samples == 0 {
		return 0, 0, errors.New("Evaluate: source produced no samples")
	}
	return sum / float64(samples), samples, nil
}
