package reference

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
)

// CriterionKind selects the per-sample formula of a Criterion.
type CriterionKind int

const (
	// SquaredError is Σ (z - y)².
	SquaredError CriterionKind = iota
	// CrossEntropyWithSoftmax is -Σ y·log softmax(z).
	CrossEntropyWithSoftmax
	// ClassificationError is 1 when argmax z differs from argmax y, else 0.
	ClassificationError
)

// String returns the criterion name.
func (k CriterionKind) String() string {
	switch k {
	case SquaredError:
		return "SquaredError"
	case CrossEntropyWithSoftmax:
		return "CrossEntropyWithSoftmax"
	case ClassificationError:
		return "ClassificationError"
	default:
		return fmt.Sprintf("CriterionKind(%d)", int(k))
	}
}

// differentiable reports whether the criterion can serve as a loss.
func (k CriterionKind) differentiable() bool { return k != ClassificationError }

// Criterion compares a Dense model's output with a label input. It serves
// as loss or evaluation function.
type Criterion struct {
	kind   CriterionKind
	model  *Dense
	labels *graph.Variable
	output *graph.Variable
}

// NewCriterion creates a criterion of model against labels, whose samples
// must have the model's output shape.
func NewCriterion(kind CriterionKind, model *Dense, labels *graph.Variable) (*Criterion, error) {
	if model == nil {
		return nil, fmt.Errorf("%s: nil model", kind)
	}
	if labels == nil || labels.Kind() != graph.Input {
		return nil, fmt.Errorf("%s: labels must be an input variable", kind)
	}
	if !labels.Shape().Equal(model.output.Shape()) {
		return nil, fmt.Errorf("%s: labels shape %s does not match model output %s",
			kind, labels.Shape(), model.output.Shape())
	}
	return &Criterion{
		kind:   kind,
		model:  model,
		labels: labels,
		output: graph.NewOutput(kind.String(), tensor.Shape{1}),
	}, nil
}

// Kind returns the criterion formula.
func (c *Criterion) Kind() CriterionKind { return c.kind }

// Labels returns the label input.
func (c *Criterion) Labels() *graph.Variable { return c.labels }

// Output returns the per-sample value variable.
func (c *Criterion) Output() *graph.Variable { return c.output }

// Name implements graph.Function.
func (c *Criterion) Name() string { return c.kind.String() }

// Arguments implements graph.Function: the model input, then the labels.
func (c *Criterion) Arguments() []*graph.Variable {
	return []*graph.Variable{c.model.input, c.labels}
}

// Outputs implements graph.Function.
func (c *Criterion) Outputs() []*graph.Variable { return []*graph.Variable{c.output} }

// Parameters implements graph.Function.
func (c *Criterion) Parameters() []*graph.Variable { return c.model.Parameters() }

// value returns the criterion for one sample and, when dz is not nil, writes
// the gradient with respect to z into it.
func (c *Criterion) value(z, y, dz []float32) float64 {
	switch c.kind {
	case SquaredError:
		var sum float64
		for i := range z {
			d := float64(z[i] - y[i])
			sum += d * d
			if dz != nil {
				dz[i] = float32(2 * d)
			}
		}
		return sum

	case CrossEntropyWithSoftmax:
		maxZ := z[0]
		for _, v := range z[1:] {
			maxZ = max(maxZ, v)
		}
		var sumExp float64
		for _, v := range z {
			sumExp += math.Exp(float64(v - maxZ))
		}
		logSumExp := float64(maxZ) + math.Log(sumExp)
		var loss, ySum float64
		for i := range z {
			loss -= float64(y[i]) * (float64(z[i]) - logSumExp)
			ySum += float64(y[i])
		}
		if dz != nil {
			for i := range z {
				softmax := math.Exp(float64(z[i]) - logSumExp)
				dz[i] = float32(ySum*softmax - float64(y[i]))
			}
		}
		return loss

	case ClassificationError:
		if argmax(z) != argmax(y) {
			return 1
		}
		return 0
	}
	exceptions.Panicf("unknown criterion %s", c.kind)
	return 0
}

func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
