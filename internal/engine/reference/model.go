// Package reference is a small pure-Go compute engine for affine models.
//
// It supports one model shape, a dense layer z = W·x + b, together with
// squared-error, softmax cross-entropy and classification-error criteria.
// Gradients are closed-form. It exists so that the trainer can be driven end
// to end without an external backend.
package reference

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
)

// Dense is the model function z = W·x + b.
//
// W has shape [out, in], b has shape [out]. The input variable's samples
// have shape [in] and the output's [out].
type Dense struct {
	name   string
	input  *graph.Variable
	weight *graph.Variable
	bias   *graph.Variable
	output *graph.Variable
}

// NewDense creates a dense layer over input with outDim outputs.
// Weights use Xavier uniform initialization drawn from a generator seeded
// with seed, biases start at zero.
func NewDense(name string, input *graph.Variable, outDim int, seed uint64) (*Dense, error) {
	if input == nil || input.Kind() != graph.Input {
		return nil, fmt.Errorf("dense %q: input must be an input variable", name)
	}
	if len(input.Shape()) != 1 {
		return nil, fmt.Errorf("dense %q: input samples must be vectors, got shape %s", name, input.Shape())
	}
	if outDim <= 0 {
		return nil, fmt.Errorf("dense %q: invalid output dimension %d", name, outDim)
	}
	inDim := input.Shape()[0]

	//nolint:gosec // weight initialization is not security-critical
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	bound := math.Sqrt(6.0 / float64(inDim+outDim))
	w := tensor.Zeros(tensor.Shape{outDim, inDim})
	for i, data := 0, w.AsFloat32(); i < len(data); i++ {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}

	return &Dense{
		name:   name,
		input:  input,
		weight: graph.NewParameter(name+".W", w),
		bias:   graph.NewParameter(name+".b", tensor.Zeros(tensor.Shape{outDim})),
		output: graph.NewOutput(name+".z", tensor.Shape{outDim}),
	}, nil
}

// Name implements graph.Function.
func (d *Dense) Name() string { return d.name }

// Arguments implements graph.Function.
func (d *Dense) Arguments() []*graph.Variable { return []*graph.Variable{d.input} }

// Outputs implements graph.Function.
func (d *Dense) Outputs() []*graph.Variable { return []*graph.Variable{d.output} }

// Parameters implements graph.Function.
func (d *Dense) Parameters() []*graph.Variable { return []*graph.Variable{d.weight, d.bias} }

// Input returns the input variable.
func (d *Dense) Input() *graph.Variable { return d.input }

// Output returns the output variable.
func (d *Dense) Output() *graph.Variable { return d.output }

// Weight returns the [out, in] weight parameter.
func (d *Dense) Weight() *graph.Variable { return d.weight }

// Bias returns the bias parameter.
func (d *Dense) Bias() *graph.Variable { return d.bias }

func (d *Dense) inDim() int  { return d.input.Shape()[0] }
func (d *Dense) outDim() int { return d.output.Shape()[0] }
