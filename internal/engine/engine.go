// Package engine defines the contract between the trainer and a compute
// engine that runs forward and backward passes.
package engine

import (
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
)

// Engine evaluates functions over a normalized minibatch.
//
// Implementations may panic (for instance with exceptions.Panicf) on internal
// invariant violations; the trainer converts such panics into errors.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Devices lists the devices the engine can run on. Empty means CPU only.
	Devices() []device.Descriptor

	// Train runs Model and Loss (and Eval when set) forward, then computes
	// the gradient of the per-sample mean loss for every requested parameter.
	// It must not modify parameter values.
	Train(req *Request) (*Result, error)

	// Evaluate runs Eval forward only.
	Evaluate(req *Request) (*Evaluation, error)
}

// Request describes one engine call.
type Request struct {
	Batch  *adapter.Batch
	Device device.Descriptor

	Model graph.Function
	Loss  graph.Function
	Eval  graph.Function // may be nil for Train

	// Parameters to compute gradients for.
	Parameters []*graph.Variable
	// Outputs to return in packed form, in addition to the loss.
	Outputs []*graph.Variable
}

// Result of a training pass.
type Result struct {
	LossSum   float64 // loss summed over samples
	EvalSum   float64 // evaluation summed over samples, 0 without Eval
	Samples   int     // number of samples the sums cover
	Gradients map[*graph.Variable]*tensor.RawTensor
	Outputs   map[*graph.Variable]*adapter.Packed
}

// Evaluation is the result of an evaluation pass.
type Evaluation struct {
	EvalSum float64
	Samples int
}
