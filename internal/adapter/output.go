package adapter

import (
	"iter"
	"sync/atomic"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Packed is the engine-side form of an output: all steps of all sequences
// stacked along the first axis, plus the step count of each sequence.
type Packed struct {
	data  *tensor.RawTensor
	steps []int
}

// NewPacked validates that data holds exactly sum(steps) samples.
func NewPacked(data *tensor.RawTensor, steps []int) (*Packed, error) {
	shape := data.Shape()
	if len(shape) == 0 || data.DType() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "packed output must be a float32 tensor with a step axis, got %s%s",
			data.DType(), shape)
	}
	total := 0
	for _, n := range steps {
		if n <= 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "sequence of %d steps", n)
		}
		total += n
	}
	if total != shape[0] {
		return nil, errors.Wrapf(ErrShapeMismatch, "packed output has %d steps, sequences account for %d", shape[0], total)
	}
	return &Packed{data: data, steps: append([]int(nil), steps...)}, nil
}

// Tensor returns the packed data.
func (p *Packed) Tensor() *tensor.RawTensor { return p.data }

// NumSequences returns the number of packed sequences.
func (p *Packed) NumSequences() int { return len(p.steps) }

func (p *Packed) split() []Sequence {
	data := p.data.AsFloat32()
	stepSize := p.data.NumElements() / p.data.Shape()[0]
	seqs := make([]Sequence, len(p.steps))
	offset := 0
	for i, n := range p.steps {
		end := offset + n*stepSize
		seqs[i] = Sequence(data[offset:end:end])
		offset = end
	}
	return seqs
}

// Sequences converts the packed outputs of the variables in order, lazily and
// in one pass: each variable is split only when the iteration reaches it and
// the sequences share memory with the packed tensors. The returned iterator
// is not restartable; ranging over it a second time yields nothing.
func Sequences(outputs map[*graph.Variable]*Packed, order []*graph.Variable) iter.Seq2[*graph.Variable, []Sequence] {
	var used atomic.Bool
	return func(yield func(*graph.Variable, []Sequence) bool) {
		if used.Swap(true) {
			klog.Warning("adapter: output sequences iterated twice, the second pass is empty")
			return
		}
		for _, v := range order {
			p, ok := outputs[v]
			if !ok {
				continue
			}
			if !yield(v, p.split()) {
				return
			}
		}
	}
}
