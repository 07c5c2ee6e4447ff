package adapter

import (
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
)

// Sequence is the flattened data of one sequence: its steps laid out back to
// back, each step holding one sample of the variable's shape.
type Sequence []float32

// Value is one variable's minibatch data, one entry per sequence.
type Value struct {
	Sequences []Sequence
}

// NumSequences returns the number of sequences in the value.
func (v *Value) NumSequences() int {
	if v == nil {
		return 0
	}
	return len(v.Sequences)
}

// FromSamples builds a Value in which every sample is its own one-step
// sequence. The slices are not copied.
func FromSamples(samples ...[]float32) *Value {
	v := &Value{Sequences: make([]Sequence, len(samples))}
	for i, s := range samples {
		v.Sequences[i] = s
	}
	return v
}

// FromSequences builds a Value from already flattened sequences. The slices
// are not copied.
func FromSequences(seqs ...[]float32) *Value {
	return FromSamples(seqs...)
}

// FromTensor splits t along its first axis: every row becomes one sequence.
// Whether a row is one sample or several steps is decided when the value is
// matched against a variable's sample shape.
func FromTensor(t *tensor.RawTensor) (*Value, error) {
	shape := t.Shape()
	if len(shape) == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "a scalar tensor has no sequence axis")
	}
	if t.DType() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "tensor dtype %s, want float32", t.DType())
	}
	rows := shape[0]
	rowSize := t.NumElements() / rows
	data := t.AsFloat32()
	v := &Value{Sequences: make([]Sequence, rows)}
	for i := range rows {
		v.Sequences[i] = Sequence(data[i*rowSize : (i+1)*rowSize])
	}
	return v, nil
}
