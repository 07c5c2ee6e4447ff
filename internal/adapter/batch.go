package adapter

import (
	"fmt"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Batch is the canonical minibatch form: one validated Value per declared
// input, plus the sequence start flags.
type Batch struct {
	inputs       []*graph.Variable
	values       map[*graph.Variable]*Value
	steps        map[*graph.Variable][]int
	starts       []bool // nil means every sequence starts new
	numSequences int
}

// Inputs returns the declared inputs, in order.
func (b *Batch) Inputs() []*graph.Variable { return b.inputs }

// Value returns the data bound to v, nil if v is not an input of the batch.
func (b *Batch) Value(v *graph.Variable) *Value { return b.values[v] }

// Steps returns the per-sequence step counts of v.
func (b *Batch) Steps(v *graph.Variable) []int { return b.steps[v] }

// NumSequences returns the number of sequences, the same for every input.
func (b *Batch) NumSequences() int { return b.numSequences }

// NumSamples returns the total number of steps of v across all sequences.
func (b *Batch) NumSamples(v *graph.Variable) int {
	total := 0
	for _, n := range b.steps[v] {
		total += n
	}
	return total
}

// HasExplicitStarts reports whether start flags were attached.
func (b *Batch) HasExplicitStarts() bool { return b.starts != nil }

// Starts returns one flag per sequence; true marks the start of a new sequence.
func (b *Batch) Starts() []bool {
	out := make([]bool, b.numSequences)
	if b.starts == nil {
		for i := range out {
			out[i] = true
		}
		return out
	}
	copy(out, b.starts)
	return out
}

// Normalize resolves args against the declared inputs.
//
// It fails with ErrShapeMismatch if a positional list has the wrong length, a
// named key matches no input, an input has no data, sequence data is not a
// whole number of samples, or the inputs disagree on the number of sequences.
// Start flags carried by a WithStarts variant are attached as with
// AttachSequenceStarts.
func Normalize(inputs []*graph.Variable, args Arguments) (*Batch, error) {
	if args == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "no minibatch arguments")
	}
	if ws, ok := args.(WithStarts); ok {
		if _, nested := ws.Args.(WithStarts); nested {
			return nil, errors.Wrap(ErrShapeMismatch, "sequence starts given twice")
		}
		b, err := Normalize(inputs, ws.Args)
		if err != nil {
			return nil, err
		}
		return AttachSequenceStarts(b, ws.Starts)
	}

	bound, err := bind(inputs, args)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		inputs:       inputs,
		values:       bound,
		steps:        make(map[*graph.Variable][]int, len(inputs)),
		numSequences: -1,
	}
	for _, in := range inputs {
		value := bound[in]
		if b.numSequences < 0 {
			b.numSequences = value.NumSequences()
		} else if value.NumSequences() != b.numSequences {
			return nil, errors.Wrapf(ErrShapeMismatch, "input %s has %d sequences, %s has %d",
				in, value.NumSequences(), inputs[0], b.numSequences)
		}
		steps, err := sequenceSteps(in, value)
		if err != nil {
			return nil, err
		}
		b.steps[in] = steps
	}
	if b.numSequences <= 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "empty minibatch")
	}
	klog.V(2).Infof("normalized minibatch: %d inputs, %d sequences", len(inputs), b.numSequences)
	return b, nil
}

// bind maps every declared input to its value.
func bind(inputs []*graph.Variable, args Arguments) (map[*graph.Variable]*Value, error) {
	bound := make(map[*graph.Variable]*Value, len(inputs))
	switch a := args.(type) {
	case Positional:
		if len(a) != len(inputs) {
			return nil, errors.Wrapf(ErrShapeMismatch, "got %d positional inputs, the model declares %d (%s)",
				len(a), len(inputs), describe(inputs))
		}
		for i, in := range inputs {
			bound[in] = a[i]
		}
	case Named:
		for key, value := range a {
			in, ok := graph.Find(inputs, key)
			if !ok {
				return nil, errors.Wrapf(ErrShapeMismatch, "%q does not name a declared input (%s)", key, describe(inputs))
			}
			if _, dup := bound[in]; dup {
				return nil, errors.Wrapf(ErrShapeMismatch, "input %s given more than once", in)
			}
			bound[in] = value
		}
	case Bound:
		declared := make(map[*graph.Variable]bool, len(inputs))
		for _, in := range inputs {
			declared[in] = true
		}
		for in, value := range a {
			if !declared[in] {
				return nil, errors.Wrapf(ErrShapeMismatch, "%s is not a declared input (%s)", in, describe(inputs))
			}
			bound[in] = value
		}
	default:
		return nil, errors.Wrapf(ErrShapeMismatch, "unsupported arguments type %T", args)
	}
	for _, in := range inputs {
		if bound[in] == nil {
			return nil, errors.Wrapf(ErrShapeMismatch, "no data for input %s", in)
		}
	}
	return bound, nil
}

func sequenceSteps(in *graph.Variable, value *Value) ([]int, error) {
	size := in.SampleSize()
	steps := make([]int, len(value.Sequences))
	for i, seq := range value.Sequences {
		if len(seq) == 0 || len(seq)%size != 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "input %s sequence %d has %d elements, not a positive multiple of the sample shape %s",
				in, i, len(seq), in.Shape())
		}
		steps[i] = len(seq) / size
	}
	return steps, nil
}

// AttachSequenceStarts returns a copy of b carrying starts. It fails with
// ErrLengthMismatch if len(starts) differs from the sequence count of any
// input. A nil starts restores the default (every sequence starts new).
func AttachSequenceStarts(b *Batch, starts []bool) (*Batch, error) {
	if starts != nil {
		for _, in := range b.inputs {
			if n := b.values[in].NumSequences(); len(starts) != n {
				return nil, errors.Wrapf(ErrLengthMismatch, "%d sequence start flags for input %s with %d sequences",
					len(starts), in, n)
			}
		}
		starts = append([]bool(nil), starts...)
	}
	out := *b
	out.starts = starts
	return &out, nil
}

func describe(vars []*graph.Variable) string {
	s := ""
	for i, v := range vars {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(v)
	}
	return s
}
