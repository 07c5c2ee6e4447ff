// Package graph describes the functions a trainer drives: their declared
// input variables, their outputs and the parameters they own.
//
// The compute itself lives in an engine; this package is the read-only view
// the trainer, the adapter and the learners share.
package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/naresrac/CNTK/internal/tensor"
)

// Kind distinguishes the roles a Variable can play.
type Kind int

const (
	// Input variables are fed from minibatch data.
	Input Kind = iota
	// Output variables are produced by a function.
	Output
	// Parameter variables hold trainable values updated by learners.
	Parameter
)

// String returns the name used as the uid prefix.
func (k Kind) String() string {
	switch k {
	case Input:
		return "Input"
	case Output:
		return "Output"
	case Parameter:
		return "Parameter"
	default:
		return "Unknown"
	}
}

var uidCounter atomic.Int64

// Variable is a named, shaped slot of a function.
//
// Every Variable gets a process-unique id (e.g. "Input3") at creation. Names
// are chosen by the caller and need not be unique. Shape is the per-sample
// shape for inputs and outputs, and the full value shape for parameters.
type Variable struct {
	uid   string
	name  string
	kind  Kind
	shape tensor.Shape
	value *tensor.RawTensor // parameters only
}

func newVariable(kind Kind, name string, shape tensor.Shape) *Variable {
	return &Variable{
		uid:   fmt.Sprintf("%s%d", kind, uidCounter.Add(1)),
		name:  name,
		kind:  kind,
		shape: shape.Clone(),
	}
}

// NewInput creates an input variable whose samples have the given shape.
func NewInput(name string, shape tensor.Shape) *Variable {
	return newVariable(Input, name, shape)
}

// NewOutput creates an output variable whose samples have the given shape.
func NewOutput(name string, shape tensor.Shape) *Variable {
	return newVariable(Output, name, shape)
}

// NewParameter creates a trainable parameter holding value.
//
// The value is shared: learners update it in place and the engine reads it
// on every forward pass.
func NewParameter(name string, value *tensor.RawTensor) *Variable {
	v := newVariable(Parameter, name, value.Shape())
	v.value = value
	return v
}

// UID returns the process-unique identifier.
func (v *Variable) UID() string { return v.uid }

// Name returns the user supplied name.
func (v *Variable) Name() string { return v.name }

// Kind returns the variable role.
func (v *Variable) Kind() Kind { return v.kind }

// Shape returns the per-sample shape (inputs, outputs) or value shape (parameters).
func (v *Variable) Shape() tensor.Shape { return v.shape }

// SampleSize is the number of float32 elements in one sample.
func (v *Variable) SampleSize() int { return v.shape.NumElements() }

// Value returns the parameter tensor, nil for non-parameters.
func (v *Variable) Value() *tensor.RawTensor { return v.value }

// IsParameter reports whether v is trainable.
func (v *Variable) IsParameter() bool { return v.kind == Parameter }

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v.name == "" {
		return v.uid
	}
	return fmt.Sprintf("%s(%s)", v.name, v.uid)
}

// Matches reports whether key names this variable, by uid or by name.
func (v *Variable) Matches(key string) bool {
	return key == v.uid || (v.name != "" && key == v.name)
}
