package adapter

import "github.com/naresrac/CNTK/internal/graph"

// Arguments is the tagged variant of accepted minibatch input forms:
// Positional, Named, Bound and WithStarts.
type Arguments interface {
	isArguments()
}

// Positional lists values in the declared input order.
type Positional []*Value

// Named maps input names (or uids) to values.
type Named map[string]*Value

// Bound maps input variables to values.
type Bound map[*graph.Variable]*Value

// WithStarts attaches sequence start flags to another form.
type WithStarts struct {
	Args   Arguments
	Starts []bool
}

func (Positional) isArguments() {}
func (Named) isArguments()      {}
func (Bound) isArguments()      {}
func (WithStarts) isArguments() {}

// PositionalWithStarts is Positional plus one start flag per sequence.
func PositionalWithStarts(starts []bool, values ...*Value) WithStarts {
	return WithStarts{Args: Positional(values), Starts: starts}
}

// NamedWithStarts is Named plus one start flag per sequence.
func NamedWithStarts(values map[string]*Value, starts []bool) WithStarts {
	return WithStarts{Args: Named(values), Starts: starts}
}
