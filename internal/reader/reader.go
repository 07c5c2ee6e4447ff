// Package reader produces minibatches from data files for the training loop
// and the command line.
//
// A Source hands out minibatches keyed by stream name. Streams are bound to
// trainer inputs by variable name, see Minibatch.Arguments.
package reader

import (
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/pkg/errors"
)

// Source produces minibatches. Next returns io.EOF once the data is used up.
type Source interface {
	// Next returns a minibatch of at most maxSamples samples. A single
	// sequence longer than maxSamples is returned on its own.
	Next(maxSamples int) (*Minibatch, error)
}

// Minibatch is a batch of sequences for a set of named streams.
type Minibatch struct {
	Streams map[string]*adapter.Value
	// Starts has one flag per sequence; nil means every sequence starts new.
	Starts []bool
	// NumSamples counts the steps of the first stream.
	NumSamples int
	// EndOfSweep is set on the last minibatch of a pass over the data.
	EndOfSweep bool
}

// Arguments binds the streams to inputs by variable name. Streams without a
// matching input are ignored; an input without a stream is an error.
func (m *Minibatch) Arguments(inputs []*graph.Variable) (adapter.Arguments, error) {
	bound := make(adapter.Bound, len(inputs))
	for _, in := range inputs {
		value, ok := m.Streams[in.Name()]
		if !ok {
			return nil, errors.Wrapf(adapter.ErrShapeMismatch, "no stream named %q for input %s", in.Name(), in)
		}
		bound[in] = value
	}
	if m.Starts == nil {
		return bound, nil
	}
	return adapter.WithStarts{Args: bound, Starts: m.Starts}, nil
}
