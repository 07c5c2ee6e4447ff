package graph_test

import (
	"strings"
	"testing"

	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableUIDsAreUnique(t *testing.T) {
	a := graph.NewInput("x", tensor.Shape{2})
	b := graph.NewInput("x", tensor.Shape{2})
	assert.NotEqual(t, a.UID(), b.UID())
	assert.True(t, strings.HasPrefix(a.UID(), "Input"))
	assert.True(t, a.Matches("x"))
	assert.True(t, a.Matches(a.UID()))
	assert.False(t, a.Matches(b.UID()))
}

func TestParameterSharesValue(t *testing.T) {
	w := tensor.Zeros(tensor.Shape{2, 3})
	p := graph.NewParameter("W", w)
	require.True(t, p.IsParameter())
	assert.Same(t, w, p.Value())
	assert.True(t, p.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, 6, p.SampleSize())
}

func TestMergeArgumentsKeepsDeclarationOrder(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1})
	y := graph.NewInput("y", tensor.Shape{1})
	z := graph.NewOutput("z", tensor.Shape{1})
	model := graph.NewFunction("model", []*graph.Variable{x}, []*graph.Variable{z}, nil)
	loss := graph.NewFunction("loss", []*graph.Variable{x, y}, nil, nil)
	eval := graph.NewFunction("eval", []*graph.Variable{y, x}, nil, nil)

	merged := graph.MergeArguments(model, loss, eval)
	assert.Equal(t, []*graph.Variable{x, y}, merged)
}

func TestFindPrefersUID(t *testing.T) {
	a := graph.NewInput("first", tensor.Shape{1})
	b := graph.NewInput(a.UID(), tensor.Shape{1}) // name collides with a's uid
	got, ok := graph.Find([]*graph.Variable{b, a}, a.UID())
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = graph.Find([]*graph.Variable{a}, "missing")
	assert.False(t, ok)
}
