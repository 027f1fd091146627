package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleGraph() *Graph {
	names := []string{"a", "b", "c"}
	ins := [][]string{{}, {"in"}, {"in1", "in2"}}
	outs := [][]string{{"out"}, {"out"}, {}}
	return New(names, ins, outs)
}

func TestAddAndQuery(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Add("a", "out", "b", "in"))

	assert.True(t, g.HasDependents(0, 0))
	assert.True(t, g.HasProvider(1, 0))
	assert.False(t, g.HasProvider(2, 0))

	prov, ok := g.Provider(1, 0)
	require.True(t, ok)
	assert.Equal(t, Port{Node: 0, Port: 0}, prov)

	deps := g.Dependents(0, 0)
	require.Len(t, deps, 1)
	assert.Equal(t, Port{Node: 1, Port: 0}, deps[0])
}

func TestFanOut(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Add("a", "out", "b", "in"))
	require.NoError(t, g.Add("a", "out", "c", "in1"))

	deps := g.Dependents(0, 0)
	assert.Len(t, deps, 2)
}

func TestAlreadyConnected(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Add("a", "out", "c", "in1"))
	err := g.Add("b", "out", "c", "in1")
	require.Error(t, err)

	var ace *AlreadyConnectedError
	require.ErrorAs(t, err, &ace)
	assert.Equal(t, "c", ace.ThisNode)
	assert.Equal(t, "in1", ace.ThisPort)
	assert.Equal(t, "a", ace.OtherNode)
}

func TestUnknownNodeOrPort(t *testing.T) {
	g := simpleGraph()
	assert.Error(t, g.Add("nope", "out", "b", "in"))
	assert.Error(t, g.Add("a", "nope", "b", "in"))
	assert.Error(t, g.Add("a", "out", "b", "nope"))
}

func TestEachInputEachOutput(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Add("a", "out", "c", "in2"))

	inputs := g.EachInput(2)
	require.Len(t, inputs, 2)
	assert.Nil(t, inputs[0])
	require.NotNil(t, inputs[1])
	assert.Equal(t, Port{Node: 0, Port: 0}, *inputs[1])

	outputs := g.EachOutput(0)
	require.Len(t, outputs, 1)
	assert.Len(t, outputs[0], 1)
}
