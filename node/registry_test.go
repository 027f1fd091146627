package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/store"
)

type fakeConfig struct {
	greeting string
}

func (c *fakeConfig) DefaultInputs() []DefaultLink {
	return []DefaultLink{{ThisPort: "in", OtherNode: "request", OtherPort: "body"}}
}

type fakeNode struct{ cfg *fakeConfig }

func (n *fakeNode) Run(ctx context.Context, h host.Host, in Input) store.NodeState {
	return store.Done(nil)
}

func (n *fakeNode) Resume(ctx context.Context, h host.Host, in Input) store.NodeState {
	return store.Done(nil)
}

type fakeFactory struct{}

func (fakeFactory) NewConfig(name string, inputs, outputs []string, raw map[string]any) (Config, error) {
	greeting, _ := raw["greeting"].(string)
	return &fakeConfig{greeting: greeting}, nil
}

func (fakeFactory) NewNode(cfg Config) (Node, error) {
	return &fakeNode{cfg: cfg.(*fakeConfig)}, nil
}

func (fakeFactory) DefaultInputPorts() PortConfig {
	return PortConfig{Defaults: []string{"in"}}
}

func (fakeFactory) DefaultOutputPorts() PortConfig {
	return PortConfig{Defaults: []string{"out"}, UserDefinedPorts: true}
}

func withCleanRegistry(t *testing.T) {
	t.Helper()
	reset()
	t.Cleanup(reset)
}

func TestRegisterAndLookup(t *testing.T) {
	withCleanRegistry(t)
	Register("fake", fakeFactory{})

	assert.True(t, IsValidType("fake"))
	assert.False(t, IsValidType("nope"))
	assert.Equal(t, []string{"fake"}, RegisteredTypes())

	cfg, err := NewConfig("fake", "n1", nil, nil, map[string]any{"greeting": "hi"})
	require.NoError(t, err)
	fc := cfg.(*fakeConfig)
	assert.Equal(t, "hi", fc.greeting)

	n, err := NewNode("fake", cfg)
	require.NoError(t, err)
	require.NotNil(t, n)

	st := n.Run(context.Background(), nil, Input{})
	assert.Equal(t, store.KindDone, st.Kind)

	di, ok := cfg.(DefaultInputsProvider)
	require.True(t, ok)
	assert.Equal(t, "request", di.DefaultInputs()[0].OtherNode)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	withCleanRegistry(t)
	Register("fake", fakeFactory{})
	assert.Panics(t, func() {
		Register("fake", fakeFactory{})
	})
}

func TestUnknownTypeErrors(t *testing.T) {
	withCleanRegistry(t)
	_, err := NewConfig("missing", "n1", nil, nil, nil)
	require.Error(t, err)
	var ute *UnknownTypeError
	assert.ErrorAs(t, err, &ute)

	_, err = DefaultInputPorts("missing")
	require.Error(t, err)

	_, err = DefaultOutputPorts("missing")
	require.Error(t, err)

	_, err = NewNode("missing", nil)
	require.Error(t, err)
}

func TestPortConfigPortList(t *testing.T) {
	pc := PortConfig{Defaults: []string{"a", "b"}, UserDefinedPorts: true}
	assert.Equal(t, []string{"a", "b", "c"}, pc.PortList([]string{"a", "c"}))

	closed := PortConfig{Defaults: []string{"a"}}
	assert.Equal(t, []string{"a"}, closed.PortList([]string{"a", "extra"}))
}
