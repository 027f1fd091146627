package jsontransform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

func newNode(t *testing.T, mappings []any) *Node {
	t.Helper()
	cfg, err := Factory{}.NewConfig("t1", nil, nil, map[string]any{"mappings": mappings})
	require.NoError(t, err)
	n, err := Factory{}.NewNode(cfg)
	require.NoError(t, err)
	return n.(*Node)
}

func TestProjectAndRenameFields(t *testing.T) {
	n := newNode(t, []any{
		map[string]any{"from": "user.name", "to": "customer_name"},
		map[string]any{"from": "user.id", "to": "id"},
	})
	in := payload.JSON(map[string]any{"user": map[string]any{"name": "ada", "id": "42"}})
	st := n.Run(context.Background(), nil, node.Input{Data: []*payload.Payload{&in}})
	require.Equal(t, store.KindDone, st.Kind)
	assert.Equal(t, map[string]any{"customer_name": "ada", "id": "42"}, st.Ports[0].JSONValue())
}

func TestDefaultInjectionWhenFieldMissing(t *testing.T) {
	n := newNode(t, []any{
		map[string]any{"from": "plan", "to": "plan", "default": "free"},
	})
	in := payload.JSON(map[string]any{})
	st := n.Run(context.Background(), nil, node.Input{Data: []*payload.Payload{&in}})
	require.Equal(t, store.KindDone, st.Kind)
	assert.Equal(t, map[string]any{"plan": "free"}, st.Ports[0].JSONValue())
}

func TestStaticDefaultWithNoSource(t *testing.T) {
	n := newNode(t, []any{
		map[string]any{"to": "version", "default": float64(1)},
	})
	st := n.Run(context.Background(), nil, node.Input{Data: []*payload.Payload{nil}})
	require.Equal(t, store.KindDone, st.Kind)
	assert.Equal(t, map[string]any{"version": float64(1)}, st.Ports[0].JSONValue())
}
