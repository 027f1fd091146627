package property

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kong/datakit/host/simhost"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

func newNode(t *testing.T, props map[string]any) *Node {
	t.Helper()
	cfg, err := Factory{}.NewConfig("p1", nil, nil, props)
	require.NoError(t, err)
	n, err := Factory{}.NewNode(cfg)
	require.NoError(t, err)
	return n.(*Node)
}

func TestNewConfigRequiresPropertyAttribute(t *testing.T) {
	_, err := Factory{}.NewConfig("p1", nil, nil, map[string]any{})
	assert.Error(t, err)
}

func TestNewConfigSplitsDottedPath(t *testing.T) {
	cfg, err := Factory{}.NewConfig("p1", nil, nil, map[string]any{"property": "ngx.ctx.kong_request_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ngx", "ctx", "kong_request_id"}, cfg.(*Config).Path)
}

func TestGetUnsetPropertyReturnsNull(t *testing.T) {
	n := newNode(t, map[string]any{"property": "ngx.missing"})
	h := simhost.New(nil, nil)

	st := n.Run(context.Background(), h, node.Input{Data: nil})
	require.Equal(t, store.KindDone, st.Kind)
	require.Len(t, st.Ports, 1)
	assert.Nil(t, st.Ports[0].JSONValue())
}

func TestGetSetPropertyRoundTrip(t *testing.T) {
	n := newNode(t, map[string]any{"property": "ngx.kong_request_id"})
	h := simhost.New(nil, nil)

	in := payload.Raw([]byte("req-123"))
	st := n.Run(context.Background(), h, node.Input{Data: []*payload.Payload{&in}})
	require.Equal(t, store.KindDone, st.Kind)

	v, ok := h.GetProperty([]string{"ngx", "kong_request_id"})
	require.True(t, ok)
	assert.Equal(t, "req-123", string(v))

	st = n.Run(context.Background(), h, node.Input{Data: nil})
	require.Equal(t, store.KindDone, st.Kind)
	bytes, err := st.Ports[0].ToBytes("")
	require.NoError(t, err)
	assert.Equal(t, "req-123", string(bytes))
}

func TestSetFailsOnUnencodablePayload(t *testing.T) {
	n := newNode(t, map[string]any{"property": "ngx.foo"})
	h := simhost.New(nil, nil)

	errP := payload.Error("boom")
	st := n.Run(context.Background(), h, node.Input{Data: []*payload.Payload{&errP}})
	require.Equal(t, store.KindFail, st.Kind)
	assert.Equal(t, "boom", st.Ports[0].ErrorMessage())
}
