package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

func newNode(t *testing.T, tmpl, contentType string, inputs []string) *Node {
	t.Helper()
	cfg, err := Factory{}.NewConfig("t1", inputs, []string{"output"}, map[string]any{
		"template":     tmpl,
		"content_type": contentType,
	})
	require.NoError(t, err)
	n, err := Factory{}.NewNode(cfg)
	require.NoError(t, err)
	return n.(*Node)
}

func TestRenderWithJSONInput(t *testing.T) {
	n := newNode(t, "hello {{.name}}", "text/plain", []string{"name"})
	p := payload.JSON("world")
	st := n.Run(context.Background(), nil, node.Input{Data: []*payload.Payload{&p}})
	require.Equal(t, store.KindDone, st.Kind)
	out, err := st.Ports[0].ToBytes("")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestRenderWithRawAndMissingInput(t *testing.T) {
	n := newNode(t, "[{{.body}}]", "text/plain", []string{"body", "unused"})
	p := payload.Raw([]byte("data"))
	st := n.Run(context.Background(), nil, node.Input{Data: []*payload.Payload{&p, nil}})
	require.Equal(t, store.KindDone, st.Kind)
	out, err := st.Ports[0].ToBytes("")
	require.NoError(t, err)
	assert.Equal(t, "[data]", string(out))
}

func TestRenderErrorOnBadTemplate(t *testing.T) {
	n := newNode(t, `{{template "missing"}}`, "text/plain", []string{})
	st := n.Run(context.Background(), nil, node.Input{})
	assert.Equal(t, store.KindFail, st.Kind)
}
