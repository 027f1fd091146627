package engine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kong/datakit/config"
	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// fakeHost is a minimal in-memory host.Host used to drive the engine in
// tests without a real proxy-wasm host underneath.
type fakeHost struct {
	reqHeaders, respHeaders http.Header
	reqBody, respBody       []byte
	props                   map[string]string
	sentStatus              int
	sentHeaders             http.Header
	sentBody                []byte
	resumed                 bool
	callHeaders             map[uint32]http.Header
	callBodies              map[uint32][]byte
	nextToken               uint32
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		reqHeaders:  http.Header{},
		respHeaders: http.Header{},
		props:       map[string]string{},
		callHeaders: map[uint32]http.Header{},
		callBodies:  map[uint32][]byte{},
	}
}

func (h *fakeHost) DispatchHTTPCall(ctx context.Context, hostPort string, headers http.Header, body []byte, trailers http.Header, timeout time.Duration) (uint32, error) {
	h.nextToken++
	return h.nextToken, nil
}
func (h *fakeHost) GetHTTPCallResponseHeaders(token uint32) http.Header { return h.callHeaders[token] }
func (h *fakeHost) GetHTTPCallResponseBody(token uint32) []byte         { return h.callBodies[token] }
func (h *fakeHost) GetProperty(path []string) ([]byte, bool) {
	v, ok := h.props[path[len(path)-1]]
	return []byte(v), ok
}
func (h *fakeHost) SetProperty(path []string, value []byte) { h.props[path[len(path)-1]] = string(value) }
func (h *fakeHost) GetHTTPRequestHeaders() http.Header       { return h.reqHeaders }
func (h *fakeHost) GetHTTPRequestBody() []byte               { return h.reqBody }
func (h *fakeHost) GetHTTPResponseHeaders() http.Header      { return h.respHeaders }
func (h *fakeHost) GetHTTPResponseBody() []byte              { return h.respBody }
func (h *fakeHost) SetHTTPRequestHeaders(hdr http.Header)    { h.reqHeaders = hdr }
func (h *fakeHost) SetHTTPRequestBody(b []byte)              { h.reqBody = b }
func (h *fakeHost) SetHTTPResponseHeaders(hdr http.Header)   { h.respHeaders = hdr }
func (h *fakeHost) SetHTTPResponseBody(b []byte)             { h.respBody = b }
func (h *fakeHost) SetHTTPRequestHeader(name, value string) {
	if value == "" {
		h.reqHeaders.Del(name)
		return
	}
	h.reqHeaders.Set(name, value)
}
func (h *fakeHost) SetHTTPResponseHeader(name, value string) {
	if value == "" {
		h.respHeaders.Del(name)
		return
	}
	h.respHeaders.Set(name, value)
}
func (h *fakeHost) SendHTTPResponse(status int, headers http.Header, body []byte) {
	h.sentStatus = status
	h.sentHeaders = headers
	h.sentBody = body
}
func (h *fakeHost) ResumeHTTPRequest() { h.resumed = true }

// passthroughNode copies its single input straight to its single output,
// for exercising the scheduler without a real node implementation package.
type passthroughNode struct{}

func (passthroughNode) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done([]*payload.Payload{in.Data[0]})
}
func (passthroughNode) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done([]*payload.Payload{in.Data[0]})
}

type passthroughFactory struct{}

func (passthroughFactory) NewConfig(name string, inputs, outputs []string, raw map[string]any) (node.Config, error) {
	return nil, nil
}
func (passthroughFactory) NewNode(cfg node.Config) (node.Node, error) { return passthroughNode{}, nil }
func (passthroughFactory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"in"}}
}
func (passthroughFactory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"out"}}
}

// recordingNode copies its single input's raw bytes into a slot the test
// can inspect afterward, keyed by its configured name -- used to observe
// that a fanned-out output reached more than one consumer, and that a
// downstream consumer of a failed node never ran at all.
type recordingNode struct {
	name string
}

var recorded = map[string][]byte{}

func (n recordingNode) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	if len(in.Data) > 0 && in.Data[0] != nil {
		b, _ := in.Data[0].ToBytes("")
		recorded[n.name] = append([]byte(nil), b...)
	}
	return store.Done(nil)
}
func (n recordingNode) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}

type recordingFactory struct{}

func (recordingFactory) NewConfig(name string, inputs, outputs []string, raw map[string]any) (node.Config, error) {
	return name, nil
}
func (recordingFactory) NewNode(cfg node.Config) (node.Node, error) {
	return recordingNode{name: cfg.(string)}, nil
}
func (recordingFactory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"in"}}
}
func (recordingFactory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"out"}}
}

// pausingNode returns Waiting on its first Run, then Done with its (now
// re-evaluated) input once resumed -- exercising the async Waiting/Resume
// half of the scheduler without a real outbound call.
type pausingNode struct{}

func (pausingNode) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Waiting(1)
}
func (pausingNode) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done([]*payload.Payload{in.Data[0]})
}

type pausingFactory struct{}

func (pausingFactory) NewConfig(name string, inputs, outputs []string, raw map[string]any) (node.Config, error) {
	return nil, nil
}
func (pausingFactory) NewNode(cfg node.Config) (node.Node, error) { return pausingNode{}, nil }
func (pausingFactory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"in"}}
}
func (pausingFactory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"out"}}
}

// failingNode always fails, for exercising the driver's failure
// propagation and default 500 response.
type failingNode struct{}

func (failingNode) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	errP := payload.Error("boom")
	return store.Fail([]*payload.Payload{&errP})
}
func (failingNode) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}

type failingFactory struct{}

func (failingFactory) NewConfig(name string, inputs, outputs []string, raw map[string]any) (node.Config, error) {
	return nil, nil
}
func (failingFactory) NewNode(cfg node.Config) (node.Node, error) { return failingNode{}, nil }
func (failingFactory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"in"}}
}
func (failingFactory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"out"}}
}

func init() {
	node.Register("passthrough", passthroughFactory{})
	node.Register("recording", recordingFactory{})
	node.Register("pausing", pausingFactory{})
	node.Register("failing", failingFactory{})
}

func compileDoc(t *testing.T, doc string) *Graph {
	t.Helper()
	g, err := Compile([]byte(doc), config.FormatJSON)
	require.NoError(t, err)
	return g
}

func TestRequestBodyPassthroughToResponse(t *testing.T) {
	g := compileDoc(t, `{
		"nodes": [
			{"type": "passthrough", "name": "p1", "input": "request.body", "output": "response.body"}
		]
	}`)
	h := newFakeHost()
	e := New(g, h, nil, false)

	h.reqHeaders.Set("Content-Type", "application/json")
	assert.Equal(t, ActionContinue, e.OnRequestHeaders(context.Background()))

	h.reqBody = []byte(`{"hello":"world"}`)
	assert.Equal(t, ActionContinue, e.OnRequestBody(context.Background(), true))

	h.respHeaders.Set("Content-Type", "application/json")
	assert.Equal(t, ActionContinue, e.OnResponseHeaders(context.Background()))

	h.respBody = []byte(`{}`)
	assert.Equal(t, ActionContinue, e.OnResponseBody(context.Background(), true))

	assert.Equal(t, `{"hello":"world"}`, string(h.respBody))
	assert.Equal(t, "application/json", h.respHeaders.Get("Content-Type"))
}

func TestDebugTraceRendersResponseBody(t *testing.T) {
	g := compileDoc(t, `{
		"nodes": [
			{"type": "passthrough", "name": "p1", "input": "request.body", "output": "response.body"}
		]
	}`)
	h := newFakeHost()
	e := New(g, h, nil, true)

	h.reqHeaders.Set(TraceHeader, "1")
	e.OnRequestHeaders(context.Background())

	h.reqBody = []byte(`"hi"`)
	h.reqHeaders.Set("Content-Type", "application/json")
	e.OnRequestBody(context.Background(), true)

	e.OnResponseHeaders(context.Background())
	h.respBody = []byte(`{}`)
	e.OnResponseBody(context.Background(), true)

	assert.Equal(t, "application/json", h.respHeaders.Get("Content-Type"))
	assert.Contains(t, string(h.respBody), `"action"`)
}

func TestConfigDebugFlagEnablesTraceHeader(t *testing.T) {
	g := compileDoc(t, `{
		"debug": true,
		"nodes": [
			{"type": "passthrough", "name": "p1", "input": "request.body", "output": "response.body"}
		]
	}`)
	h := newFakeHost()
	e := New(g, h, nil, false)

	h.reqHeaders.Set(TraceHeader, "on")
	e.OnRequestHeaders(context.Background())

	h.reqBody = []byte(`"hi"`)
	h.reqHeaders.Set("Content-Type", "application/json")
	e.OnRequestBody(context.Background(), true)

	e.OnResponseHeaders(context.Background())
	h.respBody = []byte(`{}`)
	e.OnResponseBody(context.Background(), true)

	assert.Contains(t, string(h.respBody), `"action"`)
}

func TestEmptyGraphPassesThrough(t *testing.T) {
	g := compileDoc(t, `{"nodes": []}`)
	h := newFakeHost()
	e := New(g, h, nil, false)

	assert.Equal(t, ActionContinue, e.OnRequestHeaders(context.Background()))
	h.reqBody = []byte("hello")
	assert.Equal(t, ActionContinue, e.OnRequestBody(context.Background(), true))
	assert.Equal(t, ActionContinue, e.OnResponseHeaders(context.Background()))
	h.respBody = []byte("world")
	assert.Equal(t, ActionContinue, e.OnResponseBody(context.Background(), true))

	assert.Equal(t, "world", string(h.respBody))
	assert.Zero(t, h.sentStatus)
}

func TestFanOutToTwoConsumers(t *testing.T) {
	delete(recorded, "c1")
	delete(recorded, "c2")

	g := compileDoc(t, `{
		"nodes": [
			{"type": "recording", "name": "c1", "input": "request.body"},
			{"type": "recording", "name": "c2", "input": "request.body"}
		]
	}`)
	h := newFakeHost()
	e := New(g, h, nil, false)

	assert.Equal(t, ActionContinue, e.OnRequestHeaders(context.Background()))
	h.reqBody = []byte("fan-out payload")
	assert.Equal(t, ActionContinue, e.OnRequestBody(context.Background(), true))

	assert.Equal(t, []byte("fan-out payload"), recorded["c1"])
	assert.Equal(t, []byte("fan-out payload"), recorded["c2"])
}

func TestWaitingResumeFlow(t *testing.T) {
	g := compileDoc(t, `{
		"nodes": [
			{"type": "pausing", "name": "p1", "input": "request.body", "output": "response.body"}
		]
	}`)
	h := newFakeHost()
	e := New(g, h, nil, false)

	assert.Equal(t, ActionContinue, e.OnRequestHeaders(context.Background()))
	h.reqBody = []byte("paused body")
	assert.Equal(t, ActionPause, e.OnRequestBody(context.Background(), true))
	assert.False(t, h.resumed)

	e.OnHTTPCallResponse(context.Background(), 1)
	assert.True(t, h.resumed)

	assert.Equal(t, ActionContinue, e.OnResponseHeaders(context.Background()))
	h.respBody = []byte("{}")
	assert.Equal(t, ActionContinue, e.OnResponseBody(context.Background(), true))
	assert.Equal(t, "paused body", string(h.respBody))
}

func TestFailurePropagationSendsDefaultResponse(t *testing.T) {
	delete(recorded, "downstream")

	g := compileDoc(t, `{
		"nodes": [
			{"type": "failing", "name": "f1", "input": "request.body"},
			{"type": "recording", "name": "downstream", "input": "f1.out"}
		]
	}`)
	h := newFakeHost()
	h.props["kong_request_id"] = "req-123"
	e := New(g, h, nil, false)

	e.OnRequestHeaders(context.Background())
	h.reqBody = []byte("x")
	e.OnRequestBody(context.Background(), true)

	assert.True(t, e.Failed())
	assert.Equal(t, 500, h.sentStatus)
	assert.Contains(t, string(h.sentBody), "An unexpected error ocurred")
	assert.Contains(t, string(h.sentBody), "req-123")
	_, ranDownstream := recorded["downstream"]
	assert.False(t, ranDownstream, "downstream of a failed node must never run")
}
