// Package call implements the "call" node type: it dispatches an
// asynchronous outbound HTTP request built from its configured URL and
// method plus its connected body/headers inputs, and resumes with the
// response body and headers once the host delivers it. The node declares a
// query input port, but Run does not read it: the outbound query string is
// the one in the configured URL.
package call

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/internal/dispatch"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

var validate = validator.New()

// Config is the compiled configuration of one call node. The struct tags
// are enforced by validate at NewConfig time, rejecting a call node whose
// url is missing or whose method isn't one of the methods an outbound
// HTTP call can actually use before the request ever reaches host.Host.
type Config struct {
	URL     string        `validate:"required,url"`
	Method  string        `validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Timeout time.Duration `validate:"min=0"`
}

// Factory builds call nodes. Register it under the type name "call".
type Factory struct{}

func (Factory) NewConfig(name string, inputs, outputs []string, props map[string]any) (node.Config, error) {
	cfg := &Config{
		URL:     node.StringProp(props, "url", ""),
		Method:  node.StringProp(props, "method", "GET"),
		Timeout: time.Duration(node.IntProp(props, "timeout", 60)) * time.Second,
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid call node configuration: %w", err)
	}
	return cfg, nil
}

func (Factory) NewNode(cfg node.Config) (node.Node, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("call: incompatible config")
	}
	return &Node{cfg: c}, nil
}

func (Factory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"body", "headers", "query"}}
}

func (Factory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"body", "headers"}}
}

func init() {
	node.Register("call", Factory{})
}

func portAt(data []*payload.Payload, i int) *payload.Payload {
	if i >= len(data) {
		return nil
	}
	return data[i]
}

// Node is a running call node instance.
type Node struct {
	cfg *Config
}

// Run parses the configured URL, builds the outbound request from the
// connected body/headers inputs, and dispatches it asynchronously. A bad
// URL is treated the same as the source implementation: silently done
// with no outputs, since it indicates a static configuration mistake
// already surfaced at compile review time rather than a per-request
// failure worth failing the graph over.
func (n *Node) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	body := portAt(in.Data, 0)
	headers := portAt(in.Data, 1)

	u, err := url.Parse(n.cfg.URL)
	if err != nil || u.Host == "" {
		return store.Done(nil)
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = body.ToBytes("")
		if err != nil {
			errP := payload.Error(err.Error())
			return store.Fail([]*payload.Payload{&errP})
		}
	}

	hdr := payload.ToHeaders(headers)
	hdr.Set(":method", n.cfg.Method)
	hdr.Set(":path", u.RequestURI())
	hdr.Set(":scheme", u.Scheme)
	hdr.Set(":authority", u.Host)

	var token uint32
	dispatchErr := dispatch.Do(ctx, func() error {
		var err error
		token, err = h.DispatchHTTPCall(ctx, u.Host, hdr, bodyBytes, nil, n.cfg.Timeout)
		return err
	})
	if dispatchErr != nil {
		errP := payload.Error(fmt.Sprintf("error dispatching call: %s", dispatchErr))
		return store.Fail([]*payload.Payload{&errP})
	}
	return store.Waiting(token)
}

// Resume reads back the completed call's response as this node's outputs:
// body on port 0, headers on port 1.
func (n *Node) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	respHeaders := h.GetHTTPCallResponseHeaders(in.Token)
	headers := payload.FromHeaders(respHeaders)

	bodyBytes := h.GetHTTPCallResponseBody(in.Token)
	body := payload.FromBytes(bodyBytes, respHeaders.Get("Content-Type"))

	return store.Done([]*payload.Payload{&body, &headers})
}
