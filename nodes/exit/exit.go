// Package exit implements the "exit" node type: it either ends the
// request early with a locally generated response (during the request
// phases) or rewrites the response body in place (once response headers
// have already gone out), from its connected body/headers inputs.
package exit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/internal/logx"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// Config is the compiled configuration of one exit node.
type Config struct {
	Name            string
	Status          int
	WarnHeadersSent bool
}

func (Config) DefaultOutputs() []node.DefaultLink {
	return []node.DefaultLink{
		{ThisPort: "body", OtherNode: "response", OtherPort: "body"},
		{ThisPort: "headers", OtherNode: "response", OtherPort: "headers"},
	}
}

// Factory builds exit nodes. Register it under the type name "exit".
type Factory struct{}

func (Factory) NewConfig(name string, inputs, outputs []string, props map[string]any) (node.Config, error) {
	return &Config{
		Name:            name,
		Status:          node.IntProp(props, "status", 200),
		WarnHeadersSent: node.BoolProp(props, "warn_headers_sent", true),
	}, nil
}

func (Factory) NewNode(cfg node.Config) (node.Node, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("exit: incompatible config")
	}
	return &Node{cfg: c}, nil
}

func (Factory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"body", "headers"}}
}

func (Factory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"body", "headers"}}
}

func init() {
	node.Register("exit", Factory{})
}

// Node is a running exit node instance. warnedHeadersSent tracks whether
// the node has already logged that it can't set status/headers this late
// in the response, so it only logs once per request.
type Node struct {
	cfg               *Config
	warnedHeadersSent bool
}

func (n *Node) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	var body, headers *payload.Payload
	if len(in.Data) > 0 {
		body = in.Data[0]
	}
	if len(in.Data) > 1 {
		headers = in.Data[1]
	}

	hdr := payload.ToHeaders(headers)
	if body != nil {
		if ct, ok := body.ContentType(); ok {
			hdr.Set("Content-Type", ct)
		}
	}

	var bodyBytes []byte
	if body != nil {
		bytes, err := body.ToBytes("")
		if err != nil {
			errP := payload.Error(err.Error())
			return store.Fail([]*payload.Payload{&errP})
		}
		bodyBytes = bytes
	}

	if in.Phase == store.PhaseHTTPResponseBody {
		if n.cfg.WarnHeadersSent && !n.warnedHeadersSent {
			n.warnHeadersSent(headers != nil)
		}
		if bodyBytes != nil {
			h.SetHTTPResponseBody(bodyBytes)
		}
	} else {
		h.SendHTTPResponse(n.cfg.Status, hdr, bodyBytes)
	}

	return store.Done(nil)
}

func (n *Node) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}

func (n *Node) warnHeadersSent(setHeaders bool) {
	what := "status"
	if setHeaders {
		what = "status or headers"
	}
	logx.L().Warn("exit node cannot set "+what+" when processing response body, headers already sent",
		zap.String("node", n.cfg.Name))
	n.warnedHeadersSent = true
}
