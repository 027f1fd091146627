// Package property implements the "property" node type: a single port
// that reads or writes a dotted host property path, depending on whether
// it is given an input.
package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// Config is the compiled configuration of one property node.
type Config struct {
	Path        []string
	ContentType string
}

// Factory builds property nodes. Register it under the type name
// "property".
type Factory struct{}

func (Factory) NewConfig(name string, inputs, outputs []string, props map[string]any) (node.Config, error) {
	name, ok := props["property"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("missing `property` attribute")
	}
	ct, _ := props["content_type"].(string)
	return &Config{Path: strings.Split(name, "."), ContentType: ct}, nil
}

func (Factory) NewNode(cfg node.Config) (node.Node, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("property: incompatible config")
	}
	return &Node{cfg: c}, nil
}

func (Factory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"value"}}
}

func (Factory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"value"}}
}

func init() {
	node.Register("property", Factory{})
}

// Node is a running property node instance.
type Node struct {
	cfg *Config
}

func (n *Node) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	if len(in.Data) > 0 && in.Data[0] != nil {
		return n.set(h, *in.Data[0])
	}
	return n.get(h)
}

func (n *Node) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}

func (n *Node) set(h host.Host, p payload.Payload) store.NodeState {
	bytes, err := p.ToBytes(n.cfg.ContentType)
	if err != nil {
		errP := payload.Error(err.Error())
		return store.Fail([]*payload.Payload{&errP})
	}
	h.SetProperty(n.cfg.Path, bytes)
	null := payload.Null()
	return store.Done([]*payload.Payload{&null})
}

func (n *Node) get(h host.Host) store.NodeState {
	bytes, ok := h.GetProperty(n.cfg.Path)
	if !ok {
		null := payload.Null()
		return store.Done([]*payload.Payload{&null})
	}
	p := payload.FromBytes(bytes, n.cfg.ContentType)
	return store.Done([]*payload.Payload{&p})
}
