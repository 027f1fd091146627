// Package jsontransform implements the "jsontransform" node type: a
// declarative jq-lite JSON reshaping node that projects, renames, and
// default-fills fields from its single JSON input into a new document,
// described by a mapping table instead of an embedded jq interpreter.
package jsontransform

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// Mapping describes one destination field: the gjson path to read from the
// input document, the sjson path to write it at in the output, and the
// value to use when From is absent from the input.
type Mapping struct {
	From    string
	To      string
	Default any
	HasDef  bool
}

// Config is the compiled configuration of one jsontransform node.
type Config struct {
	Mappings []Mapping
}

// Factory builds jsontransform nodes. Register it under the type name
// "jsontransform".
type Factory struct{}

func (Factory) NewConfig(name string, inputs, outputs []string, props map[string]any) (node.Config, error) {
	rawMappings, _ := props["mappings"].([]any)
	mappings := make([]Mapping, 0, len(rawMappings))
	for _, rm := range rawMappings {
		m, ok := rm.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("jsontransform: each mapping entry must be an object")
		}
		from, _ := m["from"].(string)
		to, _ := m["to"].(string)
		if to == "" {
			return nil, fmt.Errorf("jsontransform: mapping entry missing `to`")
		}
		def, hasDef := m["default"]
		mappings = append(mappings, Mapping{From: from, To: to, Default: def, HasDef: hasDef})
	}
	return &Config{Mappings: mappings}, nil
}

func (Factory) NewNode(cfg node.Config) (node.Node, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("jsontransform: incompatible config")
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
	node.Register("jsontransform", Factory{})
}

// Node is a running jsontransform node instance.
type Node struct {
	cfg *Config
}

func (n *Node) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	var input *payload.Payload
	if len(in.Data) > 0 {
		input = in.Data[0]
	}

	var srcJSON []byte
	if input != nil {
		b, err := input.ToBytes(payload.ContentTypeJSON)
		if err != nil {
			errP := payload.Error(fmt.Sprintf("jsontransform: error reading input: %s", err))
			return store.Fail([]*payload.Payload{&errP})
		}
		srcJSON = b
	} else {
		srcJSON = []byte("null")
	}

	result := gjson.ParseBytes(srcJSON)
	out := "{}"
	for _, m := range n.cfg.Mappings {
		var err error
		if m.From != "" {
			v := result.Get(m.From)
			if v.Exists() {
				out, err = sjson.Set(out, m.To, v.Value())
			} else if m.HasDef {
				out, err = sjson.Set(out, m.To, m.Default)
			} else {
				continue
			}
		} else if m.HasDef {
			out, err = sjson.Set(out, m.To, m.Default)
		}
		if err != nil {
			errP := payload.Error(fmt.Sprintf("jsontransform: error writing field %q: %s", m.To, err))
			return store.Fail([]*payload.Payload{&errP})
		}
	}

	outP := payload.FromBytes([]byte(out), payload.ContentTypeJSON)
	return store.Done([]*payload.Payload{&outP})
}

func (n *Node) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}
