// Package template implements the "template" node type: it renders an
// operator-supplied text/template against its resolved inputs, exposed to
// the template as named variables matching the node's connected input
// ports, and emits the rendered text under a configured content type.
package template

import (
	"bytes"
	"context"
	"fmt"
	gotemplate "text/template"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/internal/logx"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

var validate = validator.New()

// Config is the compiled configuration of one template node.
type Config struct {
	Inputs      []string
	ContentType string
	tmpl        *gotemplate.Template
}

// rawConfig is the shape validate checks before a template is ever parsed,
// rejecting an empty template body at NewConfig time rather than letting it
// through to render blank output for every request. A missing or empty
// content_type is replaced by "text/plain" before validation, so it never
// fails this check.
type rawConfig struct {
	Template    string `validate:"required"`
	ContentType string `validate:"required"`
}

// Factory builds template nodes. Register it under the type name
// "template". Its input port set is open (any named port the user
// connects becomes a template variable); its only output is "output".
type Factory struct{}

func (Factory) NewConfig(name string, inputs, outputs []string, props map[string]any) (node.Config, error) {
	raw, _ := props["template"].(string)
	ct, ok := props["content_type"].(string)
	if !ok || ct == "" {
		ct = "text/plain"
	}

	if err := validate.Struct(rawConfig{Template: raw, ContentType: ct}); err != nil {
		return nil, fmt.Errorf("invalid template node configuration: %w", err)
	}

	tmpl, err := gotemplate.New(name).Parse(raw)
	if err != nil {
		logx.L().Error("template: error parsing template", zap.String("node", name), zap.Error(err))
		tmpl = gotemplate.Must(gotemplate.New(name).Parse(""))
	}

	return &Config{Inputs: append([]string(nil), inputs...), ContentType: ct, tmpl: tmpl}, nil
}

func (Factory) NewNode(cfg node.Config) (node.Node, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("template: incompatible config")
	}
	return &Node{cfg: c}, nil
}

func (Factory) DefaultInputPorts() node.PortConfig {
	return node.PortConfig{UserDefinedPorts: true}
}

func (Factory) DefaultOutputPorts() node.PortConfig {
	return node.PortConfig{Defaults: []string{"output"}}
}

func init() {
	node.Register("template", Factory{})
}

// Node is a running template node instance.
type Node struct {
	cfg *Config
}

func (n *Node) Run(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	data := make(map[string]any, len(n.cfg.Inputs))
	for i, name := range n.cfg.Inputs {
		if i >= len(in.Data) || in.Data[i] == nil {
			continue
		}
		data[name] = templateValue(*in.Data[i])
	}

	var buf bytes.Buffer
	if err := n.cfg.tmpl.Execute(&buf, data); err != nil {
		errP := payload.Error(fmt.Sprintf("template: error rendering template: %s", err))
		return store.Fail([]*payload.Payload{&errP})
	}

	out := payload.FromBytes(buf.Bytes(), n.cfg.ContentType)
	return store.Done([]*payload.Payload{&out})
}

func (n *Node) Resume(ctx context.Context, h host.Host, in node.Input) store.NodeState {
	return store.Done(nil)
}

// templateValue reduces a payload to whatever text/template should see for
// it: the decoded value for JSON, the carried message for Error, and the
// raw bytes as a string otherwise.
func templateValue(p payload.Payload) any {
	switch p.Kind() {
	case payload.KindJSON:
		return p.JSONValue()
	case payload.KindError:
		return p.ErrorMessage()
	default:
		return string(p.RawBytes())
	}
}
