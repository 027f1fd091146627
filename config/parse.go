package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// userNodeConfig is one "nodes[]" entry as read from the document: its
// type/name, its declared links, and the rest of its fields verbatim as a
// property bag handed to the node type's factory.
type userNodeConfig struct {
	Type string
	Name string

	Props map[string]any

	Links     []userLink
	NInputs   int
	NOutputs  int
	NamedIns  []string
	NamedOuts []string
}

// userConfig is the whole decoded document: a node list plus the top-level
// debug flag.
type userConfig struct {
	Nodes []*userNodeConfig
	Debug bool
}

// Format selects which syntax Decode expects the raw document in.
type Format int

const (
	// FormatJSON parses the document as JSON.
	FormatJSON Format = iota
	// FormatYAML parses the document as YAML.
	FormatYAML
)

func decodeGeneric(data []byte, format Format) (map[string]any, error) {
	var top map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &top); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&top); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func parseUserConfig(data []byte, format Format) (*userConfig, error) {
	top, err := decodeGeneric(data, format)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	uc := &userConfig{}
	if v, ok := top["debug"].(bool); ok {
		uc.Debug = v
	}

	rawNodes, _ := top["nodes"].([]any)
	for i, rn := range rawNodes {
		m, ok := rn.(map[string]any)
		if !ok {
			return nil, &ParseError{Err: fmt.Errorf("nodes[%d]: expected an object", i)}
		}
		nc, err := nodeFromMap(m, i)
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		uc.Nodes = append(uc.Nodes, nc)
	}
	return uc, nil
}

func nodeFromMap(m map[string]any, index int) (*userNodeConfig, error) {
	nc := &userNodeConfig{Props: map[string]any{}}

	typ, _ := m["type"].(string)
	if typ == "" {
		return nil, fmt.Errorf("nodes[%d]: missing field `type`", index)
	}
	nc.Type = typ

	name, _ := m["name"].(string)
	if name == "" {
		name = fmt.Sprintf("%s#%d", typ, index)
	}
	nc.Name = name

	for key, val := range m {
		switch key {
		case "type", "name":
			// consumed above
		case "input":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("node `%s`: `input` must be a string", name)
			}
			node, port := parseNodePort(s)
			nc.Links = append(nc.Links, newLink(node, port, nil, nil))
		case "output":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("node `%s`: `output` must be a string", name)
			}
			node, port := parseNodePort(s)
			nc.Links = append(nc.Links, newLink(nil, nil, node, port))
		case "inputs":
			if err := readLinks(&nc.Links, val, &nc.NamedIns, newLink); err != nil {
				return nil, fmt.Errorf("node `%s`: `inputs`: %w", name, err)
			}
		case "outputs":
			if err := readLinks(&nc.Links, val, &nc.NamedOuts, newReverseLink); err != nil {
				return nil, fmt.Errorf("node `%s`: `outputs`: %w", name, err)
			}
		default:
			nc.Props[key] = val
		}
	}

	for i := range nc.Links {
		link := &nc.Links[i]
		if link.To.Node == nil {
			link.To.Node = strp(name)
			nc.NInputs++
		}
		if link.From.Node == nil {
			link.From.Node = strp(name)
			nc.NOutputs++
		}
	}

	return nc, nil
}

type linkCtor func(fromNode, fromPort, toNode, toPort *string) userLink

// readLinks parses an "inputs"/"outputs" value, which may be a map of
// {portName: "node.port"}, a list of such maps, or a list of bare
// "node.port"/"node" strings, into links via ctor (forward for inputs,
// reversed for outputs).
func readLinks(links *[]userLink, value any, named *[]string, ctor linkCtor) error {
	switch v := value.(type) {
	case map[string]any:
		for myPort, raw := range v {
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("invalid map value for port %s", myPort)
			}
			*named = append(*named, myPort)
			node, port := parseNodePort(s)
			*links = append(*links, ctor(node, port, nil, strp(myPort)))
		}
	case []any:
		for _, item := range v {
			switch iv := item.(type) {
			case map[string]any:
				if err := readLinks(links, iv, named, ctor); err != nil {
					return err
				}
			case string:
				node, port := parseNodePort(iv)
				*links = append(*links, ctor(node, port, nil, nil))
			default:
				return fmt.Errorf("invalid list value")
			}
		}
	default:
		return fmt.Errorf("invalid object")
	}
	return nil
}
