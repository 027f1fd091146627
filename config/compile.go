// Package config implements the configuration compiler: it turns a raw
// JSON or YAML graph document into a validated, port-resolved
// depgraph.Graph plus the instantiated per-node configuration objects the
// engine uses to build runtime nodes.
package config

import (
	"fmt"

	"github.com/Kong/datakit/depgraph"
	"github.com/Kong/datakit/node"
)

// ImplicitNode describes one of the fixed envelope nodes (request,
// service_request, service_response, response) the compiler wires in ahead
// of any user-defined node, at a fixed index.
type ImplicitNode struct {
	Name    string
	Inputs  []string
	Outputs []string
}

// portInfo accumulates one node's resolved port lists while links are
// being resolved; UserIns/UserOuts record whether that node type accepts
// additional user-named ports beyond its declared defaults.
type portInfo struct {
	Ins, Outs         []string
	UserIns, UserOuts bool
}

func newPortInfo(typeName string, namedIns, namedOuts []string) (portInfo, error) {
	insPC, err := node.DefaultInputPorts(typeName)
	if err != nil {
		return portInfo{}, err
	}
	outsPC, err := node.DefaultOutputPorts(typeName)
	if err != nil {
		return portInfo{}, err
	}
	return portInfo{
		Ins:      insPC.PortList(namedIns),
		Outs:     outsPC.PortList(namedOuts),
		UserIns:  insPC.UserDefinedPorts,
		UserOuts: outsPC.UserDefinedPorts,
	}, nil
}

type nodeInfo struct {
	Name   string
	Type   string
	Config node.Config
}

// Compiled is the result of compiling a graph document: the dependency
// graph plus the resolved per-node metadata the engine needs to build and
// run node instances, addressed by node index (implicits first, at their
// fixed positions, then user nodes in document order).
type Compiled struct {
	Graph        *depgraph.Graph
	NodeNames    []string
	NodeTypes    []string
	NodeConfigs  []node.Config
	NumImplicits int
	Debug        bool
}

// Compile parses and validates a raw configuration document and resolves
// it into a Compiled graph ready to be handed to the engine. implicits
// must be given in the fixed index order the engine expects (typically
// request, service_request, service_response, response).
func Compile(data []byte, format Format, implicits []ImplicitNode) (*Compiled, error) {
	uc, err := parseUserConfig(data, format)
	if err != nil {
		return nil, err
	}
	return compile(uc, implicits)
}

func compile(uc *userConfig, implicits []ImplicitNode) (*Compiled, error) {
	p := len(implicits)
	n := len(uc.Nodes) + p

	nodeNames := make([]string, 0, n)
	infos := make([]nodeInfo, 0, n)
	ports := make([]portInfo, 0, n)

	for _, im := range implicits {
		nodeNames = append(nodeNames, im.Name)
		infos = append(infos, nodeInfo{Name: im.Name, Type: "implicit"})
		ports = append(ports, portInfo{Ins: append([]string(nil), im.Inputs...), Outs: append([]string(nil), im.Outputs...)})
	}

	for _, unc := range uc.Nodes {
		if contains(nodeNames, unc.Name) {
			return nil, atNode(unc.Name, unc.Type, "cannot use reserved node name")
		}
		if !node.IsValidType(unc.Type) {
			return nil, atNode(unc.Name, unc.Type, "unknown node type")
		}
		pi, err := newPortInfo(unc.Type, unc.NamedIns, unc.NamedOuts)
		if err != nil {
			return nil, atNode(unc.Name, unc.Type, err.Error())
		}
		ports = append(ports, pi)
	}

	for _, unc := range uc.Nodes {
		if contains(nodeNames, unc.Name) {
			return nil, &SemanticError{Msg: fmt.Sprintf("multiple definitions of node `%s`", unc.Name)}
		}
		nodeNames = append(nodeNames, unc.Name)
	}

	linkedInputs := make([]int, len(nodeNames))
	for _, unc := range uc.Nodes {
		if err := fixupMissingPortNames(unc, nodeNames, ports, linkedInputs); err != nil {
			return nil, atNode(unc.Name, unc.Type, err.Error())
		}
	}

	for u, unc := range uc.Nodes {
		info, err := makeNodeInfo(unc, &ports[u+p])
		if err != nil {
			return nil, atNode(unc.Name, unc.Type, err.Error())
		}
		infos = append(infos, info)
	}

	inputNames := make([][]string, len(ports))
	outputNames := make([][]string, len(ports))
	for i, pi := range ports {
		inputNames[i] = pi.Ins
		outputNames[i] = pi.Outs
	}
	graph := depgraph.New(nodeNames, inputNames, outputNames)

	for _, unc := range uc.Nodes {
		for _, link := range unc.Links {
			if err := graph.Add(*link.From.Node, *link.From.Port, *link.To.Node, *link.To.Port); err != nil {
				return nil, atNode(unc.Name, unc.Type, err.Error())
			}
		}
	}

	nodeTypes := make([]string, len(infos))
	nodeConfigs := make([]node.Config, len(infos))
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
		nodeTypes[i] = info.Type
		nodeConfigs[i] = info.Config
	}

	return &Compiled{
		Graph:        graph,
		NodeNames:    names,
		NodeTypes:    nodeTypes,
		NodeConfigs:  nodeConfigs,
		NumImplicits: p,
		Debug:        uc.Debug,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nodePosition(nodeNames []string, np nodePort) (int, error) {
	if np.Node == nil {
		return 0, fmt.Errorf("unknown node in link: %s", np)
	}
	for i, name := range nodeNames {
		if name == *np.Node {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown node in link: %s", np)
}

func sourceDestPorts(ports []portInfo, s, d int) (*portInfo, *portInfo, error) {
	if s == d {
		return nil, nil, fmt.Errorf("node cannot connect to itself")
	}
	return &ports[s], &ports[d], nil
}

func fixupMissingPortNames(unc *userNodeConfig, nodeNames []string, ports []portInfo, linkedInputs []int) error {
	for i := range unc.Links {
		link := &unc.Links[i]
		s, err := nodePosition(nodeNames, link.From)
		if err != nil {
			return err
		}
		d, err := nodePosition(nodeNames, link.To)
		if err != nil {
			return err
		}
		src, dst, err := sourceDestPorts(ports, s, d)
		if err != nil {
			return err
		}
		linkedInputs[d]++
		if err := link.resolvePortNames(src, dst, linkedInputs[d]); err != nil {
			return err
		}
	}
	return nil
}

func makeNodeInfo(unc *userNodeConfig, pi *portInfo) (nodeInfo, error) {
	cfg, err := node.NewConfig(unc.Type, unc.Name, pi.Ins, pi.Outs, unc.Props)
	if err != nil {
		return nodeInfo{}, err
	}
	addDefaultLinks(unc, cfg)
	return nodeInfo{Name: unc.Name, Type: unc.Type, Config: cfg}, nil
}

// addDefaultLinks appends a node type's declared default links into its
// UserNodeConfig when the user supplied zero input (or output) links of
// their own, mirroring the source's add_default_links step. These links
// are resolved against fixed implicit node/port names, so they do not
// need to participate in fixupMissingPortNames.
func addDefaultLinks(unc *userNodeConfig, cfg node.Config) {
	if unc.NInputs == 0 {
		if di, ok := cfg.(node.DefaultInputsProvider); ok {
			for _, l := range di.DefaultInputs() {
				unc.Links = append(unc.Links, newLink(strp(l.OtherNode), strp(l.OtherPort), strp(unc.Name), strp(l.ThisPort)))
			}
		}
	}
	if unc.NOutputs == 0 {
		if do, ok := cfg.(node.DefaultOutputsProvider); ok {
			for _, l := range do.DefaultOutputs() {
				unc.Links = append(unc.Links, newLink(strp(unc.Name), strp(l.ThisPort), strp(l.OtherNode), strp(l.OtherPort)))
			}
		}
	}
}
