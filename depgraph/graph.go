// Package depgraph implements the canonical dependency graph: the
// provider/dependent relation between node output ports and node input
// ports, indexed by (node, port) pairs rather than names.
package depgraph

import "fmt"

// Port identifies a single port by its owning node's index and the port's
// index within that node's input or output port list.
type Port struct {
	Node int
	Port int
}

// Graph holds three parallel tables, one entry per node: declared port
// names, the single provider feeding each input port, and the list of
// dependents fed by each output port. Port and node indices are stable for
// the life of the graph; a Graph is built once at configuration time and
// read many times at runtime.
type Graph struct {
	nodeNames   []string
	inputNames  [][]string
	outputNames [][]string
	providers   [][]*Port
	dependents  [][][]Port
}

// New allocates a Graph for the given node names and per-node input/output
// port name lists. All lengths must match: len(nodeNames) == len(inputNames)
// == len(outputNames).
func New(nodeNames []string, inputNames, outputNames [][]string) *Graph {
	n := len(nodeNames)
	providers := make([][]*Port, n)
	dependents := make([][][]Port, n)
	for i := 0; i < n; i++ {
		providers[i] = make([]*Port, len(inputNames[i]))
		dependents[i] = make([][]Port, len(outputNames[i]))
	}
	return &Graph{
		nodeNames:   nodeNames,
		inputNames:  inputNames,
		outputNames: outputNames,
		providers:   providers,
		dependents:  dependents,
	}
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodeNames) }

// NodeName returns the name of node n.
func (g *Graph) NodeName(n int) string { return g.nodeNames[n] }

// NumberOfInputs returns the number of declared input ports of node n.
func (g *Graph) NumberOfInputs(n int) int { return len(g.inputNames[n]) }

// NumberOfOutputs returns the number of declared output ports of node n.
func (g *Graph) NumberOfOutputs(n int) int { return len(g.outputNames[n]) }

// InputPortNames returns the declared input port names of node n.
func (g *Graph) InputPortNames(n int) []string { return g.inputNames[n] }

// OutputPortNames returns the declared output port names of node n.
func (g *Graph) OutputPortNames(n int) []string { return g.outputNames[n] }

// findPort locates a named port of a named node in the given port-name
// table, returning (node index, port index).
func findPort(node, port string, nodeNames []string, portNames [][]string) (Port, error) {
	n := -1
	for i, name := range nodeNames {
		if name == node {
			n = i
			break
		}
	}
	if n < 0 {
		return Port{}, fmt.Errorf("unknown node %q", node)
	}
	for p, name := range portNames[n] {
		if name == port {
			return Port{Node: n, Port: p}, nil
		}
	}
	return Port{}, fmt.Errorf("unknown port %q on node %q", port, node)
}

// Add connects the named output port of srcNode to the named input port of
// dstNode. It fails with an AlreadyConnected error if the destination input
// already has a provider; the error names both conflicting sources.
func (g *Graph) Add(srcNode, srcPort, dstNode, dstPort string) error {
	src, err := findPort(srcNode, srcPort, g.nodeNames, g.outputNames)
	if err != nil {
		return err
	}
	dst, err := findPort(dstNode, dstPort, g.nodeNames, g.inputNames)
	if err != nil {
		return err
	}
	if existing := g.providers[dst.Node][dst.Port]; existing != nil {
		return &AlreadyConnectedError{
			ThisNode:  g.nodeNames[dst.Node],
			ThisPort:  g.inputNames[dst.Node][dst.Port],
			OtherNode: g.nodeNames[existing.Node],
			OtherPort: g.outputNames[existing.Node][existing.Port],
		}
	}
	g.dependents[src.Node][src.Port] = append(g.dependents[src.Node][src.Port], dst)
	p := src
	g.providers[dst.Node][dst.Port] = &p
	return nil
}

// AlreadyConnectedError reports a second attempt to connect a provider to
// an input port that already has one.
type AlreadyConnectedError struct {
	ThisNode, ThisPort   string
	OtherNode, OtherPort string
}

func (e *AlreadyConnectedError) Error() string {
	return fmt.Sprintf("%s.%s is already connected to %s.%s", e.ThisNode, e.ThisPort, e.OtherNode, e.OtherPort)
}

// HasDependents reports whether the output port (n, p) has at least one
// dependent input port.
func (g *Graph) HasDependents(n, p int) bool {
	return len(g.dependents[n][p]) > 0
}

// HasProvider reports whether the input port (n, p) has a provider.
func (g *Graph) HasProvider(n, p int) bool {
	return g.providers[n][p] != nil
}

// Provider returns the output port feeding input port (n, p), if any.
func (g *Graph) Provider(n, p int) (Port, bool) {
	if pr := g.providers[n][p]; pr != nil {
		return *pr, true
	}
	return Port{}, false
}

// Dependents returns the input ports fed by output port (n, p).
func (g *Graph) Dependents(n, p int) []Port {
	return g.dependents[n][p]
}

// EachInput returns the provider for every declared input port of node n,
// in port-index order (nil entries mean that input port is unlinked).
func (g *Graph) EachInput(n int) []*Port {
	return g.providers[n]
}

// EachOutput returns the dependent list for every declared output port of
// node n, in port-index order.
func (g *Graph) EachOutput(n int) [][]Port {
	return g.dependents[n]
}
