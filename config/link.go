package config

import (
	"fmt"
	"strings"
)

// nodePort is one endpoint of a user-supplied link. Node and Port are nil
// until resolved; a nil Node means "this node" (filled in with the owning
// node's name while the raw document is read), a nil Port means "resolve
// this automatically from the node type's port list".
type nodePort struct {
	Node *string
	Port *string
}

func (np nodePort) String() string {
	node, port := "", ""
	if np.Node != nil {
		node = *np.Node
	}
	if np.Port != nil {
		port = *np.Port
	}
	return node + "." + port
}

func strp(s string) *string { return &s }

// parseNodePort splits a "node.port" reference; a reference with no dot
// names only a node, leaving the port to be resolved automatically.
func parseNodePort(value string) (node, port *string) {
	trimmed := strings.TrimSpace(value)
	if dot := strings.Index(trimmed, "."); dot >= 0 {
		return strp(strings.TrimSpace(trimmed[:dot])), strp(strings.TrimSpace(trimmed[dot+1:]))
	}
	return strp(trimmed), nil
}

// userLink is a single resolved-or-resolvable connection between two node
// ports, read from either a node's "input"/"output" singular field, its
// "inputs"/"outputs" map or list field, or the default links a node type's
// Config contributes when the user gave it none of its own.
type userLink struct {
	From nodePort
	To   nodePort
}

func newLink(fromNode, fromPort, toNode, toPort *string) userLink {
	return userLink{From: nodePort{Node: fromNode, Port: fromPort}, To: nodePort{Node: toNode, Port: toPort}}
}

// newReverseLink builds a link from an "outputs" entry, where the map key
// or array value names the near side's own port and the string value names
// the far side, following the original compiler's treatment of output
// declarations as reversed input declarations.
func newReverseLink(toNode, toPort, fromNode, fromPort *string) userLink {
	return newLink(fromNode, fromPort, toNode, toPort)
}

func acceptPortName(port string, ports *[]string, userDefined bool) bool {
	for _, p := range *ports {
		if p == port {
			return true
		}
	}
	if userDefined {
		*ports = append(*ports, port)
		return true
	}
	return false
}

func getOrCreateOutput(np nodePort, outs *[]string, userDefined bool) (string, error) {
	if len(*outs) > 0 {
		return (*outs)[0], nil
	}
	if userDefined {
		name, err := makePortName(np)
		if err != nil {
			return "", err
		}
		*outs = append(*outs, name)
		return name, nil
	}
	return "", fmt.Errorf("node in link has no output ports")
}

func createOrGetInput(np nodePort, ins *[]string, userDefined bool, n int) (string, error) {
	if userDefined {
		name, err := makePortName(np)
		if err != nil {
			return "", err
		}
		for _, p := range *ins {
			if p == name {
				return "", fmt.Errorf("duplicated input port %s", name)
			}
		}
		*ins = append(*ins, name)
		return name, nil
	}
	if n-1 < len(*ins) {
		return (*ins)[n-1], nil
	}
	return "", fmt.Errorf("too many inputs declared (node type supports %d inputs)", len(*ins))
}

func makePortName(np nodePort) (string, error) {
	if np.Node == nil {
		return "", fmt.Errorf("could not resolve a name")
	}
	if np.Port != nil {
		return *np.Node + "." + *np.Port, nil
	}
	return *np.Node, nil
}

// resolvePortNames fills in whichever endpoint of the link was left
// unnamed, growing the owning node's user-defined port lists as needed.
// linkOrdinal is the 1-based count of links already resolved onto dst's
// input side, used to positionally match un-keyed "inputs" entries against
// a closed (non-user-defined) port list.
func (l *userLink) resolvePortNames(src, dst *portInfo, linkOrdinal int) error {
	var fromPort, toPort *string

	if l.From.Port != nil {
		if !acceptPortName(*l.From.Port, &src.Outs, src.UserOuts) {
			return fmt.Errorf("invalid output port name %s.%s", *l.From.Node, *l.From.Port)
		}
	} else {
		name, err := getOrCreateOutput(l.To, &src.Outs, src.UserOuts)
		if err != nil {
			return err
		}
		fromPort = strp(name)
	}

	if l.To.Port != nil {
		if !acceptPortName(*l.To.Port, &dst.Ins, dst.UserIns) {
			return fmt.Errorf("invalid input port name %s.%s", *l.To.Node, *l.To.Port)
		}
	} else {
		name, err := createOrGetInput(l.From, &dst.Ins, dst.UserIns, linkOrdinal)
		if err != nil {
			return err
		}
		toPort = strp(name)
	}

	if fromPort != nil {
		l.From.Port = fromPort
	}
	if toPort != nil {
		l.To.Port = toPort
	}
	return nil
}
