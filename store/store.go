// Package store implements Data: the per-request memory holding each
// node's execution state and the payloads produced on each of its output
// ports. A Data is owned by exactly one request and discarded at request
// end; it is mutated only by the scheduler, the implicit-node fillers, and
// the resume handler.
package store

import (
	"fmt"

	"github.com/Kong/datakit/depgraph"
	"github.com/Kong/datakit/payload"
)

// Phase identifies the HTTP lifecycle stage a node is being run under.
type Phase int

// The five lifecycle phases the driver advances through.
const (
	PhaseHTTPRequestHeaders Phase = iota
	PhaseHTTPRequestBody
	PhaseHTTPResponseHeaders
	PhaseHTTPResponseBody
	PhaseHTTPCallResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseHTTPRequestHeaders:
		return "http_request_headers"
	case PhaseHTTPRequestBody:
		return "http_request_body"
	case PhaseHTTPResponseHeaders:
		return "http_response_headers"
	case PhaseHTTPResponseBody:
		return "http_response_body"
	case PhaseHTTPCallResponse:
		return "http_call_response"
	default:
		return "unknown"
	}
}

// Kind identifies which of the four NodeState variants a state holds.
type Kind int

const (
	// KindUnstarted is the implicit state of a node with no recorded
	// NodeState yet; there is no corresponding NodeState value for it, it
	// is represented by a nil entry in Data.
	KindUnstarted Kind = iota
	// KindWaiting means the node is awaiting an external async completion.
	KindWaiting
	// KindDone means the node finished successfully.
	KindDone
	// KindFail means the node finished with a failure.
	KindFail
)

// NodeState is one of Waiting(token), Done(ports), or Fail(ports). Ports is
// indexed by output port and holds nil where that port produced no
// payload.
type NodeState struct {
	Kind  Kind
	Token uint32
	Ports []*payload.Payload
}

// Waiting builds a Waiting(token) state.
func Waiting(token uint32) NodeState {
	return NodeState{Kind: KindWaiting, Token: token}
}

// Done builds a terminal success state with the given per-output-port
// payloads (nil entries mean that port produced nothing).
func Done(ports []*payload.Payload) NodeState {
	return NodeState{Kind: KindDone, Ports: ports}
}

// Fail builds a terminal failure state with optional per-output-port error
// payloads.
func Fail(ports []*payload.Payload) NodeState {
	return NodeState{Kind: KindFail, Ports: ports}
}

// CannotOverwriteError is returned by FillPort when a port that already
// holds a payload is filled again.
type CannotOverwriteError struct {
	Node, Port int
}

func (e *CannotOverwriteError) Error() string {
	return fmt.Sprintf("cannot overwrite payload at node %d port %d", e.Node, e.Port)
}

// CannotForcePayloadOnWaitingNodeError is returned by FillPort when called
// against a node that is currently Waiting.
type CannotForcePayloadOnWaitingNodeError struct {
	Node int
}

func (e *CannotForcePayloadOnWaitingNodeError) Error() string {
	return fmt.Sprintf("cannot force a payload onto waiting node %d", e.Node)
}

// Data is the per-request store: a slice of optional NodeState, one entry
// per node in the compiled graph.
type Data struct {
	graph  *depgraph.Graph
	states []*NodeState
}

// New allocates an empty Data over the given graph; every node starts
// Unstarted.
func New(g *depgraph.Graph) *Data {
	return &Data{graph: g, states: make([]*NodeState, g.NodeCount())}
}

// State returns the current state of node n, or nil if it is Unstarted.
func (d *Data) State(n int) *NodeState {
	return d.states[n]
}

// Set unconditionally assigns the state of node n. Used by the driver after
// a node's run/resume returns.
func (d *Data) Set(n int, s NodeState) {
	cp := s
	d.states[n] = &cp
}

// FillPort is used by implicit-node plumbing to seed a single output port
// with a payload without running the node. If the node is Unstarted, it
// creates a Done state with only that port set. If the node is Done or
// Fail, it fills that port only if it is currently empty, else returns
// CannotOverwriteError. If the node is Waiting, it returns
// CannotForcePayloadOnWaitingNodeError. Both errors indicate a driver bug —
// callers that expect fill_port to always succeed (as the driver's implicit
// node plumbing does) should panic on a non-nil error, per the single
// assignment invariant.
func (d *Data) FillPort(n, port int, p payload.Payload) error {
	st := d.states[n]
	if st == nil {
		ports := make([]*payload.Payload, d.graph.NumberOfOutputs(n))
		cp := p
		ports[port] = &cp
		d.states[n] = &NodeState{Kind: KindDone, Ports: ports}
		return nil
	}
	switch st.Kind {
	case KindDone, KindFail:
		if st.Ports[port] != nil {
			return &CannotOverwriteError{Node: n, Port: port}
		}
		cp := p
		st.Ports[port] = &cp
		return nil
	case KindWaiting:
		return &CannotForcePayloadOnWaitingNodeError{Node: n}
	default:
		panic("store: unreachable node state kind")
	}
}

// FetchPort follows the graph's provider pointer for input port (n, port)
// and returns the payload at the source node's output port, or nil if the
// source is not Done/Fail or holds no payload there.
func (d *Data) FetchPort(n, port int) *payload.Payload {
	prov, ok := d.graph.Provider(n, port)
	if !ok {
		return nil
	}
	src := d.states[prov.Node]
	if src == nil || (src.Kind != KindDone && src.Kind != KindFail) {
		return nil
	}
	return src.Ports[prov.Port]
}

// canTrigger is the readiness predicate shared by GetInputsFor: the node's
// existing state must permit (re)triggering, and every linked input must be
// fed by a Done provider holding a payload in the required slot.
func (d *Data) canTrigger(n int, waiting *uint32) bool {
	st := d.states[n]
	if st == nil {
		if waiting != nil {
			return false
		}
	} else {
		switch st.Kind {
		case KindDone, KindFail:
			return false
		case KindWaiting:
			if waiting == nil || *waiting != st.Token {
				return false
			}
		}
	}

	for p := 0; p < d.graph.NumberOfInputs(n); p++ {
		prov, ok := d.graph.Provider(n, p)
		if !ok {
			continue // unlinked input port: always satisfied
		}
		src := d.states[prov.Node]
		if src == nil || src.Kind != KindDone {
			return false
		}
		if src.Ports[prov.Port] == nil {
			return false
		}
	}
	return true
}

// GetInputsFor is the readiness query + materializer: it returns the vector
// of input payloads for node n (indexed by input port, nil for unlinked
// ports) iff n is currently triggerable under the given waiting token
// (nil to check ordinary readiness, non-nil to check whether n is the node
// waiting on that specific token).
func (d *Data) GetInputsFor(n int, waiting *uint32) ([]*payload.Payload, bool) {
	if !d.canTrigger(n, waiting) {
		return nil, false
	}
	in := make([]*payload.Payload, d.graph.NumberOfInputs(n))
	for p := range in {
		prov, ok := d.graph.Provider(n, p)
		if !ok {
			continue
		}
		src := d.states[prov.Node]
		in[p] = src.Ports[prov.Port]
	}
	return in, true
}
