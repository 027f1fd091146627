// Package engine implements the request-scoped filter driver: the fixed
// point scheduler that runs ready nodes to completion, the implicit
// envelope node plumbing that feeds the HTTP request/response into the
// graph and reads its output back out, and the async resume path for
// nodes left Waiting on a host call.
package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kong/datakit/config"
	"github.com/Kong/datakit/depgraph"
	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/internal/logx"
	"github.com/Kong/datakit/internal/telemetry"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
	"github.com/Kong/datakit/trace"
)

// Action mirrors the two outcomes a lifecycle hook can report to the host:
// let the phase proceed, or pause it until ResumeHTTPRequest is called.
type Action int

const (
	ActionContinue Action = iota
	ActionPause
)

// Graph is the compiled, immutable description an Engine runs requests
// against. It is built once per configuration (typically at plugin
// configure time) and shared across every request's Engine; the runtime
// Node instances themselves are built fresh per request by New, since a
// node type may keep per-instance mutable state across its own run/resume
// calls.
type Graph struct {
	compiled *config.Compiled
}

// Compile parses and validates a raw graph document, ready to be driven
// by one Engine per request.
func Compile(data []byte, format config.Format) (*Graph, error) {
	compiled, err := config.Compile(data, format, Implicits())
	if err != nil {
		return nil, err
	}
	return &Graph{compiled: compiled}, nil
}

// CompileWithSchema behaves like Compile but additionally rejects a
// document that fails schema's structural pre-check before any semantic
// compilation runs. A nil schema behaves exactly like Compile.
func CompileWithSchema(data []byte, format config.Format, schema *config.Schema) (*Graph, error) {
	compiled, err := config.CompileWithSchema(data, format, Implicits(), schema)
	if err != nil {
		return nil, err
	}
	return &Graph{compiled: compiled}, nil
}

// kindName renders a store.Kind the way telemetry spans want to see it:
// lowercase and free of the Kind/store qualifiers in the Go identifier.
func kindName(k store.Kind) string {
	switch k {
	case store.KindWaiting:
		return "waiting"
	case store.KindDone:
		return "done"
	case store.KindFail:
		return "fail"
	default:
		return "unstarted"
	}
}

// stateError extracts an error message from a Fail state's first port, if
// any, for attaching to its telemetry span; every other state carries no
// span-level error.
func stateError(st store.NodeState) error {
	if st.Kind != store.KindFail || len(st.Ports) == 0 || st.Ports[0] == nil {
		return nil
	}
	return fmt.Errorf("%s", st.Ports[0].ErrorMessage())
}

func buildNodes(compiled *config.Compiled, logger *zap.Logger) []node.Node {
	nodes := make([]node.Node, len(compiled.NodeNames))
	for i := compiled.NumImplicits; i < len(compiled.NodeNames); i++ {
		n, err := node.NewNode(compiled.NodeTypes[i], compiled.NodeConfigs[i])
		if err != nil {
			logger.Warn("failed instantiating node", zap.String("node", compiled.NodeNames[i]), zap.Error(err))
			continue
		}
		nodes[i] = n
	}
	return nodes
}

func (g *Graph) graph() *depgraph.Graph { return g.compiled.Graph }

// Engine runs one request's worth of graph execution: it owns the
// per-request Data store, the optional debug trace, and the set of
// implicit-port shortcuts computed once from the graph's shape so the
// lifecycle hooks can skip plumbing the host never needs.
type Engine struct {
	graph     *Graph
	nodes     []node.Node
	host      host.Host
	logger    *zap.Logger
	data      *store.Data
	trace     *trace.Trace
	failed    bool
	requestID string

	doRequestHeaders         bool
	doRequestBody            bool
	doServiceRequestHeaders  bool
	doServiceRequestBody     bool
	doServiceResponseHeaders bool
	doServiceResponseBody    bool
	doResponseHeaders        bool
	doResponseBody           bool
}

// New builds an Engine for one request against a shared, already compiled
// Graph. debug enables the tracing observer regardless of the compiled
// document's own top-level "debug" flag; either one makes the engine
// honor a request's trace header.
func New(g *Graph, h host.Host, logger *zap.Logger, debug bool) *Engine {
	if logger == nil {
		logger = logx.Default
	}
	dg := g.graph()

	var tr *trace.Trace
	if debug || g.compiled.Debug {
		tr = trace.New(g.compiled.NodeNames, g.compiled.NodeTypes)
	}

	return &Engine{
		graph:     g,
		nodes:     buildNodes(g.compiled, logger),
		host:      h,
		logger:    logger,
		data:      store.New(dg),
		trace:     tr,
		requestID: uuid.NewString(),

		doRequestHeaders:         dg.HasDependents(nodeRequest, portHeaders),
		doRequestBody:            dg.HasDependents(nodeRequest, portBody),
		doServiceRequestHeaders:  dg.HasProvider(nodeServiceRequest, portHeaders),
		doServiceRequestBody:     dg.HasProvider(nodeServiceRequest, portBody),
		doServiceResponseHeaders: dg.HasDependents(nodeServiceResponse, portHeaders),
		doServiceResponseBody:    dg.HasDependents(nodeServiceResponse, portBody),
		doResponseHeaders:        dg.HasProvider(nodeResponse, portHeaders),
		doResponseBody:           dg.HasProvider(nodeResponse, portBody),
	}
}

// Failed reports whether any node has ever returned Fail this request;
// once true, runNodes stops driving further nodes.
func (e *Engine) Failed() bool { return e.failed }

// RequestID returns this request's generated identifier, attached to the
// engine's log lines and telemetry spans. The default failure body does not
// carry it: its request_id field comes from the host property store only.
func (e *Engine) RequestID() string { return e.requestID }

// setImplicitData seeds one port of an envelope node directly, bypassing
// the run loop, and panics if the store rejects it: implicit node port
// fills are driver-internal and always expected to succeed exactly once
// per port per request.
func (e *Engine) setImplicitData(nodeIdx, port int, p payload.Payload) {
	if err := e.data.FillPort(nodeIdx, port, p); err != nil {
		panic(fmt.Sprintf("engine: error setting implicit node data: %s", err))
	}
	if e.trace != nil {
		if st := e.data.State(nodeIdx); st != nil {
			e.trace.RecordFillPort(e.graph.compiled.NodeNames[nodeIdx], *st)
		}
	}
}

func (e *Engine) setHeadersData(nodeIdx int, h http.Header) {
	e.setImplicitData(nodeIdx, portHeaders, payload.FromHeaders(h))
}

func (e *Engine) setBodyData(nodeIdx int, p payload.Payload) {
	e.setImplicitData(nodeIdx, portBody, p)
}

func (e *Engine) getHeadersData(nodeIdx int) *payload.Payload {
	return e.data.FetchPort(nodeIdx, portHeaders)
}

func (e *Engine) getBodyData(nodeIdx int) *payload.Payload {
	return e.data.FetchPort(nodeIdx, portBody)
}

// runNodes is the fixed point scheduler: it repeatedly scans every
// user-defined node in ascending index order, running any whose inputs are
// all satisfied, until a full sweep runs nothing. A node left Waiting
// downgrades the eventual Action to Pause; a node that Fails stops the
// engine from driving further nodes and (unless a trace is being
// collected, so the trace can still be rendered) triggers the default
// failure response.
func (e *Engine) runNodes(ctx context.Context, phase store.Phase) Action {
	action := ActionContinue
	tracing := e.trace.Enabled()

	from := e.graph.compiled.NumImplicits
	to := len(e.graph.compiled.NodeNames)

	for !e.failed {
		anyRan := false
		for i := from; i < to; i++ {
			inputs, ok := e.data.GetInputsFor(i, nil)
			if !ok {
				continue
			}
			anyRan = true

			n := e.nodes[i]
			nodeName := e.graph.compiled.NodeNames[i]
			nodeType := e.graph.compiled.NodeTypes[i]

			spanCtx, span := telemetry.StartNodeSpan(ctx, e.requestID, nodeName, nodeType, phase.String())
			st := n.Run(spanCtx, e.host, node.Input{Data: inputs, Phase: phase})
			telemetry.EndNodeSpan(span, kindName(st.Kind), stateError(st))

			if e.trace != nil {
				e.trace.RecordRun(nodeName, trace.ModeRun, st)
			}

			switch st.Kind {
			case store.KindWaiting:
				action = ActionPause
			case store.KindFail:
				e.failed = true
				if !tracing {
					e.sendDefaultFailResponse()
				}
			}

			e.data.Set(i, st)
		}
		if !anyRan {
			break
		}
	}

	return action
}
