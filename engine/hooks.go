package engine

import (
	"context"

	"github.com/Kong/datakit/internal/telemetry"
	"github.com/Kong/datakit/node"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
	"github.com/Kong/datakit/trace"
)

// OnRequestHeaders is the first lifecycle hook: it seeds the request
// node's headers port (if anything depends on it), runs every node ready
// at this phase, and eagerly forwards service_request headers upstream
// unless the request declares a body the host hasn't delivered yet.
func (e *Engine) OnRequestHeaders(ctx context.Context) Action {
	e.debugInit()

	if e.doRequestHeaders {
		e.setHeadersData(nodeRequest, e.host.GetHTTPRequestHeaders())
	}

	action := e.runNodes(ctx, store.PhaseHTTPRequestHeaders)

	headers := e.host.GetHTTPRequestHeaders()
	if headers.Get("Content-Length") == "" && headers.Get("Transfer-Encoding") == "" {
		e.setServiceRequestHeaders()
	}

	e.prepServiceRequestBody()

	return action
}

// OnRequestBody feeds the request body in once the host signals
// end-of-stream, runs the graph, and flushes any service_request headers
// or body that are now ready to forward upstream.
func (e *Engine) OnRequestBody(ctx context.Context, eof bool) Action {
	if eof && e.doRequestBody {
		body := e.host.GetHTTPRequestBody()
		contentType := e.host.GetHTTPRequestHeaders().Get("Content-Type")
		e.setBodyData(nodeRequest, payload.FromBytes(body, contentType))
	}

	action := e.runNodes(ctx, store.PhaseHTTPRequestBody)

	e.setServiceRequestHeaders()
	e.setServiceRequestBody()

	return action
}

// OnResponseHeaders feeds the upstream response headers in, runs the
// graph, and writes back whatever the graph produced for the response
// headers/body envelope, then activates the trace body swap if tracing.
func (e *Engine) OnResponseHeaders(ctx context.Context) Action {
	if e.doServiceResponseHeaders {
		e.setHeadersData(nodeServiceResponse, e.host.GetHTTPResponseHeaders())
	}

	action := e.runNodes(ctx, store.PhaseHTTPResponseHeaders)

	if e.doResponseHeaders {
		if p := e.getHeadersData(nodeResponse); p != nil {
			e.host.SetHTTPResponseHeaders(payload.ToHeaders(p))
		}
	}

	if e.doResponseBody {
		e.setContentHeaders(nodeResponse, e.host.SetHTTPResponseHeader)
	}

	e.debugDoneHeaders()

	return action
}

// OnResponseBody feeds the upstream response body in once complete, runs
// the graph, and writes the final response body: what the graph produced
// for the response node. Absent that, with tracing on, the original body is
// fed into the response node's body port so the trace records it as a
// value; debugDone then replaces the whole body with the rendered trace.
func (e *Engine) OnResponseBody(ctx context.Context, eof bool) Action {
	if !eof {
		return ActionPause
	}

	if e.doServiceResponseBody {
		body := e.host.GetHTTPResponseBody()
		contentType := e.host.GetHTTPResponseHeaders().Get("Content-Type")
		e.setBodyData(nodeServiceResponse, payload.FromBytes(body, contentType))
	}

	action := e.runNodes(ctx, store.PhaseHTTPResponseBody)

	if e.doResponseBody {
		if p := e.getBodyData(nodeResponse); p != nil {
			contentType := e.host.GetHTTPResponseHeaders().Get("Content-Type")
			if bytes, err := p.ToBytes(contentType); err == nil {
				e.host.SetHTTPResponseBody(bytes)
			} else {
				e.host.SetHTTPResponseBody(nil)
			}
		} else if e.trace != nil {
			if ct, ok := e.trace.ResponseBodyContentType(); ok {
				body := e.host.GetHTTPResponseBody()
				e.setBodyData(nodeResponse, payload.FromBytes(body, ct))
			}
		}
	}

	e.debugDone()

	return action
}

// OnHTTPCallResponse resumes the single node (if any) waiting on this
// completion token, then re-enters the fixed point scheduler so any nodes
// that became ready as a result get to run, and finally flushes any
// service_request plumbing that only became ready now.
func (e *Engine) OnHTTPCallResponse(ctx context.Context, token uint32) {
	from := e.graph.compiled.NumImplicits
	to := len(e.graph.compiled.NodeNames)

	for i := from; i < to; i++ {
		inputs, ok := e.data.GetInputsFor(i, &token)
		if !ok {
			continue
		}

		n := e.nodes[i]
		nodeName := e.graph.compiled.NodeNames[i]
		nodeType := e.graph.compiled.NodeTypes[i]

		spanCtx, span := telemetry.StartNodeSpan(ctx, e.requestID, nodeName, nodeType, store.PhaseHTTPCallResponse.String())
		st := n.Resume(spanCtx, e.host, node.Input{Data: inputs, Phase: store.PhaseHTTPCallResponse, Token: token})
		telemetry.EndNodeSpan(span, kindName(st.Kind), stateError(st))

		if e.trace != nil {
			e.trace.RecordRun(nodeName, trace.ModeResume, st)
		}

		e.data.Set(i, st)
		break
	}

	e.runNodes(ctx, store.PhaseHTTPCallResponse)

	e.setServiceRequestHeaders()
	e.prepServiceRequestBody()

	e.host.ResumeHTTPRequest()
}
