package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/trace"
)

// TraceHeader is the request header that opts a request into tracing.
const TraceHeader = "X-DataKit-Debug-Trace"

// requestIDProperty is the host property path carrying Kong's per-request
// identifier, included in the default failure body when available.
var requestIDProperty = []string{"ngx", "kong_request_id"}

type errorBody struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Engine) sendDefaultFailResponse() {
	var requestID string
	if b, ok := e.host.GetProperty(requestIDProperty); ok {
		requestID = string(b)
	}
	body, err := json.Marshal(errorBody{Message: "An unexpected error ocurred", RequestID: requestID})
	if err != nil {
		body = []byte(`{"message":"An unexpected error ocurred"}`)
	}
	e.logger.Warn("sending default failure response", zap.String("request_id", e.requestID), zap.String("kong_request_id", requestID))
	headers := http.Header{}
	headers.Set("Content-Type", payload.ContentTypeJSON)
	e.host.SendHTTPResponse(500, headers, body)
}

// setContentHeaders mirrors Content-Type/Content-Length onto the outgoing
// envelope from a body payload, and always strips Content-Encoding since
// any compression the original body carried no longer applies to
// whatever the graph produced.
func (e *Engine) setContentHeaders(nodeIdx int, setHeader func(name, value string)) {
	p := e.getBodyData(nodeIdx)
	if p == nil {
		setHeader("Content-Encoding", "")
		return
	}
	if ct, ok := p.ContentType(); ok {
		setHeader("Content-Type", ct)
	}
	if n, ok := p.Len(); ok {
		setHeader("Content-Length", strconv.Itoa(n))
	} else {
		setHeader("Content-Length", "")
	}
	setHeader("Content-Encoding", "")
}

func (e *Engine) setServiceRequestHeaders() {
	if !e.doServiceRequestHeaders {
		return
	}
	if p := e.getHeadersData(nodeServiceRequest); p != nil {
		e.host.SetHTTPRequestHeaders(payload.ToHeaders(p))
		e.doServiceRequestHeaders = false
	}
}

func (e *Engine) prepServiceRequestBody() {
	if !e.doServiceRequestBody {
		return
	}
	e.setContentHeaders(nodeServiceRequest, e.host.SetHTTPRequestHeader)
}

func (e *Engine) setServiceRequestBody() {
	if !e.doServiceRequestBody {
		return
	}
	p := e.getBodyData(nodeServiceRequest)
	if p == nil {
		return
	}
	contentType := e.host.GetHTTPRequestHeaders().Get("Content-Type")
	if bytes, err := p.ToBytes(contentType); err == nil {
		e.host.SetHTTPRequestBody(bytes)
	}
	e.doServiceRequestBody = false
}

func (e *Engine) debugInit() {
	if e.trace == nil {
		return
	}
	headers := e.host.GetHTTPRequestHeaders()
	_, present := headers[http.CanonicalHeaderKey(TraceHeader)]
	if trace.HeaderEnabled(headers.Get(TraceHeader), present) {
		e.trace.SetEnabled(true)
		e.doResponseBody = true
	}
}

func (e *Engine) debugDoneHeaders() {
	if e.trace == nil || !e.trace.Enabled() {
		return
	}
	ct := e.host.GetHTTPResponseHeaders().Get("Content-Type")
	e.trace.SaveResponseBodyContentType(ct)
	e.host.SetHTTPResponseHeader("Content-Type", payload.ContentTypeJSON)
	e.host.SetHTTPResponseHeader("Content-Length", "")
	e.host.SetHTTPResponseHeader("Content-Encoding", "")
}

func (e *Engine) debugDone() {
	if e.trace == nil || !e.trace.Enabled() {
		return
	}
	e.host.SetHTTPResponseBody(e.trace.Render())
}
