// Package host defines the narrow interface the engine and node
// implementations use to talk to the surrounding host proxy. The host-proxy
// FFI itself (the real proxy-wasm binding) is an external collaborator and
// out of scope for this repository; Host is the contract the engine is
// specified against.
package host

import (
	"context"
	"net/http"
	"time"
)

// Host is the set of host-proxy APIs consumed by nodes and the filter
// driver, per spec section 6.
type Host interface {
	// DispatchHTTPCall starts an asynchronous outbound HTTP call and
	// returns a token identifying it. The completion is later delivered to
	// the engine out of band (via Engine.OnHTTPCallResponse), not through
	// this call's return value.
	DispatchHTTPCall(ctx context.Context, hostPort string, headers http.Header, body []byte, trailers http.Header, timeout time.Duration) (token uint32, err error)

	// GetHTTPCallResponseHeaders returns the headers of a completed call.
	GetHTTPCallResponseHeaders(token uint32) http.Header
	// GetHTTPCallResponseBody returns the body of a completed call.
	GetHTTPCallResponseBody(token uint32) []byte

	// GetProperty reads a dotted property path from the host's property
	// store (e.g. Kong's ngx.* namespace), returning false if unset.
	GetProperty(path []string) ([]byte, bool)
	// SetProperty writes a dotted property path.
	SetProperty(path []string, value []byte)

	// GetHTTPRequestHeaders/Body and their response-side counterparts read
	// the current envelope the host is holding for this request.
	GetHTTPRequestHeaders() http.Header
	GetHTTPRequestBody() []byte
	GetHTTPResponseHeaders() http.Header
	GetHTTPResponseBody() []byte

	// SetHTTPRequestHeaders/Body and the response-side counterparts
	// overwrite the envelope the host will forward upstream/downstream.
	SetHTTPRequestHeaders(http.Header)
	SetHTTPRequestBody([]byte)
	SetHTTPResponseHeaders(http.Header)
	SetHTTPResponseBody([]byte)

	// SetHTTPRequestHeader/SetHTTPResponseHeader set or (value == "")
	// delete a single header.
	SetHTTPRequestHeader(name, value string)
	SetHTTPResponseHeader(name, value string)

	// SendHTTPResponse short-circuits the request with a locally generated
	// response, e.g. the default 500 on node failure.
	SendHTTPResponse(status int, headers http.Header, body []byte)

	// ResumeHTTPRequest un-pauses a request previously left Paused after a
	// Waiting node, once the engine has processed a call completion.
	ResumeHTTPRequest()
}
