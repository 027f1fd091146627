// Package simhost is a test/demo implementation of host.Host. It holds one
// request/response envelope plus a property bag in memory, and answers
// DispatchHTTPCall by actually performing the outbound call over the
// standard library's net/http client -- there is no proxy underneath it to
// delegate to. It is meant to drive the engine end-to-end from cmd/datakit
// and from engine integration tests, not as a production proxy-wasm
// binding (that binding is out of scope for this repository).
package simhost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kong/datakit/internal/logx"
)

// Call is one completed (or still in-flight) outbound call record.
type Call struct {
	Headers http.Header
	Body    []byte
	Err     error
	done    chan struct{}
}

// Host is an in-memory host.Host. Zero value is not usable; use New.
type Host struct {
	mu sync.Mutex

	reqHeaders  http.Header
	reqBody     []byte
	respHeaders http.Header
	respBody    []byte
	respStatus  int

	properties map[string][]byte

	nextToken uint32
	pending   []uint32
	calls     map[uint32]*Call

	sent   bool
	paused bool

	// Client performs the HTTP call DispatchHTTPCall simulates; replace it
	// in tests to avoid real network I/O.
	Client *http.Client

	// OnResume is invoked by ResumeHTTPRequest, standing in for whatever a
	// real host does to un-suspend request processing (e.g. notifying an
	// event loop). Optional.
	OnResume func()
}

// New builds a Host seeded with the given request headers and body.
func New(reqHeaders http.Header, reqBody []byte) *Host {
	if reqHeaders == nil {
		reqHeaders = http.Header{}
	}
	return &Host{
		reqHeaders:  reqHeaders.Clone(),
		reqBody:     append([]byte(nil), reqBody...),
		respHeaders: http.Header{},
		properties:  map[string][]byte{},
		calls:       map[uint32]*Call{},
		Client:      &http.Client{},
	}
}

func propKey(path []string) string { return strings.Join(path, ".") }

// GetProperty implements host.Host.
func (h *Host) GetProperty(path []string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.properties[propKey(path)]
	return v, ok
}

// SetProperty implements host.Host.
func (h *Host) SetProperty(path []string, value []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.properties[propKey(path)] = append([]byte(nil), value...)
}

// GetHTTPRequestHeaders implements host.Host.
func (h *Host) GetHTTPRequestHeaders() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reqHeaders.Clone()
}

// GetHTTPRequestBody implements host.Host.
func (h *Host) GetHTTPRequestBody() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.reqBody...)
}

// GetHTTPResponseHeaders implements host.Host.
func (h *Host) GetHTTPResponseHeaders() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.respHeaders.Clone()
}

// GetHTTPResponseBody implements host.Host.
func (h *Host) GetHTTPResponseBody() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.respBody...)
}

// SetHTTPRequestHeaders implements host.Host.
func (h *Host) SetHTTPRequestHeaders(hdr http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqHeaders = hdr.Clone()
}

// SetHTTPRequestBody implements host.Host.
func (h *Host) SetHTTPRequestBody(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqBody = append([]byte(nil), b...)
}

// SetHTTPResponseHeaders implements host.Host.
func (h *Host) SetHTTPResponseHeaders(hdr http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.respHeaders = hdr.Clone()
}

// SetHTTPResponseBody implements host.Host.
func (h *Host) SetHTTPResponseBody(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.respBody = append([]byte(nil), b...)
}

// SetHTTPRequestHeader implements host.Host.
func (h *Host) SetHTTPRequestHeader(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if value == "" {
		h.reqHeaders.Del(name)
		return
	}
	h.reqHeaders.Set(name, value)
}

// SetHTTPResponseHeader implements host.Host.
func (h *Host) SetHTTPResponseHeader(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if value == "" {
		h.respHeaders.Del(name)
		return
	}
	h.respHeaders.Set(name, value)
}

// SendHTTPResponse implements host.Host.
func (h *Host) SendHTTPResponse(status int, headers http.Header, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = true
	h.respStatus = status
	h.respHeaders = headers.Clone()
	h.respBody = append([]byte(nil), body...)
}

// ResumeHTTPRequest implements host.Host.
func (h *Host) ResumeHTTPRequest() {
	h.mu.Lock()
	h.paused = false
	cb := h.OnResume
	h.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Sent reports whether SendHTTPResponse has been called, and its status.
func (h *Host) Sent() (status int, sent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.respStatus, h.sent
}

// DispatchHTTPCall implements host.Host by making a real outbound HTTP
// request via Client, translating the :method/:path/:scheme/:authority
// pseudo-headers call nodes set into a standard net/http request. The call
// itself runs on its own goroutine and DispatchHTTPCall returns the token
// right away; Wait and NextPending block until the call behind a token
// completes.
func (h *Host) DispatchHTTPCall(ctx context.Context, hostPort string, headers http.Header, body []byte, trailers http.Header, timeout time.Duration) (uint32, error) {
	h.mu.Lock()
	h.nextToken++
	token := h.nextToken
	h.pending = append(h.pending, token)
	call := &Call{done: make(chan struct{})}
	h.calls[token] = call
	h.mu.Unlock()

	method := headers.Get(":method")
	if method == "" {
		method = http.MethodGet
	}
	path := headers.Get(":path")
	scheme := headers.Get(":scheme")
	if scheme == "" {
		scheme = "http"
	}
	authority := headers.Get(":authority")
	if authority == "" {
		authority = hostPort
	}

	target := fmt.Sprintf("%s://%s%s", scheme, authority, path)

	reqCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, bytes.NewReader(body))
	if err != nil {
		cancel()
		h.completeCall(token, nil, nil, err)
		return token, nil
	}
	for name, values := range headers {
		if strings.HasPrefix(name, ":") {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	go func() {
		defer cancel()
		resp, err := h.Client.Do(req)
		if err != nil {
			h.completeCall(token, nil, nil, err)
			return
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			h.completeCall(token, nil, nil, err)
			return
		}
		h.completeCall(token, resp.Header, respBody, nil)
	}()

	return token, nil
}

func (h *Host) completeCall(token uint32, headers http.Header, body []byte, err error) {
	h.mu.Lock()
	call := h.calls[token]
	if call == nil {
		h.mu.Unlock()
		return
	}
	call.Headers = headers
	call.Body = body
	call.Err = err
	close(call.done)
	h.mu.Unlock()
	if err != nil {
		logx.L().Warn("simhost: outbound call failed", zap.Uint32("token", token), zap.Error(err))
	}
}

// GetHTTPCallResponseHeaders implements host.Host.
func (h *Host) GetHTTPCallResponseHeaders(token uint32) http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	if call := h.calls[token]; call != nil {
		return call.Headers.Clone()
	}
	return http.Header{}
}

// GetHTTPCallResponseBody implements host.Host.
func (h *Host) GetHTTPCallResponseBody(token uint32) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if call := h.calls[token]; call != nil {
		return append([]byte(nil), call.Body...)
	}
	return nil
}

// Wait blocks until the call identified by token completes, for tests and
// the cmd/datakit driver loop that otherwise has no real event loop to wait
// on an OnHTTPCallResponse notification from.
func (h *Host) Wait(token uint32) {
	h.mu.Lock()
	call := h.calls[token]
	h.mu.Unlock()
	if call == nil {
		return
	}
	<-call.done
}

// NextPending blocks until the oldest not-yet-resumed dispatched call
// completes, removes it from the pending queue, and returns its token. It
// returns false once every dispatched call has already been drained,
// standing in for the event notifications a real host would deliver to
// Engine.OnHTTPCallResponse one at a time.
func (h *Host) NextPending() (uint32, bool) {
	h.mu.Lock()
	if len(h.pending) == 0 {
		h.mu.Unlock()
		return 0, false
	}
	token := h.pending[0]
	h.pending = h.pending[1:]
	h.mu.Unlock()
	h.Wait(token)
	return token, true
}
