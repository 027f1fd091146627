package simhost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyRoundTrip(t *testing.T) {
	h := New(nil, nil)
	_, ok := h.GetProperty([]string{"ngx", "kong_request_id"})
	assert.False(t, ok)

	h.SetProperty([]string{"ngx", "kong_request_id"}, []byte("abc-123"))
	v, ok := h.GetProperty([]string{"ngx", "kong_request_id"})
	require.True(t, ok)
	assert.Equal(t, "abc-123", string(v))
}

func TestRequestEnvelopeDefaults(t *testing.T) {
	hdr := http.Header{"X-Test": []string{"1"}}
	h := New(hdr, []byte("hello"))

	assert.Equal(t, "1", h.GetHTTPRequestHeaders().Get("X-Test"))
	assert.Equal(t, []byte("hello"), h.GetHTTPRequestBody())
}

func TestSetHTTPRequestHeaderDeletesOnEmpty(t *testing.T) {
	h := New(http.Header{"X-Test": []string{"1"}}, nil)
	h.SetHTTPRequestHeader("X-Test", "")
	assert.Empty(t, h.GetHTTPRequestHeaders().Get("X-Test"))

	h.SetHTTPRequestHeader("X-New", "yes")
	assert.Equal(t, "yes", h.GetHTTPRequestHeaders().Get("X-New"))
}

func TestSendHTTPResponseRecordsStatus(t *testing.T) {
	h := New(nil, nil)
	h.SendHTTPResponse(503, http.Header{"Content-Type": []string{"text/plain"}}, []byte("down"))

	status, sent := h.Sent()
	assert.True(t, sent)
	assert.Equal(t, 503, status)
	assert.Equal(t, []byte("down"), h.GetHTTPResponseBody())
}

func TestDispatchHTTPCallPerformsRealRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upstream", r.URL.Path)
		w.Header().Set("X-Reply", "pong")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong body"))
	}))
	defer srv.Close()

	h := New(nil, nil)
	hdr := http.Header{}
	hdr.Set(":method", "GET")
	hdr.Set(":path", "/upstream")
	hdr.Set(":scheme", "http")
	hdr.Set(":authority", srv.Listener.Addr().String())

	token, err := h.DispatchHTTPCall(context.Background(), srv.Listener.Addr().String(), hdr, nil, nil, 2*time.Second)
	require.NoError(t, err)

	h.Wait(token)

	assert.Equal(t, "pong", h.GetHTTPCallResponseHeaders(token).Get("X-Reply"))
	assert.Equal(t, "pong body", string(h.GetHTTPCallResponseBody(token)))
}

func TestResumeHTTPRequestInvokesCallback(t *testing.T) {
	h := New(nil, nil)
	called := false
	h.OnResume = func() { called = true }
	h.ResumeHTTPRequest()
	assert.True(t, called)
}
