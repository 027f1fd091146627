// Package trace implements the debug tracing observer: an optional,
// per-request log of node run/resume/value events rendered as a JSON array
// and returned as the response body when a request opts into tracing via
// the X-DataKit-Debug-Trace header.
package trace

import (
	"encoding/json"
	"time"

	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// HeaderEnabled reports whether a header value opts a request into
// tracing: any value other than "off", "false", or "0" (case-sensitive,
// matching the header-to-bool rule nodes were specified against) turns
// tracing on; a missing header leaves it off.
func HeaderEnabled(value string, present bool) bool {
	if !present {
		return false
	}
	return value != "off" && value != "false" && value != "0"
}

// RunMode distinguishes a node's first Run from a later Resume in a trace
// entry.
type RunMode int

const (
	ModeRun RunMode = iota
	ModeResume
)

func (m RunMode) String() string {
	if m == ModeResume {
		return "resume"
	}
	return "run"
}

// portValue is one output port's traced payload: its content type (or
// "none"/"fail") and its JSON-decoded value.
type portValue struct {
	DataType string `json:"data_type"`
	Value    any    `json:"value,omitempty"`
}

func portValuesFromState(st store.NodeState, defaultType string) []portValue {
	out := make([]portValue, len(st.Ports))
	for i, p := range st.Ports {
		if p == nil {
			out[i] = portValue{DataType: "none"}
			continue
		}
		if p.IsError() {
			out[i] = portValue{DataType: "fail", Value: p.ErrorMessage()}
			continue
		}
		ct, _ := p.ContentType()
		if ct == "" {
			ct = defaultType
		}
		out[i] = portValue{DataType: ct, Value: jsonValueOf(*p)}
	}
	return out
}

func jsonValueOf(p payload.Payload) any {
	switch p.Kind() {
	case payload.KindJSON:
		return p.JSONValue()
	default:
		var v any
		if err := json.Unmarshal(p.RawBytes(), &v); err == nil {
			return v
		}
		return string(p.RawBytes())
	}
}

// entry is one rendered trace action. Fields are tagged to omit whichever
// ones don't apply to that action kind, matching the compact per-kind
// shape the original trace JSON used.
type entry struct {
	Action   string      `json:"action"`
	Name     string      `json:"name"`
	Type     string      `json:"type,omitempty"`
	Values   []portValue `json:"values,omitempty"`
	At       *float32    `json:"at,omitempty"`
	Duration *float32    `json:"duration,omitempty"`
}

// Trace accumulates events for one request and renders them as a JSON
// array on demand. A nil *Trace is a valid no-op observer: every method is
// safe to call on it so callers don't need to special-case "tracing off".
type Trace struct {
	enabled              bool
	entries              []entry
	nodeTypes            map[string]string
	start                time.Time
	nodeStarts           map[string]time.Time
	origResponseBodyCT   string
	haveOrigResponseBody bool
}

// New builds a Trace that knows about every node's declared type (for the
// "type" field on run/resume entries), initially disabled.
func New(nodeNames, nodeTypes []string) *Trace {
	t := &Trace{
		nodeTypes:  make(map[string]string, len(nodeNames)),
		start:      time.Now(),
		nodeStarts: make(map[string]time.Time),
	}
	for i, name := range nodeNames {
		t.nodeTypes[name] = nodeTypes[i]
	}
	return t
}

// SetEnabled turns tracing on or off for the remainder of the request.
func (t *Trace) SetEnabled(enabled bool) {
	if t == nil {
		return
	}
	t.enabled = enabled
}

// Enabled reports whether this trace is currently recording.
func (t *Trace) Enabled() bool {
	return t != nil && t.enabled
}

func elapsed(d time.Duration) *float32 {
	f := float32(d.Seconds())
	return &f
}

// RecordRun logs a node's Run or Resume and the resulting state in one
// entry, mirroring the source tracer's combined run+value record.
func (t *Trace) RecordRun(name string, mode RunMode, st store.NodeState) {
	if !t.Enabled() {
		return
	}
	var at, dur *float32
	switch mode {
	case ModeRun:
		t.nodeStarts[name] = time.Now()
		at = elapsed(time.Since(t.start))
	case ModeResume:
		if started, ok := t.nodeStarts[name]; ok {
			dur = elapsed(time.Since(started))
		}
	}
	t.entries = append(t.entries, entry{
		Action:   mode.String(),
		Name:     name,
		Type:     t.nodeTypes[name],
		At:       at,
		Duration: dur,
	})
	t.recordValue(name, st)
}

// RecordFillPort logs an implicit node's port being filled outside the
// normal run loop (the request/service_request/service_response/response
// envelope nodes).
func (t *Trace) RecordFillPort(name string, st store.NodeState) {
	if !t.Enabled() {
		return
	}
	t.recordValue(name, st)
}

func (t *Trace) recordValue(name string, st store.NodeState) {
	var action, defaultType string
	switch st.Kind {
	case store.KindWaiting:
		t.entries = append(t.entries, entry{Action: "wait", Name: name, At: elapsed(time.Since(t.start))})
		return
	case store.KindDone:
		action, defaultType = "value", "raw"
	case store.KindFail:
		action, defaultType = "fail", "fail"
	default:
		return
	}
	t.entries = append(t.entries, entry{
		Action: action,
		Name:   name,
		Values: portValuesFromState(st, defaultType),
		At:     elapsed(time.Since(t.start)),
	})
}

// SaveResponseBodyContentType remembers the content type the upstream
// response body arrived with, before the tracer overwrites it with
// "application/json" to carry the trace itself.
func (t *Trace) SaveResponseBodyContentType(ct string) {
	if t == nil {
		return
	}
	t.origResponseBodyCT = ct
	t.haveOrigResponseBody = true
}

// ResponseBodyContentType returns the content type saved by
// SaveResponseBodyContentType, if any.
func (t *Trace) ResponseBodyContentType() (string, bool) {
	if t == nil {
		return "", false
	}
	return t.origResponseBodyCT, t.haveOrigResponseBody
}

// Render serializes the accumulated entries as a JSON array.
func (t *Trace) Render() []byte {
	if t == nil || len(t.entries) == 0 {
		return []byte("[]")
	}
	b, err := json.Marshal(t.entries)
	if err != nil {
		return []byte("[]")
	}
	return b
}
