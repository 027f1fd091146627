// Package telemetry wraps go.opentelemetry.io/otel span creation around
// node execution, mirroring the teacher's internal/telemetry package: a
// package-level tracer, named attribute keys, and a Trace* helper per
// traced operation, rather than scattering span.SetAttributes calls across
// the engine. Unlike the teacher, the attributes here describe dataflow
// node execution (node name, node type, phase, outcome) instead of LLM
// request/response bodies.
//
// The package defaults to the otel global tracer provider, which is a
// no-op until a host process installs a real one (e.g. via
// go.opentelemetry.io/otel/sdk/trace), so an Engine that never has
// telemetry configured for it pays no exporting cost.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentName is the tracer name every span in this module is created
// under.
const InstrumentName = "github.com/Kong/datakit"

// Attribute keys set on every node span.
var (
	KeyRequestID = attribute.Key("datakit.request_id")
	KeyNodeName  = attribute.Key("datakit.node.name")
	KeyNodeType  = attribute.Key("datakit.node.type")
	KeyPhase     = attribute.Key("datakit.phase")
	KeyOutcome   = attribute.Key("datakit.node.outcome")
)

// Tracer returns the tracer every node span is created from. It reads the
// globally configured provider on each call rather than caching it, so a
// host installing a provider after this package is first imported still
// takes effect.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentName)
}

// StartNodeSpan starts a span for one node Run or Resume call, named after
// the node's configured type. Callers are responsible for calling End on
// the returned span; EndNodeSpan is a convenience for the common case of
// recording an outcome and ending it in one call.
func StartNodeSpan(ctx context.Context, requestID, nodeName, nodeType, phase string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, nodeType)
	span.SetAttributes(
		KeyRequestID.String(requestID),
		KeyNodeName.String(nodeName),
		KeyNodeType.String(nodeType),
		KeyPhase.String(phase),
	)
	return ctx, span
}

// EndNodeSpan records the node's outcome (e.g. "done", "waiting", "fail")
// on the span, marks it as an error when err is non-nil, and ends it.
func EndNodeSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(KeyOutcome.String(outcome))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
