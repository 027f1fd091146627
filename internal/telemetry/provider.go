package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Kong/datakit/internal/logx"
)

// logExporter is a real sdktrace.SpanExporter that forwards each finished
// node span to internal/logx instead of an OTLP collector: the
// cmd/datakit CLI has no metrics/tracing backend to dial, but still wants
// a genuine SDK-backed TracerProvider (real sampling, batching, resource
// attributes) rather than the otel global no-op, so "datakit run --trace"
// and "datakit serve" can surface span timing in the same structured log
// stream as everything else they print. Spans are logged at debug level,
// which logx's default info level does not emit.
type logExporter struct{}

func (logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := make([]zap.Field, 0, len(s.Attributes())+2)
		fields = append(fields,
			zap.String("span", s.Name()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
		)
		for _, attr := range s.Attributes() {
			fields = append(fields, zap.String(string(attr.Key), attr.Value.Emit()))
		}
		logx.L().Debug("span", fields...)
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }

// InstallLocalProvider registers a real go.opentelemetry.io/otel/sdk/trace
// TracerProvider as the global provider, exporting every node span through
// logx rather than over OTLP. Callers (cmd/datakit) use this for local
// diagnostics; an embedding host process that wants spans to actually leave
// the process installs its own provider before the engine ever runs, and
// this function is never called.
func InstallLocalProvider() func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(logExporter{}),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
