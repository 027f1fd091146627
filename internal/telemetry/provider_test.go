package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstallLocalProviderExportsSpans(t *testing.T) {
	shutdown := InstallLocalProvider()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, shutdown(ctx))
	}()

	_, span := StartNodeSpan(context.Background(), "req-1", "n1", "call", "http_request_headers")
	EndNodeSpan(span, "done", nil)
}

func TestLogExporterShutdown(t *testing.T) {
	var e logExporter
	require.NoError(t, e.Shutdown(context.Background()))
}
