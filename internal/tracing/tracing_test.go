package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("None", func(t *testing.T) {
		shutdown, err := Setup(ctx, ExporterNone, "guidebot", "test")
		require.NoError(t, err)
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Setup(ctx, "zipkin", "guidebot", "test")
		assert.Error(t, err)
	})

	t.Run("StdoutWritesSpans", func(t *testing.T) {
		prev := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(prev) })

		var buf bytes.Buffer
		shutdown, err := setup(ctx, ExporterStdout, "guidebot", "test", &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(ctx, "rag.answer")
		span.End()

		require.NoError(t, shutdown(ctx))
		assert.Contains(t, buf.String(), "rag.answer")
		assert.Contains(t, buf.String(), "guidebot")
	})
}
