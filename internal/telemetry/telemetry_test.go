package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"libraengage/internal/telemetry"
)

func TestInit_WithoutEndpointInstallsProvider(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), "libraengage-test", "")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}
