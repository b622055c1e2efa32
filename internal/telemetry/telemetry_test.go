package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "repoqad", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestDisabledIsInert(t *testing.T) {
	tel, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, tel.provider)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestInvalidSampleRate(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, SampleRate: -0.5}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Enabled: true, SampleRate: 1.5}, nil)
	assert.Error(t, err)
}

func TestEnabledInstallsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tel, err := New(context.Background(), Config{
		Enabled:  true,
		Insecure: true,
	}, nil)
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
