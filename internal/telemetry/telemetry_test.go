package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"shippingquote/internal/aggregate"
	"shippingquote/internal/provider"
	"shippingquote/internal/provider/courier"
	"shippingquote/internal/telemetry"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := telemetry.Setup(t.Context(), telemetry.Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))

	_, isSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	require.False(t, isSDK)
}

func TestSetup_InstallsMeterProvider(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	shutdown, err := telemetry.Setup(t.Context(), telemetry.Config{
		MetricsEnabled:  true,
		MetricsEndpoint: "127.0.0.1:4317",
		MetricsInsecure: true,
		MetricsInterval: time.Hour,
	})
	require.NoError(t, err)

	_, isSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, isSDK, "global meter provider should be the sdk one")

	// Nothing listens on the collector port; shutdown only has to return.
	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

func TestNewMeterProvider_RecordsProviderCalls(t *testing.T) {
	t.Parallel()

	// Arrange: an extra in-process reader next to the OTLP one
	reader := sdkmetric.NewManualReader()
	mp, err := telemetry.NewMeterProvider(t.Context(), telemetry.Config{
		ServiceName:     "shipping-quote-test",
		MetricsEndpoint: "127.0.0.1:4317",
		MetricsInsecure: true,
		MetricsInterval: time.Hour,
	}, sdkmetric.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = mp.Shutdown(ctx)
	})

	agg := aggregate.New([]provider.Provider{courier.New(courier.Jadlog(), nil)}, aggregate.WithMeterProvider(mp))

	// Act
	agg.CalculateAll(t.Context(), "01310100", 1500)

	// Assert
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	name, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "shipping-quote-test", name.AsString())

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "shipping.provider.calls" {
				found = true
			}
		}
	}
	require.True(t, found, "provider call counter exported")
}

func TestNewTracerProvider_ExportsToZipkin(t *testing.T) {
	t.Parallel()

	var received atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(b), "quote.test"))
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	tp, err := telemetry.NewTracerProvider(telemetry.Config{
		Enabled:     true,
		ZipkinURL:   collector.URL + "/api/v2/spans",
		ServiceName: "shipping-quote-test",
	})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(t.Context(), "quote.test")
	span.End()

	require.NoError(t, tp.Shutdown(t.Context()))
	require.EqualValues(t, 1, received.Load())
}

func TestNewTracerProvider_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := telemetry.NewTracerProvider(telemetry.Config{Enabled: true, ZipkinURL: "::not a url"})
	require.Error(t, err)
}
