package cloudmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPusherDisabledOutsideCloudMode(t *testing.T) {
	cfg := config.Config{Mode: config.ModeOSS}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestNewPusherRejectsUnsupportedExporter(t *testing.T) {
	cfg := config.Config{Mode: config.ModeCloud}
	cfg.Cloud.Metrics = config.CloudMetricsConfig{
		Enabled:  true,
		Exporter: "prometheus_pushgateway",
		Endpoint: "https://metrics.example.com/api/v1/write",
	}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestNewPusherAcceptsRemoteWrite(t *testing.T) {
	cfg := config.Config{Mode: config.ModeCloud}
	cfg.Cloud.Metrics = config.CloudMetricsConfig{
		Enabled:  true,
		Exporter: "prometheus_remote_write",
		Endpoint: "https://metrics.example.com/api/v1/write",
	}
	require.NotNil(t, NewPusher(cfg, zap.NewNop()))
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stratum_cloud_test_total"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "stratum_cloud_test_duration_seconds"})
	registry.MustRegister(counter, histogram)
	counter.Inc()
	histogram.Observe(0.1)

	families, err := registry.Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 1)
	require.NotEmpty(t, series[0].Labels)
	assert.Equal(t, "__name__", series[0].Labels[0].Name)
	assert.Equal(t, "stratum_cloud_test_total", series[0].Labels[0].Value)
	require.Len(t, series[0].Samples, 1)
	assert.Equal(t, 1.0, series[0].Samples[0].Value)
	assert.Equal(t, int64(1000), series[0].Samples[0].Timestamp)
}
