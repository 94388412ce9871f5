package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	metrics "github.com/kilianp07/gridready/core/metrics"
)

func TestMetricsConfigDecodeYAML(t *testing.T) {
	data := `
prometheus_address: ":9100"
sinks:
  - type: counting
  - type: influx
    conf:
      url: http://influx:8086
      bucket: readiness
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	assert.Equal(t, ":9100", cfg.PrometheusAddress)
	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, "influx", cfg.Sinks[1].Type)
	assert.Equal(t, "readiness", cfg.Sinks[1].Conf["bucket"])
}

func TestMetricsConfigDecodeJSONUnknownSink(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"statsd"}]}`), &cfg))
	_, err := metrics.NewMetricsSink(cfg.Sinks)
	assert.Error(t, err)
}
