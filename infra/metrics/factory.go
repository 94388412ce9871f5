package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridready/core/factory"
	coremetrics "github.com/kilianp07/gridready/core/metrics"
)

// promConf is the "conf" block of a prometheus sink.
type promConf struct {
	// Labels are attached to every series, e.g. {"site": "north"}.
	Labels map[string]string `json:"labels"`
}

type influxConf struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

func (c influxConf) validate() error {
	if c.URL == "" || c.Bucket == "" {
		return fmt.Errorf("influx sink requires url and bucket")
	}
	return nil
}

func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c promConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		// The /metrics endpoint is served by StartPromServer.
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if len(c.Labels) > 0 {
			reg = prometheus.WrapRegistererWith(c.Labels, reg)
		}
		return NewPromSinkWithRegistry(reg)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c influxConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
