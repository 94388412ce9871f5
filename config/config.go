// Package config loads the engine configuration from a YAML or JSON file,
// an optional .env file and K_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridready/core/metrics"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/infra/kafka"
	"github.com/kilianp07/gridready/infra/monitoring"
	"github.com/kilianp07/gridready/infra/mqtt"
	"github.com/kilianp07/gridready/infra/tracing"
)

type Config struct {
	Service   ServiceConfig     `json:"service"`
	Readiness readiness.Config  `json:"readiness"`
	Store     StoreConfig       `json:"store"`
	HTTP      HTTPConfig        `json:"http"`
	Plants    []model.Plant     `json:"plants"`
	Signals   SignalsConfig     `json:"signals"`
	MQTT      mqtt.Config       `json:"mqtt"`
	Kafka     kafka.Config      `json:"kafka"`
	Metrics   metrics.Config    `json:"metrics"`
	Audit     AuditConfig       `json:"audit"`
	Sentry    monitoring.Config `json:"sentry"`
	Tracing   tracing.Config    `json:"tracing"`
}

// Load reads path, then applies .env and environment overrides. An empty
// path loads the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Service.SetDefaults()
	c.Readiness.SetDefaults()
	c.Store.SetDefaults()
	c.HTTP.SetDefaults()
	c.Signals.SetDefaults()
	c.MQTT.SetDefaults()
	c.Audit.SetDefaults()
	c.Tracing.SetDefaults()
	if len(c.Metrics.Sinks) == 0 {
		c.Metrics.Sinks = append(c.Metrics.Sinks, factoryNop)
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		section string
		err     error
	}{
		{"service", c.Service.Validate()},
		{"readiness", c.Readiness.Validate()},
		{"store", c.Store.Validate()},
		{"signals", c.Signals.Validate()},
		{"mqtt", c.MQTT.Validate()},
		{"kafka", c.Kafka.Validate()},
		{"audit", c.Audit.Validate()},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return fmt.Errorf("%s: %w", ch.section, ch.err)
		}
	}
	if c.Audit.Backend == AuditSQL && c.Store.Driver == StoreMemory {
		return fmt.Errorf("audit: backend sql needs a sql store driver")
	}
	if len(c.Plants) == 0 {
		return fmt.Errorf("plants: at least one plant is required")
	}
	return nil
}
