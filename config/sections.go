package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridready/core/factory"
	"github.com/kilianp07/gridready/infra/rediscache"
	"github.com/kilianp07/gridready/infra/sqlstore"
)

var factoryNop = factory.ModuleConfig{Type: "nop"}

// ServiceConfig controls the sweep loop.
type ServiceConfig struct {
	// Timezone is the IANA zone in which schedule dates roll over.
	Timezone             string `json:"timezone"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
	Workers              int    `json:"workers"`
}

func (c *ServiceConfig) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = 300
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
}

func (c ServiceConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.SweepIntervalSeconds < 0 || c.Workers < 0 {
		return fmt.Errorf("sweep_interval_seconds and workers must not be negative")
	}
	return nil
}

// Location resolves Timezone. Call after Validate.
func (c ServiceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepInterval is the period of the background sweep; zero disables it.
func (c ServiceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = sqlstore.DriverSQLite
	StorePostgres = sqlstore.DriverPostgres
)

// StoreConfig selects where records, trigger events and notifications live.
type StoreConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = StoreMemory
	}
	if c.Driver == StoreSQLite && c.DSN == "" {
		c.DSN = "gridready.db"
	}
}

func (c StoreConfig) Validate() error {
	switch c.Driver {
	case StoreMemory:
		return nil
	case StoreSQLite, StorePostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for driver %s", c.Driver)
		}
		return nil
	}
	return fmt.Errorf("unknown driver %s", c.Driver)
}

// SQL returns the sqlstore configuration.
func (c StoreConfig) SQL() sqlstore.Config {
	return sqlstore.Config{Driver: c.Driver, DSN: c.DSN, MaxOpenConns: c.MaxOpenConns}
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Address                string `json:"address"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ShutdownTimeoutSeconds == 0 {
		c.ShutdownTimeoutSeconds = 10
	}
}

// ShutdownTimeout bounds graceful shutdown.
func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Signal cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// SignalsConfig configures the last-known snapshot cache used when a feed
// fails.
type SignalsConfig struct {
	Cache      string            `json:"cache"`
	TTLMinutes int               `json:"ttl_minutes"`
	Redis      rediscache.Config `json:"redis"`
}

func (c *SignalsConfig) SetDefaults() {
	if c.Cache == "" {
		c.Cache = CacheMemory
	}
	if c.TTLMinutes == 0 {
		c.TTLMinutes = 60
	}
}

func (c SignalsConfig) Validate() error {
	switch c.Cache {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache %s", c.Cache)
	}
	if c.TTLMinutes < 0 {
		return fmt.Errorf("ttl_minutes must not be negative")
	}
	return nil
}

// TTL is how long a cached snapshot may bridge a failing feed.
func (c SignalsConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Audit backends.
const (
	AuditNone   = "none"
	AuditMemory = "memory"
	AuditJSONL  = "jsonl"
	AuditSQL    = "sql"
)

// AuditConfig defines the transition audit log storage and rotation.
type AuditConfig struct {
	// Backend selects "memory", "jsonl", "sql" (the store database) or "none".
	Backend string `json:"backend"`
	// Path is the file location of the jsonl log.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = AuditMemory
	}
	if c.Backend == AuditJSONL && c.Path == "" {
		c.Path = "readiness-audit.jsonl"
	}
}

func (c AuditConfig) Validate() error {
	switch c.Backend {
	case AuditNone, AuditMemory, AuditSQL:
		return nil
	case AuditJSONL:
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}
