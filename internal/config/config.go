// Package config holds the configuration of the inventory process.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kristinauko/BookStoreInventory/pkg/config"
	"github.com/kristinauko/BookStoreInventory/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer     config.HTTPConfig           `koanf:"server"`
	Database       config.DatabaseConfig       `koanf:"database"`
	Log            config.LogConfig            `koanf:"log"`
	PProf          config.PProfConfig          `koanf:"pprof"`
	GRPC           config.GrpcServerConfig     `koanf:"grpc"`
	Client         config.GrpcClientConfig     `koanf:"client"`
	Shutdown       config.ShutdownConfig       `koanf:"shutdown"`
	NATS           config.NATSConfig           `koanf:"nats"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
	Telemetry      config.TelemetryConfig      `koanf:"telemetry"`
}

// Defaults lets the process start against a local inventory.db with no configuration at all.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":                        8080,
		"server.maxHeaderBytes":              1 << 20,
		"server.timeout.read":                5 * time.Second,
		"server.timeout.write":               10 * time.Second,
		"server.timeout.idle":                120 * time.Second,
		"server.timeout.readHeader":          2 * time.Second,
		"database.driver":                    config.DriverSQLite,
		"database.url":                       "file:inventory.db?_busy_timeout=5000&_journal_mode=WAL",
		"database.timeout":                   5 * time.Second,
		"database.migrate":                   true,
		"log.level":                          "info",
		"log.format":                         config.LogFormatJSON,
		"pprof.enabled":                      false,
		"pprof.addr":                         "localhost:6060",
		"grpc.port":                          "9090",
		"grpc.reflection":                    false,
		"grpc.healthinterval":                10 * time.Second,
		"client.addr":                        "localhost:9090",
		"client.timeout":                     2 * time.Second,
		"client.retry.maxattempts":           3,
		"client.retry.initialbackoff":        100 * time.Millisecond,
		"shutdown.timeout":                   10 * time.Second,
		"nats.enabled":                       false,
		"nats.url":                           "nats://localhost:4222",
		"nats.timeout":                       5 * time.Second,
		"nats.stream":                        "INVENTORY",
		"circuitbreaker.consecutivefailures": 5,
		"circuitbreaker.errorratepercent":    50,
		"circuitbreaker.opentimeout":         30 * time.Second,
		"circuitbreaker.halfopenrequests":    1,
		"telemetry.traces.enabled":           false,
		"telemetry.traces.otlphttp.timeout":  5 * time.Second,
		"telemetry.metrics.enabled":          true,
		"telemetry.metrics.addr":             ":9464",
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Client.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.NATS.String())
	b.WriteString(c.CircuitBreaker.String())
	b.WriteString(c.Telemetry.String())
	return b.String()
}

type section interface {
	Validate() error
}

// Validate checks every section and reports all failures together.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		s    section
	}{
		{"server", &c.HTTPServer},
		{"database", &c.Database},
		{"log", &c.Log},
		{"pprof", &c.PProf},
		{"grpc", &c.GRPC},
		{"client", &c.Client},
		{"shutdown", &c.Shutdown},
		{"nats", &c.NATS},
		{"circuitbreaker", &c.CircuitBreaker},
		{"telemetry", &c.Telemetry},
	}
	var errs []error
	for _, sec := range sections {
		if err := sec.s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sec.name, err))
		}
	}
	return errors.Join(errs...)
}
