package config

import (
	"fmt"
	"strings"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// String returns a string representation of the log configuration.
func (c *LogConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Log ---\n")
	b.WriteString(fmt.Sprintf("  level: %s\n", c.Level))
	b.WriteString(fmt.Sprintf("  format: %s\n", c.Format))
	return b.String()
}

func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Level)
	}
	switch c.Format {
	case "", LogFormatJSON, LogFormatText:
		return nil
	default:
		return fmt.Errorf("unsupported log format %q", c.Format)
	}
}
