package config

import (
	"fmt"
	"strings"
	"time"
)

// GrpcClientConfig describes how command line tools reach the gRPC server.
type GrpcClientConfig struct {
	Addr    string        `koanf:"addr"`
	Timeout time.Duration `koanf:"timeout"`
	Retry   RetryConfig   `koanf:"retry"`
}

// String returns a string representation of the gRPC client configuration.
func (c *GrpcClientConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- gRPC client ---\n")
	b.WriteString(fmt.Sprintf("  addr: %s\n", c.Addr))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(c.Retry.String())
	return b.String()
}

func (c *GrpcClientConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("gRPC client address is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("gRPC client timeout must be greater than 0")
	}
	return c.Retry.Validate()
}
