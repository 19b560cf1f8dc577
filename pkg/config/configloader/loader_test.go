package configloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Database struct {
		URL     string        `koanf:"url"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"database"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func (c *testConfig) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_Load_Priority(t *testing.T) {
	// given
	dir := t.TempDir()
	yamlFile := writeFile(t, dir, "config.yaml", "database:\n  url: from-yaml\n  timeout: 3s\nlog:\n  level: warn\n")
	envFile := writeFile(t, dir, ".env", "TESTAPP_LOG_LEVEL=error\n")
	t.Setenv("TESTAPP_DATABASE_URL", "from-env")

	// when
	cfg, err := Load[*testConfig]("testapp",
		WithFile(yamlFile),
		WithEnvFile(envFile),
		WithDefaults(map[string]any{"database.timeout": "1s", "log.level": "info"}),
	)

	// then
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.URL)
	assert.Equal(t, 3*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "error", cfg.Log.Level)
}

func Test_Load_DefaultsOnly(t *testing.T) {
	// given
	dir := t.TempDir()

	// when
	cfg, err := Load[*testConfig]("testapp",
		WithFile(filepath.Join(dir, "missing.yaml")),
		WithEnvFile(filepath.Join(dir, "missing.env")),
		WithDefaults(map[string]any{"database.url": "file:inventory.db", "database.timeout": "5s"}),
	)

	// then
	require.NoError(t, err)
	assert.Equal(t, "file:inventory.db", cfg.Database.URL)
	assert.Equal(t, 5*time.Second, cfg.Database.Timeout)
}

func Test_Load_ValidationFailure(t *testing.T) {
	// given
	dir := t.TempDir()

	// when
	_, err := Load[*testConfig]("testapp",
		WithFile(filepath.Join(dir, "missing.yaml")),
		WithEnvFile(filepath.Join(dir, "missing.env")),
	)

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
