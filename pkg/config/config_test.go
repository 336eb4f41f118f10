package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/block/shardwasm/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shardwasm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1"
guest:
  path: shardwasm.wasm
sharding:
  column: user_id
  tables:
    orders: [orders_0, orders_1, orders_2]
database:
  dsn: root@tcp(127.0.0.1:3306)/shop
logging:
  format: json
  level: debug
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "shardwasm.wasm", config.Guest.Path)
	assert.Equal(t, 4, config.Guest.Instances)
	assert.Equal(t, 3, config.Sharding.ShardCount)
	assert.Equal(t, 3, config.Database.MaxRetries)
	assert.Equal(t, []string{"orders_0", "orders_1", "orders_2"}, config.Sharding.Tables["orders"])

	hc := config.HostConfig(nil, &metrics.NoopSink{})
	assert.Equal(t, 3, hc.ShardCount)
	assert.Equal(t, 4, hc.Instances)
	assert.Equal(t, config.Sharding.Tables, hc.Targets)

	var buf bytes.Buffer
	config.NewLogger(&buf).Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Version:  "1",
			Guest:    GuestConfig{Path: "g.wasm"},
			Sharding: ShardingConfig{Column: "user_id"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no version", func(c *Config) { c.Version = "" }},
		{"no guest", func(c *Config) { c.Guest.Path = "" }},
		{"no column", func(c *Config) { c.Sharding.Column = "" }},
		{"negative instances", func(c *Config) { c.Guest.Instances = -1 }},
		{"shard count too large", func(c *Config) { c.Sharding.ShardCount = 256 }},
		{"target mismatch", func(c *Config) {
			c.Sharding.ShardCount = 2
			c.Sharding.Tables = map[string][]string{"orders": {"orders_0"}}
		}},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "version: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `version: "1"`))
	assert.ErrorContains(t, err, "guest.path is required")
}
