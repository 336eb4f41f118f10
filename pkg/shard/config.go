package shard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// TablePlaceholder is replaced by the logical table name in NameTemplate.
	TablePlaceholder = "{table}"
	// ShardPlaceholder is replaced by the decimal shard index in NameTemplate.
	ShardPlaceholder = "{shard}"

	DefaultShardCount     = 3
	DefaultNameTemplate   = TablePlaceholder + "_" + ShardPlaceholder
	DefaultBufferCapacity = 1024

	// minBufferCapacity holds two empty length prefixes and a one byte name.
	minBufferCapacity = 3
)

// Config controls how a Resolver maps a column value to a physical table.
// ShardCount must agree with the number of physical targets the host
// has configured for the logical table.
type Config struct {
	ShardCount     uint8
	NameTemplate   string
	BufferCapacity int
}

// NewConfig returns the defaults: 3 shards named "{table}_{shard}" with a
// 1024 byte request buffer.
func NewConfig() Config {
	return Config{
		ShardCount:     DefaultShardCount,
		NameTemplate:   DefaultNameTemplate,
		BufferCapacity: DefaultBufferCapacity,
	}
}

// Validate checks the config. The buffer capacity is capped so that any
// result length fits the 16 bit length field of a packed Outcome.
func (c Config) Validate() error {
	if c.ShardCount == 0 {
		return fmt.Errorf("%w: shard count must be greater than 0", ErrInvalidConfig)
	}
	if !strings.Contains(c.NameTemplate, TablePlaceholder) {
		return fmt.Errorf("%w: name template %q is missing %s", ErrInvalidConfig, c.NameTemplate, TablePlaceholder)
	}
	if !strings.Contains(c.NameTemplate, ShardPlaceholder) {
		return fmt.Errorf("%w: name template %q is missing %s", ErrInvalidConfig, c.NameTemplate, ShardPlaceholder)
	}
	if c.BufferCapacity < minBufferCapacity || c.BufferCapacity > math.MaxUint16 {
		return fmt.Errorf("%w: buffer capacity %d outside [%d, %d]", ErrInvalidConfig, c.BufferCapacity, minBufferCapacity, math.MaxUint16)
	}
	return nil
}

// render substitutes the placeholders in the template.
func (c Config) render(logicTable string, shard uint8) string {
	return strings.NewReplacer(
		TablePlaceholder, logicTable,
		ShardPlaceholder, strconv.Itoa(int(shard)),
	).Replace(c.NameTemplate)
}
