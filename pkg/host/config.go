package host

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/block/shardwasm/pkg/metrics"
	"github.com/block/shardwasm/pkg/shard"
)

const defaultInstances = 4

// Config controls how the guest is loaded and checked.
type Config struct {
	// ShardCount is sent to the guest's configure export after instantiation.
	ShardCount int
	// Targets optionally lists the physical tables of each logical table.
	// When set, every list must have ShardCount entries and every resolved
	// name must appear in the list for its logical table.
	Targets map[string][]string
	// Instances is the number of guest instances. Calls into one instance
	// are serialised, so this bounds resolve concurrency.
	Instances int

	Logger      *slog.Logger
	MetricsSink metrics.Sink
}

// NewConfig returns a config matching the guest's compiled-in defaults.
func NewConfig() *Config {
	return &Config{
		ShardCount:  shard.DefaultShardCount,
		Instances:   defaultInstances,
		Logger:      slog.Default(),
		MetricsSink: &metrics.NoopSink{},
	}
}

func (c *Config) validate() error {
	if c.ShardCount <= 0 || c.ShardCount > math.MaxUint8 {
		return fmt.Errorf("shard count %d outside [1, %d]", c.ShardCount, math.MaxUint8)
	}
	if c.Instances <= 0 {
		return fmt.Errorf("instances must be greater than 0, got %d", c.Instances)
	}
	for table, targets := range c.Targets {
		if len(targets) != c.ShardCount {
			return fmt.Errorf("%w: table %q has %d targets, shard count is %d", ErrTargetMismatch, table, len(targets), c.ShardCount)
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MetricsSink == nil {
		c.MetricsSink = &metrics.NoopSink{}
	}
	return nil
}
