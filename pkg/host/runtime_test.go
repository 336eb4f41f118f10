package host

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/block/shardwasm/pkg/metrics"
	"github.com/block/shardwasm/pkg/shard"
	"github.com/block/shardwasm/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func newTestRuntime(t *testing.T, config *Config) *Runtime {
	t.Helper()
	wasm := testutils.BuildGuest(t)
	rt, err := New(t.Context(), wasm, config)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, rt.Close(context.Background()))
	})
	return rt
}

func TestConfigValidate(t *testing.T) {
	config := NewConfig()
	assert.NoError(t, config.validate())

	config = NewConfig()
	config.ShardCount = 0
	assert.Error(t, config.validate())

	config = NewConfig()
	config.ShardCount = 256
	assert.Error(t, config.validate())

	config = NewConfig()
	config.Instances = 0
	assert.Error(t, config.validate())

	config = NewConfig()
	config.Targets = map[string][]string{"orders": {"orders_0", "orders_1"}}
	assert.ErrorIs(t, config.validate(), ErrTargetMismatch)

	config = &Config{ShardCount: 2, Instances: 1}
	require.NoError(t, config.validate())
	assert.NotNil(t, config.Logger)
	assert.NotNil(t, config.MetricsSink)
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New(t.Context(), []byte("not wasm"), nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	sink := metrics.NewCounterSink()
	config := NewConfig()
	config.MetricsSink = sink
	rt := newTestRuntime(t, config)

	name, err := rt.Resolve(t.Context(), shard.Condition{Column: "x", LogicTable: "orders", ColumnValue: 7})
	require.NoError(t, err)
	assert.Equal(t, "orders_1", name)

	name, err = rt.Resolve(t.Context(), shard.Condition{Column: "unused", LogicTable: "tbl", ColumnValue: 5})
	require.NoError(t, err)
	assert.Equal(t, "tbl_2", name)

	// a comma in the column name shifts the fields the guest sees.
	_, err = rt.Resolve(t.Context(), shard.Condition{Column: "a,b", LogicTable: "orders", ColumnValue: 7})
	assert.ErrorIs(t, err, shard.ErrInvalidColumnValue)

	_, err = rt.Resolve(t.Context(), shard.Condition{Column: "x", ColumnValue: 7})
	assert.ErrorIs(t, err, shard.ErrMissingField)

	assert.InDelta(t, 2, sink.Value(metrics.RouteResolvedCountMetricName), 0)
	assert.InDelta(t, 2, sink.Value(metrics.RouteErrorCountMetricName), 0)
}

func TestResolveBatchMatchesModulo(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 5
	rt := newTestRuntime(t, config)
	assert.Equal(t, 5, rt.ShardCount())

	conds := make([]shard.Condition, 256)
	for v := range conds {
		conds[v] = shard.Condition{Column: "user_id", LogicTable: "users", ColumnValue: uint8(v)}
	}
	names, err := rt.ResolveBatch(t.Context(), conds)
	require.NoError(t, err)
	require.Len(t, names, len(conds))
	for v, name := range names {
		assert.Equal(t, fmt.Sprintf("users_%d", v%5), name)
	}
}

func TestResolveBatchStopsOnError(t *testing.T) {
	rt := newTestRuntime(t, NewConfig())
	_, err := rt.ResolveBatch(t.Context(), []shard.Condition{
		{Column: "id", LogicTable: "orders", ColumnValue: 1},
		{Column: "id", LogicTable: "", ColumnValue: 2},
	})
	assert.ErrorIs(t, err, shard.ErrMissingField)
}

func TestResolveChecksTargets(t *testing.T) {
	config := NewConfig()
	config.Targets = map[string][]string{
		"orders": {"orders_0", "orders_1", "orders_2"},
		"users":  {"users_a", "users_b", "users_c"},
	}
	rt := newTestRuntime(t, config)

	name, err := rt.Resolve(t.Context(), shard.Condition{Column: "id", LogicTable: "orders", ColumnValue: 8})
	require.NoError(t, err)
	assert.Equal(t, "orders_2", name)

	_, err = rt.Resolve(t.Context(), shard.Condition{Column: "id", LogicTable: "users", ColumnValue: 8})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = rt.Resolve(t.Context(), shard.Condition{Column: "id", LogicTable: "items", ColumnValue: 8})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestResolveManyTargets(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 30
	targets := make([]string, config.ShardCount)
	for i := range targets {
		targets[i] = fmt.Sprintf("orders_%d", i)
	}
	config.Targets = map[string][]string{"orders": targets}
	rt := newTestRuntime(t, config)

	name, err := rt.Resolve(t.Context(), shard.Condition{Column: "id", LogicTable: "orders", ColumnValue: 47})
	require.NoError(t, err)
	assert.Equal(t, "orders_17", name)
}

func TestResolveEmptyTargets(t *testing.T) {
	config := NewConfig()
	config.Targets = map[string][]string{}
	rt := newTestRuntime(t, config)

	name, err := rt.Resolve(t.Context(), shard.Condition{Column: "id", LogicTable: "orders", ColumnValue: 7})
	require.NoError(t, err)
	assert.Equal(t, "orders_1", name)
}

func TestResolveReplacesTrappedInstance(t *testing.T) {
	config := NewConfig()
	config.Instances = 1
	rt := newTestRuntime(t, config)

	// a closed module fails every call, like one that trapped.
	inst := <-rt.pool
	require.NoError(t, inst.mod.Close(t.Context()))
	rt.pool <- inst

	cond := shard.Condition{Column: "id", LogicTable: "orders", ColumnValue: 7}
	_, err := rt.Resolve(t.Context(), cond)
	assert.ErrorContains(t, err, "guest call failed")

	name, err := rt.Resolve(t.Context(), cond)
	require.NoError(t, err)
	assert.Equal(t, "orders_1", name)

	fresh := <-rt.pool
	assert.NotEqual(t, inst.name, fresh.name)
	rt.pool <- fresh
}

func TestResolveCanceled(t *testing.T) {
	config := NewConfig()
	config.Instances = 1
	rt := newTestRuntime(t, config)

	// hold the only instance so Resolve has to wait for it.
	inst := <-rt.pool
	defer func() {
		rt.pool <- inst
	}()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := rt.Resolve(ctx, shard.Condition{Column: "id", LogicTable: "orders", ColumnValue: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
