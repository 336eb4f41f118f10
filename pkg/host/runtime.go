// Package host loads the sharding guest into a wazero runtime and drives it.
//
// The host side of the ABI is small: it exports sharding.poll_table, which
// copies the encoded request into the buffer the guest offers, then reads
// the physical table name back from the address in the packed outcome of
// do_work.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/block/shardwasm/pkg/metrics"
	"github.com/block/shardwasm/pkg/shard"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/errgroup"
)

const (
	hostModuleName = "sharding"
	pollTableName  = "poll_table"
	doWorkName     = "do_work"
	configureName  = "configure"
	shardCountName = "shard_count"
	initializeName = "_initialize"
)

var (
	ErrMissingExport  = errors.New("guest is missing a required export")
	ErrTargetMismatch = errors.New("targets do not match the guest shard count")
	ErrUnknownTarget  = errors.New("resolved table is not a configured target")
)

// requestKey carries the encoded request to poll_table for the duration
// of one do_work call.
type requestKey struct{}

type instance struct {
	name   string
	mod    api.Module
	doWork api.Function
}

// Runtime owns a wazero runtime and a fixed pool of guest instances.
type Runtime struct {
	config   *Config
	logger   *slog.Logger
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	pool     chan *instance
}

// New compiles the guest and instantiates config.Instances copies of it.
// Each copy is configured with config.ShardCount and verified to report it.
func New(ctx context.Context, wasm []byte, config *Config) (*Runtime, error) {
	if config == nil {
		config = NewConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{
		config:  config,
		logger:  config.Logger,
		runtime: wazero.NewRuntime(ctx),
		pool:    make(chan *instance, config.Instances),
	}
	if err := rt.init(ctx, wasm); err != nil {
		_ = rt.runtime.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) init(ctx context.Context, wasm []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt.runtime); err != nil {
		return fmt.Errorf("could not instantiate WASI: %w", err)
	}
	_, err := rt.runtime.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().WithFunc(pollTable).Export(pollTableName).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("could not instantiate host module: %w", err)
	}
	if rt.compiled, err = rt.runtime.CompileModule(ctx, wasm); err != nil {
		return fmt.Errorf("could not compile guest: %w", err)
	}
	for range rt.config.Instances {
		inst, err := rt.instantiate(ctx)
		if err != nil {
			return err
		}
		rt.pool <- inst
	}
	rt.logger.Info("sharding guest loaded",
		"instances", rt.config.Instances,
		"shard-count", rt.config.ShardCount,
		"targets", len(rt.config.Targets),
	)
	return nil
}

func (rt *Runtime) instantiate(ctx context.Context) (*instance, error) {
	name := "shard-" + uuid.New().String()
	mod, err := rt.runtime.InstantiateModule(ctx, rt.compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions(initializeName))
	if err != nil {
		return nil, fmt.Errorf("could not instantiate guest: %w", err)
	}
	inst := &instance{name: name, mod: mod, doWork: mod.ExportedFunction(doWorkName)}
	if err := rt.configure(ctx, inst); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return inst, nil
}

// configure pushes the shard count into the guest and reads it back, so a
// guest built with a different count is caught at load time.
func (rt *Runtime) configure(ctx context.Context, inst *instance) error {
	fns := map[string]api.Function{}
	for _, name := range []string{doWorkName, configureName, shardCountName} {
		fn := inst.mod.ExportedFunction(name)
		if fn == nil {
			return fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
		fns[name] = fn
	}
	results, err := fns[configureName].Call(ctx, api.EncodeI32(int32(rt.config.ShardCount)))
	if err != nil {
		return fmt.Errorf("could not configure guest: %w", err)
	}
	if status := shard.Status(api.DecodeI32(results[0])); status != shard.StatusOK {
		return fmt.Errorf("guest rejected shard count %d: %w", rt.config.ShardCount, status.Err())
	}
	if results, err = fns[shardCountName].Call(ctx); err != nil {
		return fmt.Errorf("could not read guest shard count: %w", err)
	}
	if got := int(api.DecodeI32(results[0])); got != rt.config.ShardCount {
		return fmt.Errorf("%w: guest reports %d, want %d", ErrTargetMismatch, got, rt.config.ShardCount)
	}
	return nil
}

// pollTable is sharding.poll_table. It returns -1 when there is no request
// in flight or the request does not fit, which the guest reports as a
// truncated buffer.
func pollTable(ctx context.Context, mod api.Module, addr int64, capacity int32) int32 {
	payload, ok := ctx.Value(requestKey{}).([]byte)
	if !ok || capacity < 0 || len(payload) > int(capacity) {
		return -1
	}
	if addr < 0 || addr > int64(^uint32(0)) {
		return -1
	}
	if !mod.Memory().Write(uint32(addr), payload) {
		return -1
	}
	return int32(len(payload))
}

// Resolve returns the physical table for one row. The reserved target
// names segment is sent empty and configured targets are checked against
// the resolved name instead.
func (rt *Runtime) Resolve(ctx context.Context, cond shard.Condition) (name string, err error) {
	start := time.Now()
	defer func() {
		rt.report(ctx, time.Since(start), err)
	}()

	targets := rt.config.Targets[cond.LogicTable]
	payload, err := shard.EncodeRequest(shard.Request{Condition: cond})
	if err != nil {
		return "", err
	}

	var inst *instance
	select {
	case inst = <-rt.pool:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() {
		rt.pool <- inst
	}()

	results, err := inst.doWork.Call(context.WithValue(ctx, requestKey{}, payload))
	if err != nil {
		rt.logger.Warn("guest call failed, replacing instance", "instance", inst.name, "error", err)
		inst = rt.replace(ctx, inst)
		return "", fmt.Errorf("guest call failed: %w", err)
	}
	out := shard.Unpack(results[0])
	if err := out.Err(); err != nil {
		return "", fmt.Errorf("could not resolve %s: %w", cond, err)
	}
	raw, ok := inst.mod.Memory().Read(out.Address, uint32(out.Length))
	if !ok {
		return "", fmt.Errorf("guest result [%d, +%d) is outside memory", out.Address, out.Length)
	}
	name = string(raw) // copy out before the instance is reused.
	if len(rt.config.Targets) > 0 && !slices.Contains(targets, name) {
		return "", fmt.Errorf("%w: %s for logic table %s", ErrUnknownTarget, name, cond.LogicTable)
	}
	return name, nil
}

// replace swaps a trapped instance for a fresh one. If a new instance cannot
// be created the old one is kept so the pool never shrinks.
func (rt *Runtime) replace(ctx context.Context, old *instance) *instance {
	fresh, err := rt.instantiate(ctx)
	if err != nil {
		rt.logger.Error("could not replace guest instance", "instance", old.name, "error", err)
		return old
	}
	if err := old.mod.Close(ctx); err != nil {
		rt.logger.Warn("could not close guest instance", "instance", old.name, "error", err)
	}
	return fresh
}

// ResolveBatch resolves conds concurrently across the instance pool.
// The result order matches conds. The first error cancels the rest.
func (rt *Runtime) ResolveBatch(ctx context.Context, conds []shard.Condition) ([]string, error) {
	names := make([]string, len(conds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.config.Instances)
	for i, cond := range conds {
		g.Go(func() error {
			name, err := rt.Resolve(gctx, cond)
			if err != nil {
				return err
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func (rt *Runtime) report(ctx context.Context, elapsed time.Duration, err error) {
	name := metrics.RouteResolvedCountMetricName
	if err != nil {
		name = metrics.RouteErrorCountMetricName
	}
	m := &metrics.Metrics{Values: []metrics.MetricValue{
		{Name: name, Type: metrics.COUNTER, Value: 1},
		{Name: metrics.RouteResolveTimeMetricName, Type: metrics.GAUGE, Value: float64(elapsed.Milliseconds())},
	}}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metrics.SinkTimeout)
	defer cancel()
	if err := rt.config.MetricsSink.Send(ctx, m); err != nil {
		rt.logger.Error("error sending metrics", "error", err)
	}
}

// ShardCount is the shard count every instance was configured with.
func (rt *Runtime) ShardCount() int {
	return rt.config.ShardCount
}

// Close releases every guest instance and the runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.runtime.Close(ctx)
}
