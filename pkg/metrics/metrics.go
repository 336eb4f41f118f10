// Package metrics defines where routing metrics go. A Sink receives
// batches of counters and gauges; NoopSink drops them, the log sink writes
// them at debug level and CounterSink keeps them in memory.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Metric types.
const (
	UNKNOWN byte = iota
	COUNTER
	GAUGE
)

// SinkTimeout bounds a single Send.
const SinkTimeout = 1 * time.Second

// Reported by the host for every resolve, and by the router for every
// executed statement. Times are in milliseconds.
const (
	RouteResolvedCountMetricName = "route_resolved_count"
	RouteErrorCountMetricName    = "route_error_count"
	RouteResolveTimeMetricName   = "route_resolve_time"
	RouteExecTimeMetricName      = "route_exec_time"
)

type Metrics struct {
	Values []MetricValue
}

type MetricValue struct {
	Name  string
	Value float64
	Type  byte // COUNTER or GAUGE
}

// Sink is implemented by metric destinations. Send must return once ctx
// is done.
type Sink interface {
	Send(ctx context.Context, metrics *Metrics) error
}

type NoopSink struct{}

func (s *NoopSink) Send(ctx context.Context, m *Metrics) error {
	return nil
}

// LogSink writes each metric value to a logger at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Send(ctx context.Context, m *Metrics) error {
	for _, v := range m.Values {
		var kind string
		switch v.Type {
		case COUNTER:
			kind = "counter"
		case GAUGE:
			kind = "gauge"
		default:
			l.logger.ErrorContext(ctx, "received invalid metric type", "type", v.Type, "name", v.Name, "value", v.Value)
			continue
		}
		l.logger.DebugContext(ctx, "metric", "name", v.Name, "type", kind, "value", v.Value)
	}
	return nil
}

var (
	_ Sink = &NoopSink{}
	_ Sink = &LogSink{}
	_ Sink = &CounterSink{}
)

// CounterSink sums counters and keeps the last value of each gauge.
type CounterSink struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewCounterSink() *CounterSink {
	return &CounterSink{values: make(map[string]float64)}
}

func (c *CounterSink) Send(ctx context.Context, m *Metrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range m.Values {
		switch v.Type {
		case COUNTER:
			c.values[v.Name] += v.Value
		default:
			c.values[v.Name] = v.Value
		}
	}
	return nil
}

// Value returns the current value of name, or 0 if it was never sent.
func (c *CounterSink) Value(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}
