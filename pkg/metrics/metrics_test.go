package metrics

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterSink(t *testing.T) {
	sink := NewCounterSink()
	ctx := t.Context()
	for range 3 {
		require.NoError(t, sink.Send(ctx, &Metrics{Values: []MetricValue{
			{Name: RouteResolvedCountMetricName, Type: COUNTER, Value: 1},
			{Name: RouteResolveTimeMetricName, Type: GAUGE, Value: 7},
		}}))
	}
	assert.InDelta(t, 3, sink.Value(RouteResolvedCountMetricName), 0)
	assert.InDelta(t, 7, sink.Value(RouteResolveTimeMetricName), 0)
	assert.Zero(t, sink.Value(RouteErrorCountMetricName))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)
	var _ Sink = sink
	assert.IsType(t, &LogSink{}, sink)
	err := sink.Send(context.Background(), &Metrics{Values: []MetricValue{
		{Name: RouteErrorCountMetricName, Type: COUNTER, Value: 1},
		{Name: "bogus", Type: UNKNOWN, Value: 1},
	}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "name="+RouteErrorCountMetricName)
	assert.Contains(t, buf.String(), "received invalid metric type")
}

func TestNoopSink(t *testing.T) {
	assert.NoError(t, (&NoopSink{}).Send(context.Background(), &Metrics{}))
}
