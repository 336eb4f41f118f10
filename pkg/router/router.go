// Package router rewrites writes against a logical table into writes
// against the physical table picked by the sharding guest.
package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/block/shardwasm/pkg/dbconn"
	"github.com/block/shardwasm/pkg/metrics"
	"github.com/block/shardwasm/pkg/shard"
	"github.com/block/shardwasm/pkg/statement"
)

// Resolver picks the physical table for a condition. *host.Runtime
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, cond shard.Condition) (string, error)
}

type Router struct {
	resolver    Resolver
	column      string
	logger      *slog.Logger
	metricsSink metrics.Sink
}

// Route is one routed statement.
type Route struct {
	Insert *statement.Insert
	Target string // physical table
	SQL    string // statement rewritten against Target
}

func New(resolver Resolver, column string, logger *slog.Logger) (*Router, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if column == "" {
		return nil, errors.New("sharding column is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver:    resolver,
		column:      column,
		logger:      logger,
		metricsSink: &metrics.NoopSink{},
	}, nil
}

func (r *Router) SetMetricsSink(sink metrics.Sink) {
	r.metricsSink = sink
}

// Route parses stmt, resolves the physical table and rewrites stmt.
func (r *Router) Route(ctx context.Context, stmt string) (*Route, error) {
	ins, err := statement.ParseInsert(stmt, r.column)
	if err != nil {
		return nil, fmt.Errorf("could not parse statement: %w", err)
	}
	target, err := r.resolver.Resolve(ctx, ins.Condition())
	if err != nil {
		return nil, err
	}
	rewritten, err := ins.Rewrite(target)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("routed statement",
		"logic-table", ins.Table,
		"column", ins.Column,
		"value", ins.Value,
		"target", target,
	)
	return &Route{Insert: ins, Target: target, SQL: rewritten}, nil
}

// Exec routes stmt and executes the rewritten statement on db.
func (r *Router) Exec(ctx context.Context, db *sql.DB, dbConfig *dbconn.DBConfig, stmt string) (*Route, int64, error) {
	route, err := r.Route(ctx, stmt)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	affected, err := dbconn.RetryableExec(ctx, db, dbConfig, route.SQL)
	if err != nil {
		return route, 0, fmt.Errorf("could not execute on %s: %w", route.Target, err)
	}
	r.sendMetrics(ctx, time.Since(start))
	return route, affected, nil
}

func (r *Router) sendMetrics(ctx context.Context, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, metrics.SinkTimeout)
	defer cancel()
	m := &metrics.Metrics{Values: []metrics.MetricValue{
		{Name: metrics.RouteExecTimeMetricName, Type: metrics.GAUGE, Value: float64(elapsed.Milliseconds())},
	}}
	if err := r.metricsSink.Send(ctx, m); err != nil {
		r.logger.Error("error sending metrics", "error", err)
	}
}
