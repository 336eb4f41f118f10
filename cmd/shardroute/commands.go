package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/block/shardwasm/pkg/buildinfo"
	"github.com/block/shardwasm/pkg/config"
	"github.com/block/shardwasm/pkg/dbconn"
	"github.com/block/shardwasm/pkg/host"
	"github.com/block/shardwasm/pkg/metrics"
	"github.com/block/shardwasm/pkg/router"
	"github.com/block/shardwasm/pkg/shard"
	"github.com/block/shardwasm/pkg/utils"
)

// session is what every routing command needs: the loaded configuration,
// a logger and a running guest.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	runtime *host.Runtime
}

type configArg struct {
	ConfigFile string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
}

func (c *configArg) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadConfig(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	logger.Debug("loading sharding module", "path", cfg.Guest.Path)
	wasm, err := os.ReadFile(cfg.Guest.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sharding module: %w", err)
	}
	rt, err := host.New(ctx, wasm, cfg.HostConfig(logger, metrics.NewLogSink(logger)))
	if err != nil {
		return nil, fmt.Errorf("failed to start sharding module: %w", err)
	}
	return &session{config: cfg, logger: logger, runtime: rt}, nil
}

func (s *session) router() (*router.Router, error) {
	r, err := router.New(s.runtime, s.config.Sharding.Column, s.logger)
	if err != nil {
		return nil, err
	}
	r.SetMetricsSink(metrics.NewLogSink(s.logger))
	return r, nil
}

func (s *session) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type ResolveCmd struct {
	configArg
	Table  string `help:"Logical table name." required:""`
	Value  uint8  `help:"Sharding column value (0-255)." required:""`
	Column string `help:"Sharding column name. Defaults to sharding.column from the config."`
}

func (c *ResolveCmd) Run() error {
	ctx, cancel := signalContext()
	defer cancel()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer utils.CloseAndLogWithContext(ctx, s)

	column := c.Column
	if column == "" {
		column = s.config.Sharding.Column
	}
	name, err := s.runtime.Resolve(ctx, shard.Condition{
		Column:      column,
		LogicTable:  c.Table,
		ColumnValue: c.Value,
	})
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

type RouteCmd struct {
	configArg
	Statement string `arg:"" name:"statement" help:"INSERT statement against a logical table."`
}

func (c *RouteCmd) Run() error {
	ctx, cancel := signalContext()
	defer cancel()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer utils.CloseAndLogWithContext(ctx, s)

	r, err := s.router()
	if err != nil {
		return err
	}
	route, err := r.Route(ctx, c.Statement)
	if err != nil {
		return err
	}
	fmt.Println(route.SQL)
	return nil
}

type ExecCmd struct {
	configArg
	Statement string `arg:"" name:"statement" help:"INSERT statement against a logical table."`
}

func (c *ExecCmd) Run() error {
	ctx, cancel := signalContext()
	defer cancel()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer utils.CloseAndLogWithContext(ctx, s)

	dbConfig := dbconn.NewDBConfig()
	dbConfig.MaxRetries = s.config.Database.MaxRetries
	db, err := openDB(s.config.Database, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to mysql: %w", err)
	}
	defer utils.CloseAndLog(db)

	r, err := s.router()
	if err != nil {
		return err
	}
	route, affected, err := r.Exec(ctx, db, dbConfig, c.Statement)
	if err != nil {
		return err
	}
	s.logger.Info("statement executed", "target", route.Target, "rows-affected", affected)
	return nil
}

// openDB prefers the configured DSN and falls back to the [client] section
// of the configured option file.
func openDB(cfg config.DatabaseConfig, dbConfig *dbconn.DBConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		params, err := dbconn.LoadConfParams(cfg.ConfFile)
		if err != nil {
			return nil, err
		}
		dsn = params.DSN()
		dbConfig.TLSMode = params.GetTLSMode()
	}
	return dbconn.New(dsn, dbConfig)
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(buildinfo.Get().String())
	return nil
}
