package main

import (
	"github.com/alecthomas/kong"
	"github.com/block/shardwasm/pkg/buildinfo"
)

// Injected with -ldflags by release builds.
var (
	version string
	commit  string
	date    string
)

var cli struct {
	Resolve ResolveCmd `cmd:"" help:"Resolve the physical table for a logical table and column value."`
	Route   RouteCmd   `cmd:"" help:"Rewrite an INSERT against its physical table and print it."`
	Exec    ExecCmd    `cmd:"" help:"Rewrite an INSERT and execute it on MySQL."`
	Version VersionCmd `cmd:"" help:"Print build information."`
}

func main() {
	buildinfo.Set(version, commit, date)
	ctx := kong.Parse(&cli,
		kong.Name("shardroute"),
		kong.Description("shardroute: route MySQL writes through a WebAssembly sharding module"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
