//go:build wasip1

// Command shardwasm is the sharding guest module. Build it as a reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o shardwasm.wasm ./cmd/shardwasm
package main

import _ "github.com/block/shardwasm/pkg/guest"

func main() {}
