// Package shard decides which physical table a row belongs to.
//
// A request buffer written by the host carries the logical table and the
// sharding column value. The Resolver picks shard value mod ShardCount,
// renders the physical table name and appends it to the same buffer, so
// the host can read it back without another round trip.
package shard

import "fmt"

// Resolver is safe for concurrent use; it holds no per-call state.
type Resolver struct {
	config Config
}

// Result is a resolved table name and where it was written in the buffer.
type Result struct {
	Offset int
	Name   string
}

func NewResolver(config Config) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{config: config}, nil
}

// MustNewResolver is like NewResolver but panics on an invalid config.
// It is used for the compiled-in defaults and by tests.
func MustNewResolver(config Config) *Resolver {
	r, err := NewResolver(config)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Resolver) Config() Config {
	return r.config
}

// ShardIndex returns v mod ShardCount, which is always in [0, ShardCount).
func (r *Resolver) ShardIndex(v uint8) uint8 {
	return v % r.config.ShardCount
}

// TableName renders the physical table name for a shard of logicTable.
func (r *Resolver) TableName(logicTable string, shard uint8) string {
	return r.config.render(logicTable, shard)
}

// Resolve returns the physical table for a decoded condition.
func (r *Resolver) Resolve(c Condition) string {
	return r.TableName(c.LogicTable, r.ShardIndex(c.ColumnValue))
}

// Do decodes the request held in b, resolves it and appends the physical
// table name right after the request payload.
func (r *Resolver) Do(b *Buffer) (Result, error) {
	if b.Cap() > r.config.BufferCapacity {
		return Result{}, fmt.Errorf("%w: buffer capacity %d exceeds configured %d", ErrInvalidConfig, b.Cap(), r.config.BufferCapacity)
	}
	req, err := DecodeRequest(b)
	if err != nil {
		return Result{}, err
	}
	name := r.Resolve(req.Condition)
	off, err := b.Append([]byte(name))
	if err != nil {
		return Result{}, err
	}
	return Result{Offset: off, Name: name}, nil
}
