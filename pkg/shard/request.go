package shard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	conditionSeparator = ","
	conditionFields    = 3
)

// Condition is the decoded condition segment of a request.
type Condition struct {
	// Column is the sharding column name sent by the host. It is carried
	// through decoding but not consulted when picking a shard.
	Column      string
	LogicTable  string
	ColumnValue uint8
}

// String returns the wire form "column,logic_table,value".
func (c Condition) String() string {
	return strings.Join([]string{c.Column, c.LogicTable, strconv.Itoa(int(c.ColumnValue))}, conditionSeparator)
}

// Request is a decoded request buffer.
type Request struct {
	// TargetNames is the raw reserved segment. It is not interpreted yet and
	// is kept so that multi-target routing can be added without a wire change.
	TargetNames []byte
	Condition   Condition
}

// ParseCondition validates and splits a condition segment. Fields past the
// third are ignored.
func ParseCondition(raw []byte) (Condition, error) {
	if !utf8.Valid(raw) {
		return Condition{}, ErrInvalidUTF8
	}
	fields := strings.Split(string(raw), conditionSeparator)
	if len(fields) < conditionFields {
		return Condition{}, fmt.Errorf("%w: got %d fields in %q, need %d", ErrMissingField, len(fields), raw, conditionFields)
	}
	if fields[1] == "" {
		return Condition{}, fmt.Errorf("%w: logic table is empty in %q", ErrMissingField, raw)
	}
	// A single leading plus sign is allowed, as in "+7".
	v, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "+"), 10, 8)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %q", ErrInvalidColumnValue, fields[2])
	}
	return Condition{
		Column:      fields[0],
		LogicTable:  fields[1],
		ColumnValue: uint8(v),
	}, nil
}

// DecodeRequest reads one request from the read cursor of b.
func DecodeRequest(b *Buffer) (Request, error) {
	var req Request
	n, err := b.ReadByte()
	if err != nil {
		return req, fmt.Errorf("target names length: %w", err)
	}
	if req.TargetNames, err = b.ReadN(int(n)); err != nil {
		return req, fmt.Errorf("target names: %w", err)
	}
	if n, err = b.ReadByte(); err != nil {
		return req, fmt.Errorf("condition length: %w", err)
	}
	raw, err := b.ReadN(int(n))
	if err != nil {
		return req, fmt.Errorf("condition: %w", err)
	}
	if req.Condition, err = ParseCondition(raw); err != nil {
		return req, err
	}
	return req, nil
}

// EncodeRequest produces the wire form of r as the host writes it into the
// guest's buffer. Each segment is limited to 255 bytes by its length prefix.
func EncodeRequest(r Request) ([]byte, error) {
	cond := r.Condition.String()
	if len(r.TargetNames) > math.MaxUint8 {
		return nil, fmt.Errorf("target names segment is %d bytes, limit is %d", len(r.TargetNames), math.MaxUint8)
	}
	if len(cond) > math.MaxUint8 {
		return nil, fmt.Errorf("condition segment is %d bytes, limit is %d", len(cond), math.MaxUint8)
	}
	out := make([]byte, 0, 2+len(r.TargetNames)+len(cond))
	out = append(out, byte(len(r.TargetNames)))
	out = append(out, r.TargetNames...)
	out = append(out, byte(len(cond)))
	out = append(out, cond...)
	return out, nil
}
