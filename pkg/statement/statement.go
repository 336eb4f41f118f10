// Package statement is a wrapper around the parser that pulls the sharding
// condition out of a write and points it at a physical table.
package statement

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/block/shardwasm/pkg/shard"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

var (
	ErrNotInsert          = errors.New("not an INSERT or REPLACE statement")
	ErrMultipleStatements = errors.New("statement must be executed alone")
	ErrInsertSelect       = errors.New("INSERT ... SELECT cannot be routed")
	ErrMultipleRows       = errors.New("only single row inserts can be routed")
	ErrColumnNotFound     = errors.New("sharding column not found in statement")
	ErrUnsupportedValue   = errors.New("sharding column value must be an integer literal between 0 and 255")
)

// Insert is a single row INSERT (or REPLACE) with its sharding condition.
type Insert struct {
	Schema    string // empty unless the table name is fully qualified
	Table     string
	Column    string
	Value     uint8
	Statement string

	stmt  *ast.InsertStmt
	table *ast.TableName
}

// ParseInsert parses sql and extracts the literal value of column.
// Both the VALUES and the SET forms are accepted.
func ParseInsert(sql, column string) (*Insert, error) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, err
	}
	if len(stmtNodes) != 1 {
		return nil, ErrMultipleStatements
	}
	stmt, ok := stmtNodes[0].(*ast.InsertStmt)
	if !ok {
		return nil, ErrNotInsert
	}
	if stmt.Select != nil {
		return nil, ErrInsertSelect
	}
	table, err := insertTable(stmt)
	if err != nil {
		return nil, err
	}
	expr, err := columnExpr(stmt, column)
	if err != nil {
		return nil, err
	}
	value, err := literalUint8(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: column %s", err, column)
	}
	return &Insert{
		Schema:    table.Schema.String(),
		Table:     table.Name.String(),
		Column:    column,
		Value:     value,
		Statement: sql,
		stmt:      stmt,
		table:     table,
	}, nil
}

// MustParseInsert is like ParseInsert but panics if the statement cannot be parsed.
// It is used by tests.
func MustParseInsert(sql, column string) *Insert {
	ins, err := ParseInsert(sql, column)
	if err != nil {
		panic(err)
	}
	return ins
}

func insertTable(stmt *ast.InsertStmt) (*ast.TableName, error) {
	if stmt.Table == nil || stmt.Table.TableRefs == nil {
		return nil, ErrNotInsert
	}
	source, ok := stmt.Table.TableRefs.Left.(*ast.TableSource)
	if !ok {
		return nil, ErrNotInsert
	}
	table, ok := source.Source.(*ast.TableName)
	if !ok {
		return nil, ErrNotInsert
	}
	return table, nil
}

func columnExpr(stmt *ast.InsertStmt, column string) (ast.ExprNode, error) {
	lower := strings.ToLower(column)
	// The SET form is parsed into Columns and a single row of Lists too.
	if len(stmt.Lists) != 1 {
		return nil, ErrMultipleRows
	}
	// Without a column list the position of the sharding column is unknown.
	for i, col := range stmt.Columns {
		if col.Name.L == lower && i < len(stmt.Lists[0]) {
			return stmt.Lists[0][i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
}

func literalUint8(expr ast.ExprNode) (uint8, error) {
	value, ok := expr.(ast.ValueExpr)
	if !ok {
		return 0, ErrUnsupportedValue
	}
	switch v := value.GetValue().(type) {
	case int64:
		if v >= 0 && v <= math.MaxUint8 {
			return uint8(v), nil
		}
	case uint64:
		if v <= math.MaxUint8 {
			return uint8(v), nil
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			return uint8(n), nil
		}
	}
	return 0, ErrUnsupportedValue
}

// Condition returns the sharding condition for the guest.
func (i *Insert) Condition() shard.Condition {
	return shard.Condition{
		Column:      i.Column,
		LogicTable:  i.Table,
		ColumnValue: i.Value,
	}
}

// Rewrite returns the statement restored against the physical table.
// The schema qualifier, if any, is kept.
func (i *Insert) Rewrite(physical string) (string, error) {
	original := i.table.Name
	i.table.Name.O = physical
	i.table.Name.L = strings.ToLower(physical)
	defer func() {
		i.table.Name = original
	}()
	var sb strings.Builder
	rCtx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := i.stmt.Restore(rCtx); err != nil {
		return "", fmt.Errorf("could not restore insert statement: %w", err)
	}
	return sb.String(), nil
}
