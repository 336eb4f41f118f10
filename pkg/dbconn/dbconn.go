// Package dbconn contains the MySQL connection helpers used to execute
// routed statements.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errCannotConnect   = 2003
	errConnLost        = 2013
	errReadOnly        = 1290
	errQueryKilled     = 1836
)

type DBConfig struct {
	LockWaitTimeout       int
	InnodbLockWaitTimeout int
	MaxRetries            int
	MaxOpenConnections    int
	InterpolateParams     bool
	// TLS Configuration
	TLSMode string // TLS connection mode (DISABLED, PREFERRED, REQUIRED)
}

func NewDBConfig() *DBConfig {
	return &DBConfig{
		LockWaitTimeout:       30,
		InnodbLockWaitTimeout: 3,
		MaxRetries:            3,
		MaxOpenConnections:    8,
		InterpolateParams:     false,
		TLSMode:               "PREFERRED",
	}
}

// canRetryError looks at the MySQL error and decides if it is considered
// a permanent failure or not.
func canRetryError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case errLockWaitTimeout, errDeadlock, errCannotConnect,
		errConnLost, errReadOnly, errQueryKilled:
		return true
	default:
		return false
	}
}

// RetryableExec runs stmt in its own transaction, retrying up to
// config.MaxRetries times on errors that are safe to retry.
// It returns the number of affected rows.
func RetryableExec(ctx context.Context, db *sql.DB, config *DBConfig, stmt string, args ...any) (int64, error) {
	var (
		err          error
		rowsAffected int64
	)
	for i := range config.MaxRetries {
		rowsAffected, err = execInTrx(ctx, db, stmt, args...)
		if err == nil {
			return rowsAffected, nil
		}
		if !canRetryError(err) {
			return 0, err
		}
		if i < config.MaxRetries-1 {
			backoff(i)
		}
	}
	// We've exhausted retries and the error is non-nil
	// return the last error
	return 0, err
}

func execInTrx(ctx context.Context, db *sql.DB, stmt string, args ...any) (int64, error) {
	trx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	res, err := trx.ExecContext(ctx, stmt, args...)
	if err != nil {
		_ = trx.Rollback()
		return 0, err
	}
	if err := trx.Commit(); err != nil {
		return 0, err
	}
	// Some statements don't support affected rows, and that's fine.
	count, errC := res.RowsAffected()
	if errC != nil {
		return 0, nil
	}
	return count, nil
}

// backoff sleeps a few milliseconds before retrying.
func backoff(i int) {
	randFactor := i * rand.Intn(10) * int(time.Millisecond)
	time.Sleep(time.Duration(randFactor))
}
