package dbconn

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/block/shardwasm/pkg/utils"
	"github.com/go-sql-driver/mysql"
)

const maxConnLifetime = time.Minute * 3

// newDSN appends the session and TLS options every routed write runs
// with. Options are appended in sorted order after any the caller set.
func newDSN(dsn string, config *DBConfig) (string, error) {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", err
	}
	opts := url.Values{}
	switch config.TLSMode {
	case "DISABLED":
	case "REQUIRED":
		opts.Set("tls", "skip-verify")
	default:
		opts.Set("tls", "preferred")
	}
	opts.Set("innodb_lock_wait_timeout", strconv.Itoa(config.InnodbLockWaitTimeout))
	opts.Set("lock_wait_timeout", strconv.Itoa(config.LockWaitTimeout))
	// Recycle connections that land on a primary demoted to read only.
	opts.Set("rejectReadOnly", "true")
	opts.Set("interpolateParams", strconv.FormatBool(config.InterpolateParams))

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + opts.Encode(), nil
}

// New opens a pool on the standardised DSN and pings it.
func New(inputDSN string, config *DBConfig) (*sql.DB, error) {
	dsn, err := newDSN(inputDSN, config)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		utils.CloseAndLog(db)
		return nil, fmt.Errorf("could not connect: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	db.SetConnMaxLifetime(maxConnLifetime)
	return db, nil
}
