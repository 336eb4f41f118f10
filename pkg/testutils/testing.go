// Package testutils contains some common utilities used exclusively
// by the test suite.
package testutils

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

// GuestEnv points at a prebuilt guest module. When unset the guest is
// compiled from ./cmd/shardwasm on first use.
const GuestEnv = "SHARDWASM_GUEST"

func DSN() string {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "shardwasm:shardwasm@tcp(127.0.0.1:3306)/test"
	}
	return dsn
}

// DB opens DSN() and skips the test if MySQL cannot be reached.
func DB(t *testing.T) *sql.DB {
	t.Helper()
	cfg, err := mysql.ParseDSN(DSN())
	require.NoError(t, err)
	cfg.Timeout = 2 * time.Second
	db, err := sql.Open("mysql", cfg.FormatDSN())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("mysql not available at %s: %v", cfg.Addr, err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func RunSQL(t *testing.T, db *sql.DB, stmt string) {
	t.Helper()
	_, err := db.ExecContext(t.Context(), stmt)
	require.NoError(t, err)
}

var (
	guestOnce sync.Once
	guestWasm []byte
	guestErr  error
)

// BuildGuest returns the compiled guest module, building it once per test
// binary. The test is skipped if the module cannot be produced, for example
// when no Go toolchain is on PATH.
func BuildGuest(t *testing.T) []byte {
	t.Helper()
	guestOnce.Do(func() {
		guestWasm, guestErr = buildGuest()
	})
	if guestErr != nil {
		t.Skipf("sharding guest not available: %v", guestErr)
	}
	return guestWasm
}

func buildGuest() ([]byte, error) {
	if path := os.Getenv(GuestEnv); path != "" {
		return os.ReadFile(path)
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		return nil, err
	}
	root, err := moduleRoot()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "shardwasm")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	out := filepath.Join(dir, "shardwasm.wasm")
	cmd := exec.Command(gobin, "build", "-buildmode=c-shared", "-o", out, "./cmd/shardwasm")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Join(err, errors.New(string(output)))
	}
	return os.ReadFile(out)
}

// moduleRoot walks up from the working directory to the directory holding go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find go.mod")
		}
		dir = parent
	}
}
