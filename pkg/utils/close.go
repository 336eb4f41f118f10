// Package utils contains small helpers shared by the commands and the host.
package utils

import (
	"context"
	"log/slog"
)

// Closer is satisfied by *sql.DB and any io.Closer.
type Closer interface {
	Close() error
}

// ContextCloser is satisfied by resources that need a context to release,
// such as a guest runtime.
type ContextCloser interface {
	Close(context.Context) error
}

// CloseAndLog closes a resource and logs any error. It is meant for defer
// statements where the error cannot be handled except by logging.
//
//	defer utils.CloseAndLog(db)
func CloseAndLog(closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Error("deferred close failed", "error", err)
	}
}

// CloseAndLogWithContext is CloseAndLog for a ContextCloser.
//
//	defer utils.CloseAndLogWithContext(ctx, runtime)
func CloseAndLogWithContext(ctx context.Context, closer ContextCloser) {
	if closer == nil {
		return
	}
	if err := closer.Close(ctx); err != nil {
		slog.ErrorContext(ctx, "deferred close failed", "error", err)
	}
}
