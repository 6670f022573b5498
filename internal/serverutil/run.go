// Package serverutil runs a server until its context is cancelled, then
// shuts it down gracefully within a bounded window.
package serverutil

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds graceful shutdown once the context is
// cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Runner is anything with a blocking Start and a context-bounded Shutdown.
type Runner interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Run starts the runner and blocks until it stops on its own or the context
// is cancelled. Start returning http.ErrServerClosed counts as a clean exit.
func Run(ctx context.Context, runner Runner, shutdownTimeout time.Duration) error {
	if runner == nil {
		return errors.New("runner is required")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- runner.Start()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := runner.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}

	return shutdownErr
}
