package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yz174/kliq/pkg/logger"
)

// Shutdown stops background work and closes the store. Run must have
// returned first. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		a.state = "shutting_down"
		logger.Info("shutdown_requested")

		a.cancelBase()
		if a.srv != nil {
			if serr := a.srv.Shutdown(); serr != nil {
				logger.Error("http_shutdown_failed", "error", serr)
			}
		}

		logger.Info("shutdown_stopping_jobs")
		a.proc.Stop(ctx)
		a.gateway.Shutdown()

		logger.Info("shutdown_flushing_store")
		if ferr := a.store.Flush(); ferr != nil {
			logger.Error("store_flush_failed", "error", ferr)
		}
		if cerr := a.store.Close(); cerr != nil {
			logger.Error("store_close_failed", "error", cerr)
			err = cerr
		}
		a.state = "stopped"
		logger.Info("shutdown_complete")
	})
	return err
}

// State reports the lifecycle phase: initialized, running, shutting_down
// or stopped.
func (a *App) State() string { return a.state }

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigc)
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Abort logs a fatal startup error, flushes logs and exits.
func Abort(msg string, err error) {
	logger.Error("fatal", "msg", msg, "error", err)
	logger.Sync()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
