package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"pairlab/internal/logging"
)

const httpShutdownTimeout = 10 * time.Second

// ServerRunner serves HTTP on a listener until stop is done or the server
// fails, then shuts it down within ShutdownTimeout.
type ServerRunner struct {
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

func (runner *ServerRunner) Run(stop context.Context, server *http.Server, listener net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	runner.Logger.Info("pairlab listening", map[string]string{
		"addr": listener.Addr().String(),
	})

	var failure error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			failure = err
			runner.Logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	case <-stop.Done():
	}

	timeout := runner.ShutdownTimeout
	if timeout <= 0 {
		timeout = httpShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runner.Logger.Warn("http server shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}

	if failure == nil {
		select {
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				failure = err
			}
		case <-shutdownCtx.Done():
		}
	}
	return failure
}
