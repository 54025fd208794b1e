package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"pairlab/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs registered phases once, in registration order.
// A failing phase is logged and does not stop the ones after it.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
	err    error
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.phases = append(coordinator.phases, shutdownPhase{name: name, stop: stop})
}

func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	coordinator.once.Do(func() {
		for _, phase := range coordinator.phases {
			coordinator.logger.Debug("shutdown phase starting", map[string]string{
				"phase": phase.name,
			})
			if err := phase.stop(ctx); err != nil {
				coordinator.err = errors.Join(coordinator.err, err)
				coordinator.logger.Warn("shutdown phase failed", map[string]string{
					"phase": phase.name,
					"error": err.Error(),
				})
			}
		}
	})
	return coordinator.err
}

// watchShutdownSignals cancels on the first signal and logs, once, that
// later signals are ignored. The returned func stops the watcher.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	done := make(chan struct{})
	var started atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if started.CompareAndSwap(false, true) {
					logger.Info("shutdown signal received", fields)
					if cancel != nil {
						cancel()
					}
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) {
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() { close(done) })
	}
}
