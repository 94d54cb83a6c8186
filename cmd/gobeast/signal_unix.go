//go:build unix

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomopfuku/gobeast/analysis"
)

//pauseOnSignal toggles between pausing and continuing s on SIGUSR1.
func pauseOnSignal(ctx context.Context, s *analysis.Sampler, logger *slog.Logger) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		paused := false
		for {
			select {
			case <-sig:
				if paused {
					s.Continue()
					logger.Info("sampling continued")
				} else {
					s.Pause()
					logger.Info("sampling paused")
				}
				paused = !paused
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}
