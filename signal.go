package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var drainSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// drainOnSignal returns a context that SIGINT or SIGTERM cancels. Running
// jobs see the cancellation at their next file boundary and still post a
// summary. Until parent ends, a second signal exits at once and abandons
// whatever upload is in flight.
func drainOnSignal(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stopNotify := signal.NotifyContext(parent, drainSignals...)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stopNotify()
			return
		}

		// Take over the signals before releasing the first registration,
		// so a quick second Ctrl-C never reaches the default handler.
		again := make(chan os.Signal, 1)
		signal.Notify(again, drainSignals...)
		defer signal.Stop(again)

		stopNotify()

		logger.Info("draining jobs; send the signal again to exit immediately")

		select {
		case sig := <-again:
			logger.Warn("exiting without waiting for jobs",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
