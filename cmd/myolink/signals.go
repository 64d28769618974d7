package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// withSignals returns an errgroup whose context is cancelled on SIGINT/SIGTERM.
// The returned stop function must be called once the group is done.
func withSignals(parent context.Context) (*errgroup.Group, context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case <-sigChan:
			return context.Canceled
		case <-gctx.Done():
			return nil
		}
	})

	return g, gctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
