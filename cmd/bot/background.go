package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/set-night/taskflow/internal/conversation"
	"github.com/set-night/taskflow/internal/escalation"
)

// runBackground starts the escalation engine and the dialog sweeper. The
// returned wait blocks until both have stopped after ctx is done, so the
// store must stay open until it returns.
func runBackground(ctx context.Context, engine *escalation.Engine, dialogs *conversation.Tracker, scanInterval, sweepInterval time.Duration) (wait func()) {
	var g errgroup.Group

	g.Go(func() error {
		engine.Run(ctx, scanInterval)
		return nil
	})

	// Forget abandoned add-task dialogs
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := dialogs.Sweep(); n > 0 {
					slog.Debug("expired dialogs removed", "count", n)
				}
			}
		}
	})

	return func() { _ = g.Wait() }
}
