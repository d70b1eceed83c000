package conversation

import (
	"context"
	"time"
)

// Sweep expires idle conversations and purges finished ones older than
// retention. A zero retention keeps finished conversations.
func (e *Engine) Sweep(ctx context.Context, retention time.Duration) error {
	if _, err := e.ExpireIdle(ctx); err != nil {
		return err
	}
	if retention <= 0 {
		return nil
	}
	n, err := e.PurgeFinished(ctx, retention)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Info("purged finished conversations", "count", n)
	}
	return nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sweep(ctx, retention); err != nil && ctx.Err() == nil {
				e.log.Error("conversation sweep", "error", err)
			}
		}
	}
}
