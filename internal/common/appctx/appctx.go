// Package appctx provides context helpers for work that outlives the
// request that started it.
package appctx

import (
	"context"
	"time"
)

// Detached returns a context independent of the parent's cancellation,
// bounded by maxLifetime and by the stop channel. Spawned coordinator
// processes use this: the WebSocket frame that launched them completes
// long before they exit.
func Detached(parent context.Context, stop <-chan struct{}, maxLifetime time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), maxLifetime)

	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
