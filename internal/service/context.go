package service

import (
	"context"
	"time"
)

const defaultWriteTimeout = 5 * time.Second

// detached returns a context that survives cancellation of ctx but still
// carries its values, bounded by timeout. Writes that must not be left
// half-applied run under it.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
