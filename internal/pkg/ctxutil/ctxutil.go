package ctxutil

import (
	"context"
	"time"
)

type detachedContext struct {
	parent context.Context
}

func (d detachedContext) Deadline() (time.Time, bool)       { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}             { return nil }
func (d detachedContext) Err() error                        { return nil }
func (d detachedContext) Value(key interface{}) interface{} { return d.parent.Value(key) }

// Detached returns a context that keeps the parent's values but drops its
// cancellation and deadline. Used for writes that must complete-or-abort
// cleanly after the client has disconnected.
func Detached(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return detachedContext{parent: ctx}
}
