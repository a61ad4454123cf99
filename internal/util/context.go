package util

import (
	"context"
	"time"
)

// NewTimeoutContext creates a new context with the specified timeout.
// This eliminates the repeated pattern of context.WithTimeout(context.Background(), timeout).
//
// Example:
//
//	ctx, cancel := util.NewTimeoutContext(2 * time.Second)
//	defer cancel()
func NewTimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
