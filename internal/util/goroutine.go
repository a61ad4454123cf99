package util

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lanrelay/relay/internal/metrics"
)

// SafeGo launches a goroutine with panic recovery.
// If the goroutine panics, the panic is recovered, logged, and the error metric
// is incremented. This prevents a single goroutine panic from crashing the
// entire process.
func SafeGo(logger *zap.SugaredLogger, component string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Panic recovered in goroutine",
					"component", component,
					"panic", fmt.Sprintf("%v", r))
				metrics.DispatchErrors.Inc()
			}
		}()
		fn()
	}()
}
