package bridge

import (
	"context"
	"errors"
	"time"
)

// Run supervises h until ctx is cancelled or a bridge goroutine panics, then
// shuts h down. Listeners are given timeout to drain; past it the remaining
// teardown still runs to completion before Run returns, so both listeners are
// closed when it does. The result joins the fault that caused the shutdown,
// if any, with shutdown errors.
func Run(ctx context.Context, h *Handle, timeout time.Duration) error {
	var cause error
	select {
	case <-ctx.Done():
		h.log.Info().Msg("shutdown requested")
	case f := <-h.Faults():
		cause = f
		h.log.Error().Str("source", f.Source).Msg("fault; shutting down")
	case <-h.Done():
		return nil
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := h.Shutdown(sctx)
	if errors.Is(err, context.DeadlineExceeded) {
		h.log.Warn().Dur("timeout", timeout).Msg("shutdown timeout exceeded; waiting for listeners to close")
		<-h.Done()
		err = errors.Join(err, h.shutdownErr)
	}
	return errors.Join(cause, err)
}
