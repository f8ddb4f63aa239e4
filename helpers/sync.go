package helpers

// Random synchronisation util stash

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

var ErrStopped = errors.New("stopped")

// AliveSleep waits for duration d, interrupted by ctx or alive stop.
// Returns nil only after full duration passed.
func AliveSleep(ctx context.Context, a *alive.Alive, d time.Duration) error {
	if a != nil && !a.IsRunning() {
		return ErrStopped
	}
	if d <= 0 {
		return nil
	}
	var stopch <-chan struct{}
	if a != nil {
		stopch = a.StopChan()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stopch:
		return ErrStopped
	}
}
