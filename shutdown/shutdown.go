// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Notify relays termination signals to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// Context is canceled on the first termination signal. A second signal
// is left to the default handler so a stuck shutdown can still be killed.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, signals...)
	go func() {
		<-ctx.Done()
		signal.Reset(signals...)
	}()
	return ctx, cancel
}
