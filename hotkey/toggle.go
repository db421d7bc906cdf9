package hotkey

import "context"

// Toggle turns keydowns into an on/off state. Each keydown flips the state
// and the new value is sent on the returned channel. Keyups are drained so
// backends with small buffers never block. The channel is closed when ctx
// is done.
func Toggle(ctx context.Context, hk Hotkey, initial bool) <-chan bool {
	out := make(chan bool)
	go func() {
		defer close(out)
		on := initial
		for {
			select {
			case <-ctx.Done():
				return
			case <-hk.Keyup():
			case <-hk.Keydown():
				on = !on
				select {
				case out <- on:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
