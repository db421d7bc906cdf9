package audio

import (
	"context"
	"slices"
	"time"

	"scriba/log"
)

const WatchInterval = 3 * time.Second

type ChangeKind int

const (
	// DeviceLost: the device in use disappeared; capture falls back to
	// the system default.
	DeviceLost ChangeKind = iota
	// DeviceReturned: the preferred device is back.
	DeviceReturned
)

func (k ChangeKind) String() string {
	if k == DeviceLost {
		return "lost"
	}
	return "returned"
}

type DeviceChange struct {
	Kind ChangeKind
	// Device to capture from next; nil means the system default.
	Device *DeviceInfo
	Name   string
}

// Watch polls the device list every interval and reports when the
// preferred device goes away or comes back. An empty preferred name means
// the system default, which is never reported. The channel is closed
// when ctx is done.
func Watch(ctx context.Context, actx Context, preferred string, interval time.Duration) <-chan DeviceChange {
	out := make(chan DeviceChange)
	go func() {
		defer close(out)
		if preferred == "" {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []string
		current := preferred
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			devices, err := actx.Devices()
			if err != nil {
				continue
			}
			names := make([]string, len(devices))
			for i := range devices {
				names[i] = devices[i].Name
			}
			if slices.Equal(last, names) {
				continue
			}
			last = names

			var ch DeviceChange
			switch i := slices.Index(names, preferred); {
			case current != "" && i < 0:
				log.Info("device_disconnected: " + current)
				ch = DeviceChange{Kind: DeviceLost, Name: current}
				current = ""
			case current == "" && i >= 0:
				log.Info("device_reconnected: " + preferred)
				dev := devices[i]
				ch = DeviceChange{Kind: DeviceReturned, Device: &dev, Name: preferred}
				current = preferred
			default:
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
