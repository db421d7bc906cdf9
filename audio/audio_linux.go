//go:build linux

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

// streamCheck is how often a running record stream is checked for being
// killed by the server, which is how pulse reports an unplugged source.
const streamCheck = 250 * time.Millisecond

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("scriba"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

// NewCapture resolves the source up front so a device that is already
// gone fails here instead of silently recording from the default.
func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	c := &pulseCapture{client: p.client, config: config, lost: make(chan struct{})}
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		c.source = source
		c.name = device.Name
	}
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	source   *pulse.Source
	name     string
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu       sync.Mutex
	stream   *pulse.RecordStream
	stop     chan struct{}
	done     chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gain := c.config.Gain
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if cb := c.callback.Load(); cb != nil && len(buf) > 0 {
			(*cb)(amplify(buf, gain), uint32(len(buf)))
		}
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordMediaName("scriba dictation"),
	}
	if c.source != nil {
		opts = append(opts, pulse.RecordSource(c.source))
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}
	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(stream, c.stop, c.done)
	return nil
}

// run owns the stream until Stop. A stream the server closes underneath
// us means the source is gone.
func (c *pulseCapture) run(stream *pulse.RecordStream, stop, done chan struct{}) {
	defer close(done)
	stream.Start()
	ticker := time.NewTicker(streamCheck)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			stream.Stop()
			stream.Close()
			return
		case <-ticker.C:
			if stream.Closed() {
				c.lostOnce.Do(func() { close(c.lost) })
				<-stop
				return
			}
		}
	}
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }

func (c *pulseCapture) ClearCallback() { c.callback.Store(nil) }

func (c *pulseCapture) Lost() <-chan struct{} { return c.lost }

func (c *pulseCapture) DeviceName() string {
	if c.name != "" {
		return c.name
	}
	return "system default"
}
