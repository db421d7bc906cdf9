package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"

	"scriba/encoder"
)

const fakeFrameSize = 1024

// LoadPCM reads a 16kHz WAV or FLAC file as PCM16 mono. Extra channels
// are dropped.
func LoadPCM(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return loadFlac(path)
	case ".wav":
		return loadWAV(path)
	}
	return nil, fmt.Errorf("unsupported audio file %s (want .wav or .flac)", path)
}

func loadWAV(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkFormat(int(dec.SampleRate), int(dec.BitDepth)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	chans := max(int(dec.NumChans), 1)
	samples := make([]int16, 0, len(buf.Data)/chans)
	for i := 0; i < len(buf.Data); i += chans {
		samples = append(samples, int16(buf.Data[i]))
	}
	return pcmBytes(samples), nil
}

func loadFlac(path string) ([]byte, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer stream.Close()

	if err := checkFormat(int(stream.Info.SampleRate), int(stream.Info.BitsPerSample)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var samples []int16
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, s := range frame.Subframes[0].Samples {
			samples = append(samples, int16(s))
		}
	}
	return pcmBytes(samples), nil
}

func checkFormat(sampleRate, bits int) error {
	if sampleRate != encoder.SampleRate || bits != encoder.BitsPerSample {
		return fmt.Errorf("want %dHz %d-bit audio, got %dHz %d-bit", encoder.SampleRate, encoder.BitsPerSample, sampleRate, bits)
	}
	return nil
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// FakeContext replays a fixed recording on every capture.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

func NewFakeContext(path string, realtime bool) (*FakeContext, error) {
	pcm, err := LoadPCM(path)
	if err != nil {
		return nil, err
	}
	return NewFakePCMContext(pcm, realtime), nil
}

func NewFakePCMContext(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return NewFakeCapture(f.pcm, f.realtime), nil
}

// FakeCapture feeds its recording then silence until stopped. Without
// realtime the recording is delivered at once from Start.
type FakeCapture struct {
	pcm      []byte
	realtime bool

	mu        sync.Mutex
	cb        DataCallback
	audioDone chan struct{}
	stopCh    chan struct{}
	feedDone  chan struct{}
	lost      chan struct{}
	lostOnce  sync.Once
}

func NewFakeCapture(pcm []byte, realtime bool) *FakeCapture {
	return &FakeCapture{pcm: pcm, realtime: realtime, audioDone: make(chan struct{}), lost: make(chan struct{})}
}

func (f *FakeCapture) Lost() <-chan struct{} { return f.lost }

// Unplug reports the device as lost, as a real capture does when its
// microphone disappears. Delivery stops.
func (f *FakeCapture) Unplug() {
	f.lostOnce.Do(func() { close(f.lost) })
	f.ClearCallback()
}

// AudioDone is closed once the whole recording was delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	audioDone := f.audioDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * 2
	feed := func(cb DataCallback, pos int) int {
		end := min(pos+chunkBytes, len(f.pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, f.pcm[pos:end])
		cb(chunk, uint32(len(chunk)/2))
		return end
	}

	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / encoder.SampleRate
	} else {
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = feed(cb, pos)
			}
		}
		close(audioDone)
	}

	go func() {
		defer close(f.feedDone)
		pos := len(f.pcm)
		if f.realtime {
			pos = 0
		}
		silence := make([]byte, chunkBytes)
		finished := !f.realtime
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				pos = feed(cb, pos)
				continue
			}
			if !finished {
				finished = true
				close(audioDone)
			}
			cb(silence, fakeFrameSize)
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone

	f.mu.Lock()
	select {
	case <-f.audioDone:
		f.audioDone = make(chan struct{}) // reset for replay
	default:
	}
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }
