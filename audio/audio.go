// Package audio captures PCM16 mono from the microphone.
package audio

import (
	"encoding/binary"
	"math"
	"strings"
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name. Bluetooth headsets often
// capture at 8kHz which hurts recognition.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Level is the RMS of PCM16 samples in [0, 1].
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(n))
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies samples before delivery, clipping at the PCM16
	// range. Values below 2 leave samples untouched.
	Gain int
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
	// Lost is closed when the device stops delivering on its own, such as
	// when it is unplugged or the sound server drops the stream.
	Lost() <-chan struct{}
}

// amplify applies gain with clipping and encodes little-endian PCM16.
func amplify(buf []int16, gain int) []byte {
	data := make([]byte, len(buf)*2)
	for i, s := range buf {
		v := int32(s)
		if gain > 1 {
			v = min(max(v*int32(gain), math.MinInt16), math.MaxInt16)
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	}
	return data
}

// amplifyPCM is amplify over little-endian PCM16 bytes, in place.
func amplifyPCM(pcm []byte, gain int) {
	if gain <= 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int32(int16(binary.LittleEndian.Uint16(pcm[i:]))) * int32(gain)
		v = min(max(v, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(v)))
	}
}
