package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scriba/encoder"
)

func TestIsBluetooth(t *testing.T) {
	tests := map[string]bool{
		"AirPods Pro":                 true,
		"Jabra Evolve 65":             true,
		"Built-in Microphone":         false,
		"Headset (WH-1000XM4)":        true,
		"alsa_input.usb-Blue_Yeti-00": false,
	}
	for name, want := range tests {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v", got)
	}
	pcm := make([]byte, 200)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(16384)))
	}
	if got := Level(pcm); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Level = %v, want 0.5", got)
	}
}

func TestReadKey(t *testing.T) {
	tests := []struct {
		in   []byte
		want pickerKey
	}{
		{[]byte{13}, keyEnter},
		{[]byte{3}, keyAbort},
		{[]byte("j"), keyDown},
		{[]byte{0x1b, '[', 'A'}, keyUp},
		{[]byte("x"), keyOther},
	}
	for _, tt := range tests {
		if got := readKey(tt.in); got != tt.want {
			t.Errorf("readKey(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type devicesOnly []DeviceInfo

func (d devicesOnly) Devices() ([]DeviceInfo, error) { return d, nil }
func (d devicesOnly) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, nil
}
func (d devicesOnly) Close() {}

func TestFindDevice(t *testing.T) {
	ctx := devicesOnly{{ID: "1", Name: "USB Mic"}, {ID: "2", Name: "Webcam"}}
	dev, err := FindDevice(ctx, "Webcam")
	if err != nil || dev.ID != "2" {
		t.Fatalf("got %+v, %v", dev, err)
	}
	if dev, err := FindDevice(ctx, ""); dev != nil || err != nil {
		t.Errorf("empty name: got %+v, %v", dev, err)
	}
	if _, err := FindDevice(ctx, "missing"); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestLoadPCMRoundTrip(t *testing.T) {
	pcm := make([]byte, encoder.SampleRate) // 0.5s
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(i%2000-1000)))
	}
	dir := t.TempDir()
	for _, name := range []string{"in.wav", "in.flac"} {
		var rec encoder.Recorder
		rec.Write(pcm)
		path := filepath.Join(dir, name)
		if err := rec.Save(path); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		got, err := LoadPCM(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if string(got) != string(pcm) {
			t.Errorf("%s: round trip changed %d bytes of audio", name, len(pcm))
		}
	}
}

func TestLoadPCMRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	os.WriteFile(path, []byte("x"), 0o644)
	if _, err := LoadPCM(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestFakeCapture(t *testing.T) {
	pcm := make([]byte, 5000)
	c := NewFakeCapture(pcm, false)

	var mu sync.Mutex
	var got int
	c.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		got += len(data)
		mu.Unlock()
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.AudioDone():
	case <-time.After(time.Second):
		t.Fatal("audio not delivered")
	}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if got < len(pcm) {
		t.Errorf("delivered %d bytes, want at least %d", got, len(pcm))
	}
}
