package encoder

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func sine(seconds float64) []byte {
	n := int(seconds * SampleRate)
	pcm := make([]byte, n*2)
	for i := range n {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestEncodeFlac(t *testing.T) {
	pcm := sine(1.3)
	data, err := EncodeFlac(pcm)
	if err != nil {
		t.Fatalf("EncodeFlac: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	t.Logf("Raw: %d bytes, FLAC: %d bytes", len(pcm), len(data))
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
}

func TestRecorderSaveWAV(t *testing.T) {
	var rec Recorder
	pcm := sine(0.5)
	rec.Write(pcm[:1000])
	rec.Write(pcm[1000:])
	if got, want := rec.TotalFrames(), uint64(len(pcm)/2); got != want {
		t.Fatalf("TotalFrames = %d, want %d", got, want)
	}

	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := rec.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Data) != len(pcm)/2 {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(pcm)/2)
	}
	if dec.SampleRate != SampleRate {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, SampleRate)
	}
}

func TestRecorderSaveFlac(t *testing.T) {
	var rec Recorder
	rec.Write(sine(0.2))
	path := filepath.Join(t.TempDir(), "rec.FLAC")
	if err := rec.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "fLaC" {
		t.Error("expected FLAC output for .FLAC extension")
	}
}
