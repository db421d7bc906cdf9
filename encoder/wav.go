package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Samples decodes little-endian PCM16.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func WriteWAV(w io.WriteSeeker, pcm []byte) error {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		SourceBitDepth: BitsPerSample,
	}
	buf.Data = make([]int, len(pcm)/2)
	for i, s := range Samples(pcm) {
		buf.Data[i] = int(s)
	}
	enc := wav.NewEncoder(w, SampleRate, BitsPerSample, Channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}

// Recorder keeps a copy of captured PCM for -record.
type Recorder struct {
	mu  sync.Mutex
	pcm []byte
}

func (r *Recorder) Write(pcm []byte) (int, error) {
	r.mu.Lock()
	r.pcm = append(r.pcm, pcm...)
	r.mu.Unlock()
	return len(pcm), nil
}

func (r *Recorder) TotalFrames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.pcm) / 2)
}

// Save writes FLAC for a .flac path and WAV otherwise.
func (r *Recorder) Save(path string) error {
	r.mu.Lock()
	pcm := r.pcm
	r.mu.Unlock()

	if strings.EqualFold(filepath.Ext(path), ".flac") {
		data, err := EncodeFlac(pcm)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, pcm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
