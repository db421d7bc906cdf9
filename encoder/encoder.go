// Package encoder holds the capture format and writes recordings to disk.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// BytesPerSecond of PCM16 mono at SampleRate.
const BytesPerSecond = SampleRate * Channels * BitsPerSample / 8

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}
