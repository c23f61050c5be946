package audio

import (
	"errors"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/transforms"
)

// ErrInvalidBlockSize indicates the block size must be positive
var ErrInvalidBlockSize = errors.New("block size must be positive")

// ToMono averages interleaved frames down to one channel. Mono input is
// returned unchanged.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}
	buf := &goaudio.FloatBuffer{
		Format: &goaudio.Format{NumChannels: channels},
		Data:   make([]float64, len(samples)-len(samples)%channels),
	}
	for i := range buf.Data {
		buf.Data[i] = float64(samples[i])
	}
	if err := transforms.MonoDownmix(buf); err != nil {
		return nil
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v)
	}
	return out
}

// Chunker regroups samples of any length into fixed-size blocks.
type Chunker struct {
	size    int
	pending []float32
	emit    func([]float32) error
}

// NewChunker returns a Chunker that passes blocks of size samples to emit.
// Emitted blocks are reused; emit must not keep them.
func NewChunker(size int, emit func([]float32) error) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidBlockSize
	}
	return &Chunker{
		size:    size,
		pending: make([]float32, 0, size),
		emit:    emit,
	}, nil
}

// Write buffers samples and emits every completed block.
func (c *Chunker) Write(samples []float32) error {
	for len(samples) > 0 {
		n := min(c.size-len(c.pending), len(samples))
		c.pending = append(c.pending, samples[:n]...)
		samples = samples[n:]
		if len(c.pending) == c.size {
			if err := c.emit(c.pending); err != nil {
				return err
			}
			c.pending = c.pending[:0]
		}
	}
	return nil
}

// Flush emits the partial block, if any.
func (c *Chunker) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	err := c.emit(c.pending)
	c.pending = c.pending[:0]
	return err
}

// Buffered returns the number of samples waiting for a full block.
func (c *Chunker) Buffered() int {
	return len(c.pending)
}
