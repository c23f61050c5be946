package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV indicates the file is not a readable PCM WAV file
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVSource reads recorded audio as normalized mono samples.
type WAVSource struct {
	file *os.File
	dec  *wav.Decoder
}

// OpenWAV opens a PCM WAV file for streaming.
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	return &WAVSource{file: f, dec: dec}, nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *WAVSource) SampleRate() int {
	return int(s.dec.SampleRate)
}

// Channels returns the number of interleaved channels in the file.
func (s *WAVSource) Channels() int {
	return int(s.dec.NumChans)
}

// BitDepth returns the PCM sample size in bits.
func (s *WAVSource) BitDepth() int {
	return int(s.dec.BitDepth)
}

// Stream decodes the file and calls fn with mono blocks of blockSize samples.
// The final block may be shorter and blocks are reused, so fn must not keep
// them. Stream stops early when ctx is cancelled or fn returns an error.
func (s *WAVSource) Stream(ctx context.Context, blockSize int, fn func([]float32) error) error {
	if blockSize <= 0 {
		return ErrInvalidBlockSize
	}
	channels := s.Channels()
	scale, offset := pcmScale(s.BitDepth())
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: s.SampleRate()},
		Data:   make([]int, blockSize*channels),
	}
	block := make([]float32, blockSize*channels)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode wav: %w", err)
		}
		if n == 0 {
			return nil
		}
		n -= n % channels
		for i, v := range buf.Data[:n] {
			block[i] = float32(float64(v-offset) * scale)
		}
		if err := fn(ToMono(block[:n], channels)); err != nil {
			return err
		}
	}
}

// Close closes the underlying file.
func (s *WAVSource) Close() error {
	return s.file.Close()
}

// pcmScale returns the factor and offset that map PCM integers of the given
// depth onto [-1, 1). 8-bit WAV is unsigned.
func pcmScale(bitDepth int) (float64, int) {
	if bitDepth == 8 {
		return 1.0 / 128, 128
	}
	return 1.0 / float64(int64(1)<<(bitDepth-1)), 0
}
