// ABOUTME: Audio output interface definitions
// ABOUTME: Common Backend/Sink contract and buffer sizing for playback backends
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/screamrx/screamrx/pkg/scream"
)

// Backends lists the names accepted by New
var Backends = []string{"malgo", "oto", "wav"}

const (
	// DefaultBackend plays through the system device with malgo
	DefaultBackend = "malgo"

	// DefaultBufferMs is the device buffer used when none is configured
	DefaultBufferMs = 50

	// minBufferFrames keeps tiny rates from getting a useless buffer
	minBufferFrames = 256
)

// Sink is an open output stream for one audio format
type Sink interface {
	// Write queues a wire payload without blocking and returns the number
	// of payload bytes accepted. Bytes that do not fit are dropped.
	Write(payload []byte) (int, error)

	// Close stops and releases the stream. Safe to call more than once.
	Close() error
}

// Backend opens sinks on an audio output
type Backend interface {
	// Open starts a new stream for format. Payload samples are in order.
	Open(format scream.Format, order binary.ByteOrder) (Sink, error)

	// Name identifies the backend
	Name() string

	// Close releases backend-wide resources
	Close() error
}

// Options configures a backend
type Options struct {
	BufferMs int
	WAVDir   string
	Logger   *slog.Logger
}

// New creates a backend by name
func New(name string, opts Options) (Backend, error) {
	if opts.BufferMs <= 0 {
		opts.BufferMs = DefaultBufferMs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch name {
	case "", "malgo":
		return NewMalgo(opts), nil
	case "oto":
		return NewOto(opts), nil
	case "wav":
		return NewWAV(opts), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q (supported: malgo, oto, wav)", name)
	}
}

// MinBufferSize returns the device buffer size in bytes for format
func MinBufferSize(format scream.Format, bufferMs int) int {
	if bufferMs <= 0 {
		bufferMs = DefaultBufferMs
	}

	frames := int(format.SampleRate) * bufferMs / 1000
	if frames < minBufferFrames {
		frames = minBufferFrames
	}
	return frames * format.BytesPerFrame()
}

// checkFormat rejects formats no backend can play
func checkFormat(format scream.Format) error {
	if format.SampleSize != scream.SupportedSampleSize {
		return fmt.Errorf("%w: %d-bit output not supported", scream.ErrDevice, format.SampleSize)
	}
	if format.SampleRate == 0 || format.Channels == 0 {
		return fmt.Errorf("%w: invalid format %s", scream.ErrDevice, format)
	}
	return nil
}
