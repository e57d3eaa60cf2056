// ABOUTME: WAV recording output implementation
// ABOUTME: Writes each format segment of the stream to its own WAV file
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
)

const wavPCMFormat = 1

// WAV backend records instead of playing
type WAV struct {
	mu  sync.Mutex
	dir string
	seq int
	now func() time.Time
	log *slog.Logger
}

// NewWAV creates a recording backend writing into opts.WAVDir
func NewWAV(opts Options) *WAV {
	dir := opts.WAVDir
	if dir == "" {
		dir = "."
	}
	return &WAV{
		dir: dir,
		now: time.Now,
		log: opts.Logger.With("backend", "wav"),
	}
}

// Name identifies the backend
func (w *WAV) Name() string { return "wav" }

// Open starts a new WAV file for format
func (w *WAV) Open(format scream.Format, order binary.ByteOrder) (Sink, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.seq++
	name := fmt.Sprintf("scream-%s-%03d-%dhz-%dch.wav",
		w.now().Format("20060102-150405"), w.seq, format.SampleRate, format.Channels)
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create recording dir: %v", scream.ErrDevice, err)
	}

	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create recording: %v", scream.ErrDevice, err)
	}

	w.log.Info("recording opened", "path", path, "format", format.String())

	return &wavSink{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, int(format.SampleRate), int(format.SampleSize), int(format.Channels), wavPCMFormat),
		order:   order,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: int(format.Channels), SampleRate: int(format.SampleRate)},
			SourceBitDepth: int(format.SampleSize),
		},
	}, nil
}

// Close is a no-op; recordings are finalized per sink
func (w *WAV) Close() error { return nil }

type wavSink struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	order   binary.ByteOrder
	samples []int16
	buf     *goaudio.IntBuffer
	closed  bool
}

// Write appends the payload to the recording
func (s *wavSink) Write(payload []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("%w: write on closed recording", scream.ErrDevice)
	}

	s.samples = audio.DecodeInt16(s.samples[:0], payload, s.order)

	s.buf.Data = s.buf.Data[:0]
	for _, v := range s.samples {
		s.buf.Data = append(s.buf.Data, int(v))
	}

	if err := s.encoder.Write(s.buf); err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", scream.ErrDevice, s.path, err)
	}
	return len(s.samples) * audio.BytesPerSample, nil
}

// Close finalizes the WAV header and closes the file
func (s *wavSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	encErr := s.encoder.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("%w: finalize %s: %v", scream.ErrDevice, s.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("%w: close %s: %v", scream.ErrDevice, s.path, fileErr)
	}
	return nil
}
