// ABOUTME: MP3 file source for the test sender
// ABOUTME: Decodes with go-mp3 and optionally loops the file
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Channels is fixed: go-mp3 always decodes to interleaved stereo
const mp3Channels = 2

// MP3Source reads from an MP3 file
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	loop    bool
	buf     []byte
}

// OpenMP3 opens path for decoding; with loop set the file restarts at EOF
func OpenMP3(path string, loop bool) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Source{
		file:    f,
		decoder: decoder,
		loop:    loop,
	}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	samples = samples[:len(samples)-len(samples)%mp3Channels]
	need := len(samples) * BytesPerSample
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	n -= n % (BytesPerSample * mp3Channels)
	DecodeInt16(samples[:0], buf[:n], binary.LittleEndian)

	switch {
	case err == nil:
		return n / BytesPerSample, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		if !s.loop {
			if n == 0 {
				return 0, io.EOF
			}
			return n / BytesPerSample, nil
		}
		if rerr := s.rewind(); rerr != nil {
			return n / BytesPerSample, rerr
		}
		return n / BytesPerSample, nil
	default:
		return n / BytesPerSample, err
	}
}

func (s *MP3Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int   { return mp3Channels }
func (s *MP3Source) Close() error    { return s.file.Close() }
