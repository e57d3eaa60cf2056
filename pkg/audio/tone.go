// ABOUTME: Test tone generator
// ABOUTME: Generates an interleaved 16-bit sine wave for the test sender
package audio

import (
	"math"
	"sync"
)

// ToneSource generates a sine tone on every channel
type ToneSource struct {
	mu          sync.Mutex
	sampleIndex uint64
	frequency   float64
	sampleRate  int
	channels    int
	amplitude   float64
}

// NewToneSource creates a tone generator (440Hz at half scale when frequency is 0)
func NewToneSource(sampleRate, channels int, frequency float64) *ToneSource {
	if frequency <= 0 {
		frequency = 440.0 // A4 note
	}
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
		amplitude:  0.5,
	}
}

// Read fills samples with whole frames and returns the number of samples written
func (s *ToneSource) Read(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(samples) / s.channels

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * MaxInt16 * s.amplitude)

		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
	}

	s.sampleIndex += uint64(frames)

	return frames * s.channels, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return s.channels }
func (s *ToneSource) Close() error    { return nil }
