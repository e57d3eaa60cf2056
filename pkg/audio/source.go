// ABOUTME: PCM source abstraction for the test sender
// ABOUTME: Interleaved 16-bit samples from tones, files or resamplers
package audio

// Source provides interleaved 16-bit PCM
type Source interface {
	// Read fills samples with whole frames and returns the number of samples
	// written. io.EOF is returned once a finite source is exhausted.
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}
