// ABOUTME: Streaming linear resampler for 16-bit interleaved audio
// ABOUTME: Carries the last input frame across calls so chunk edges interpolate smoothly
package resample

import "github.com/screamrx/screamrx/pkg/audio"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames per output frame
	position   float64 // next output position, in frames of the current window
	prev       []int16 // last frame of the previous chunk
	havePrev   bool
	window     []int16
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int16, channels),
	}
}

// Resample appends the output for the next chunk of interleaved input to dst.
// Output lags input by one frame; the tail is emitted by later calls.
func (r *Resampler) Resample(dst, input []int16) []int16 {
	input = input[:len(input)-len(input)%r.channels]
	if len(input) == 0 {
		return dst
	}

	// window = previous frame + this chunk
	r.window = r.window[:0]
	if r.havePrev {
		r.window = append(r.window, r.prev...)
	}
	r.window = append(r.window, input...)
	frames := len(r.window) / r.channels

	for {
		idx := int(r.position)
		if idx+1 >= frames {
			break
		}
		frac := r.position - float64(idx)

		a := r.window[idx*r.channels : (idx+1)*r.channels]
		b := r.window[(idx+1)*r.channels : (idx+2)*r.channels]
		for ch := 0; ch < r.channels; ch++ {
			v := float64(a[ch])*(1-frac) + float64(b[ch])*frac
			dst = append(dst, audio.Clamp16(int(v)))
		}

		r.position += r.step
	}

	// the last frame becomes index 0 of the next window
	r.position -= float64(frames - 1)
	copy(r.prev, r.window[(frames-1)*r.channels:])
	r.havePrev = true

	return dst
}

// Reset drops carried state
func (r *Resampler) Reset() {
	r.position = 0
	r.havePrev = false
}

// OutputSamplesNeeded estimates the output size for an input size
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return int(float64(inputFrames)/r.step+1) * r.channels
}

// Source resamples another source to a fixed rate
type Source struct {
	src     audio.Source
	r       *Resampler
	rate    int
	in      []int16
	pending []int16
	err     error
}

// NewSource wraps src so that it produces rate; src is returned unchanged
// when it already runs at rate.
func NewSource(src audio.Source, rate int) audio.Source {
	if src.SampleRate() == rate {
		return src
	}
	return &Source{
		src:  src,
		r:    New(src.SampleRate(), rate, src.Channels()),
		rate: rate,
	}
}

func (s *Source) Read(samples []int16) (int, error) {
	ch := s.src.Channels()
	samples = samples[:len(samples)-len(samples)%ch]

	for len(s.pending) < len(samples) && s.err == nil {
		want := s.r.OutputSamplesNeeded(len(samples))
		if cap(s.in) < want {
			s.in = make([]int16, want)
		}
		n, err := s.src.Read(s.in[:want])
		if n > 0 {
			s.pending = s.r.Resample(s.pending, s.in[:n])
		}
		if err != nil {
			s.err = err
		} else if n == 0 {
			break
		}
	}

	n := copy(samples, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]

	if n == 0 && s.err != nil {
		return 0, s.err
	}
	return n, nil
}

func (s *Source) SampleRate() int { return s.rate }
func (s *Source) Channels() int   { return s.src.Channels() }
func (s *Source) Close() error    { return s.src.Close() }
