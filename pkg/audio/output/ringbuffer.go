// ABOUTME: Ring buffer between the receive loop and device callbacks
// ABOUTME: Drops on overflow and zero-fills on underrun so neither side blocks
package output

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
)

// RingBuffer provides thread-safe circular buffer for audio samples
type RingBuffer struct {
	buffer   []int16
	readPos  int
	writePos int
	size     int
	count    int // Number of samples currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buffer: make([]int16, capacity),
		size:   capacity,
	}
}

// Write adds samples to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples) && rb.count < rb.size; i++ {
		rb.buffer[rb.writePos] = samples[i]
		rb.writePos = (rb.writePos + 1) % rb.size
		rb.count++
		written++
	}
	return written
}

// WriteFrames adds the largest whole-frame prefix of samples that fits and
// returns how many samples were written. frame is the samples per frame.
func (rb *RingBuffer) WriteFrames(samples []int16, frame int) int {
	if frame < 1 {
		frame = 1
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(samples), rb.size-rb.count)
	n -= n % frame
	for i := 0; i < n; i++ {
		rb.buffer[rb.writePos] = samples[i]
		rb.writePos = (rb.writePos + 1) % rb.size
	}
	rb.count += n
	return n
}

// Read retrieves samples from the ring buffer, zero-filling on underrun
func (rb *RingBuffer) Read(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(samples) && rb.count > 0; i++ {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.count--
		read++
	}

	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}

	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free slots in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// ringSink converts wire payloads into the ring. Only the receive loop calls
// Write, so scratch and pending need no lock.
//
// The ring only ever holds whole frames: a payload that ends mid-frame
// leaves its tail in pending for the next write, and on overflow whole
// frames are dropped.
type ringSink struct {
	ring  *RingBuffer
	order binary.ByteOrder

	// frame is the number of samples per frame (the channel count)
	frame   int
	scratch []int16
	joined  []int16
	pending []int16

	closeMu sync.Mutex
	closed  bool
}

func (s *ringSink) Write(payload []byte) (int, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("%w: write on closed sink", scream.ErrDevice)
	}

	frame := max(s.frame, 1)

	s.scratch = audio.DecodeInt16(s.scratch[:0], payload, s.order)
	samples := s.scratch
	if len(s.pending) > 0 {
		s.joined = append(append(s.joined[:0], s.pending...), s.scratch...)
		samples = s.joined
	}

	whole := len(samples) - len(samples)%frame
	written := s.ring.WriteFrames(samples[:whole], frame)
	s.pending = append(s.pending[:0], samples[whole:]...)

	accepted := max(len(s.scratch)-(whole-written), 0)
	return accepted * audio.BytesPerSample, nil
}

// markClosed reports whether this call is the one that closed the sink
func (s *ringSink) markClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *ringSink) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// ringReader streams the ring as little-endian bytes for pull-based players
type ringReader struct {
	ring    *RingBuffer
	scratch []int16
}

func (r *ringReader) Read(p []byte) (int, error) {
	n := len(p) / audio.BytesPerSample
	if cap(r.scratch) < n {
		r.scratch = make([]int16, n)
	}
	samples := r.scratch[:n]
	r.ring.Read(samples)
	audio.PutInt16LE(p, samples)
	return n * audio.BytesPerSample, nil
}
