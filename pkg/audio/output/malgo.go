// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo; a new device is opened for every format
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
)

// Malgo backend. The miniaudio context is shared by all sinks it opens.
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	bufferMs int
	log      *slog.Logger
}

// NewMalgo creates a new Malgo backend
func NewMalgo(opts Options) *Malgo {
	return &Malgo{
		bufferMs: opts.BufferMs,
		log:      opts.Logger.With("backend", "malgo"),
	}
}

// Name identifies the backend
func (m *Malgo) Name() string { return "malgo" }

// Open initializes and starts a playback device for format
func (m *Malgo) Open(format scream.Format, order binary.ByteOrder) (Sink, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize malgo context: %v", scream.ErrDevice, err)
		}
		m.malgoCtx = ctx
	}

	bufferBytes := MinBufferSize(format, m.bufferMs)
	sink := &malgoSink{
		ringSink: ringSink{
			ring:  NewRingBuffer(bufferBytes / audio.BytesPerSample),
			order: order,
			frame: int(format.Channels),
		},
		channels: int(format.Channels),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	// miniaudio picks its default layout for the channel count; ChannelMask
	// is published in status only
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = format.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		sink.dataCallback(pOutputSample, frameCount)
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize playback device: %v", scream.ErrDevice, err)
	}

	// Start before the first write so the device plays silence until data arrives
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: failed to start device: %v", scream.ErrDevice, err)
	}
	sink.device = device

	m.log.Info("audio output opened", "format", format.String(), "buffer_bytes", bufferBytes)

	return sink, nil
}

// Close releases the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}

	if err := m.malgoCtx.Uninit(); err != nil {
		m.log.Warn("malgo context uninit error", "err", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

type malgoSink struct {
	ringSink
	device   *malgo.Device
	channels int
	out      []int16 // callback scratch, only touched on the device thread
}

// dataCallback is called by malgo to fill the audio output buffer
func (s *malgoSink) dataCallback(pOutput []byte, frameCount uint32) {
	n := int(frameCount) * s.channels
	if limit := len(pOutput) / audio.BytesPerSample; n > limit {
		n = limit
	}
	if cap(s.out) < n {
		s.out = make([]int16, n)
	}

	samples := s.out[:n]
	s.ring.Read(samples)
	audio.PutInt16LE(pOutput, samples)
}

// Close stops and uninitializes the device
func (s *malgoSink) Close() error {
	if !s.markClosed() {
		return nil
	}
	if s.device == nil {
		return nil
	}

	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	if err != nil {
		return fmt.Errorf("%w: device stop: %v", scream.ErrDevice, err)
	}
	return nil
}
