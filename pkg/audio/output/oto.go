// ABOUTME: Oto-based audio output implementation
// ABOUTME: One oto context per process, so the format is fixed by the first open
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
)

// Oto backend
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	channels   int
	suspended  bool
	bufferMs   int
	log        *slog.Logger
}

// NewOto creates a new Oto backend
func NewOto(opts Options) *Oto {
	return &Oto{
		bufferMs: opts.BufferMs,
		log:      opts.Logger.With("backend", "oto"),
	}
}

// Name identifies the backend
func (o *Oto) Name() string { return "oto" }

// Open creates a player for format. oto cannot create a second context, so
// a format with a different rate or channel count than the first one fails.
func (o *Oto) Open(format scream.Format, order binary.ByteOrder) (Sink, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	rate, channels := int(format.SampleRate), int(format.Channels)

	switch {
	case o.otoCtx == nil:
		op := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(o.bufferMs) * time.Millisecond,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create oto context: %v", scream.ErrDevice, err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = rate
		o.channels = channels

	case o.sampleRate != rate || o.channels != channels:
		return nil, fmt.Errorf("%w: oto context is fixed at %dHz %dch, cannot switch to %dHz %dch",
			scream.ErrDevice, o.sampleRate, o.channels, rate, channels)

	case o.suspended:
		if err := o.otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("%w: failed to resume oto context: %v", scream.ErrDevice, err)
		}
		o.suspended = false
	}

	bufferBytes := MinBufferSize(format, o.bufferMs)
	ring := NewRingBuffer(bufferBytes / audio.BytesPerSample)
	sink := &otoSink{ringSink: ringSink{ring: ring, order: order, frame: int(format.Channels)}}

	sink.player = o.otoCtx.NewPlayer(&ringReader{ring: ring})
	sink.player.SetBufferSize(bufferBytes)
	sink.player.Play()

	o.log.Info("audio output opened", "format", format.String(), "buffer_bytes", bufferBytes)

	return sink, nil
}

// Close suspends the shared context; oto offers no way to destroy it
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil || o.suspended {
		return nil
	}
	if err := o.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("%w: failed to suspend oto context: %v", scream.ErrDevice, err)
	}
	o.suspended = true
	return nil
}

type otoSink struct {
	ringSink
	player *oto.Player
}

// Close stops the player
func (s *otoSink) Close() error {
	if !s.markClosed() || s.player == nil {
		return nil
	}

	err := s.player.Close()
	s.player = nil
	if err != nil {
		return fmt.Errorf("%w: player close: %v", scream.ErrDevice, err)
	}
	return nil
}
