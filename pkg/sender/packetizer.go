// ABOUTME: Cuts a PCM source into Scream packets
// ABOUTME: Builds the header for the source format and encodes payloads in profile byte order
package sender

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
)

// Packetizer produces packets from a source
type Packetizer struct {
	profile scream.Profile
	header  scream.Header
	src     audio.Source
	samples []int16
	frames  int
}

// NewPacketizer validates the source format against the profile
func NewPacketizer(profile scream.Profile, src audio.Source) (*Packetizer, error) {
	rate, channels := src.SampleRate(), src.Channels()
	if channels <= 0 || channels > 255 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	var header scream.Header
	if profile.HeaderSize == scream.LegacyHeaderSize {
		want, _ := scream.ResolveFormat(scream.LegacyHeader)
		if uint32(rate) != want.SampleRate || uint8(channels) != want.Channels {
			return nil, fmt.Errorf("legacy profile carries %dHz %dch only, source is %dHz %dch",
				want.SampleRate, want.Channels, rate, channels)
		}
		header = scream.LegacyHeader
	} else {
		var err error
		header, err = scream.HeaderFor(uint32(rate), uint8(channels))
		if err != nil {
			return nil, err
		}
	}

	frameBytes := channels * audio.BytesPerSample
	frames := profile.MaxPayloadSize / frameBytes
	if frames == 0 {
		return nil, fmt.Errorf("frame of %d bytes exceeds payload size %d", frameBytes, profile.MaxPayloadSize)
	}

	return &Packetizer{
		profile: profile,
		header:  header,
		src:     src,
		samples: make([]int16, frames*channels),
		frames:  frames,
	}, nil
}

// Header returns the header every packet carries
func (p *Packetizer) Header() scream.Header {
	return p.header
}

// Interval is the playback duration of one full packet
func (p *Packetizer) Interval() time.Duration {
	return time.Duration(p.frames) * time.Second / time.Duration(p.src.SampleRate())
}

// Next appends the next packet to dst[:0]. It returns io.EOF when the
// source is exhausted.
func (p *Packetizer) Next(dst []byte) ([]byte, error) {
	n, err := p.src.Read(p.samples)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return dst[:0], err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return dst[:0], err
	}

	dst = p.profile.AppendHeader(dst[:0], p.header)
	return audio.EncodeInt16(dst, p.samples[:n], p.profile.ByteOrder), nil
}
