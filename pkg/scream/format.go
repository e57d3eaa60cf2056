// ABOUTME: Format resolution from packet headers
// ABOUTME: Maps rate codes and channel maps to a concrete output configuration
package scream

import "fmt"

const (
	// SupportedSampleSize is the only sample size the pipeline plays
	SupportedSampleSize = 16

	// ChannelMaskMono is the output mask for a single channel (front center)
	ChannelMaskMono uint32 = 0x4

	// ChannelMaskStereo is the output mask for front left + front right
	ChannelMaskStereo uint32 = 0xC

	// channelMapShift moves the sender's speaker bits (front-left = bit 0)
	// onto the output mask layout (front-left = bit 2). The full per-position
	// table for layouts where the two orders diverge is not applied.
	channelMapShift = 2

	rateBase48k   = 48000
	rateBase44k1  = 44100
	rateBaseFlag  = 0x80
	rateMultMask  = 0x7F
	maxRateFactor = 127
)

// Format is the output configuration derived from a header
type Format struct {
	SampleRate  uint32 `json:"sample_rate"`
	SampleSize  uint8  `json:"sample_size"`
	Channels    uint8  `json:"channels"`
	ChannelMask uint32 `json:"channel_mask"`
}

// BytesPerFrame returns the size of one interleaved frame
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * int(f.SampleSize) / 8
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz %d-bit %dch mask=%#x", f.SampleRate, f.SampleSize, f.Channels, f.ChannelMask)
}

// SampleRate decodes a rate code: base 44.1kHz when bit 7 is set, 48kHz
// otherwise, multiplied by the low 7 bits. Codes 0 and 128 yield 0.
func SampleRate(rateCode uint8) uint32 {
	base := uint32(rateBase48k)
	if rateCode&rateBaseFlag != 0 {
		base = rateBase44k1
	}
	return base * uint32(rateCode&rateMultMask)
}

// ResolveFormat computes the output configuration for a header
func ResolveFormat(h Header) (Format, error) {
	if h.SampleSize != SupportedSampleSize {
		return Format{}, fmt.Errorf("%w: %d-bit (only %d-bit is supported)",
			ErrUnsupportedSampleSize, h.SampleSize, SupportedSampleSize)
	}

	rate := SampleRate(h.RateCode)
	if rate == 0 {
		return Format{}, fmt.Errorf("%w: rate code %#02x gives a zero sample rate", ErrUnsupportedFormat, h.RateCode)
	}
	if h.Channels == 0 {
		return Format{}, fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}

	var mask uint32
	switch h.Channels {
	case 1:
		mask = ChannelMaskMono
	case 2:
		mask = ChannelMaskStereo
	default:
		mask = uint32(h.ChannelMap()) << channelMapShift
	}

	return Format{
		SampleRate:  rate,
		SampleSize:  h.SampleSize,
		Channels:    h.Channels,
		ChannelMask: mask,
	}, nil
}

// EncodeRateCode is the inverse of SampleRate for senders
func EncodeRateCode(rate uint32) (uint8, error) {
	switch {
	case rate == 0:
	case rate%rateBase48k == 0 && rate/rateBase48k <= maxRateFactor:
		return uint8(rate / rateBase48k), nil
	case rate%rateBase44k1 == 0 && rate/rateBase44k1 <= maxRateFactor:
		return rateBaseFlag | uint8(rate/rateBase44k1), nil
	}
	return 0, fmt.Errorf("%w: %dHz is not a multiple of 44100 or 48000", ErrUnsupportedFormat, rate)
}

// Default speaker maps used by the desktop mixer, bit 0 = front left
var defaultChannelMaps = map[uint8]uint16{
	1: 0x0004, // front center
	2: 0x0003, // front left, front right
	4: 0x0033, // quad
	6: 0x003F, // 5.1 back
	8: 0x063F, // 7.1 surround
}

// HeaderFor builds a 16-bit header for a sender emitting rate and channels
func HeaderFor(rate uint32, channels uint8) (Header, error) {
	code, err := EncodeRateCode(rate)
	if err != nil {
		return Header{}, err
	}
	if channels == 0 {
		return Header{}, fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}

	channelMap, ok := defaultChannelMaps[channels]
	if !ok {
		channelMap = uint16(1)<<channels - 1
	}

	return Header{
		RateCode:      code,
		SampleSize:    SupportedSampleSize,
		Channels:      channels,
		ChannelMapLSB: uint8(channelMap),
		ChannelMapMSB: uint8(channelMap >> 8),
	}, nil
}
