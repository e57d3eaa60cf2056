// ABOUTME: Scream packet header codec
// ABOUTME: Parses and encodes the 5-byte format header carried by every packet
package scream

import "fmt"

const (
	// HeaderSize is the size of the current format header
	HeaderSize = 5

	// MaxPayloadSize is the largest payload a current sender emits
	MaxPayloadSize = 1152

	// MaxPacketSize bounds a single receive
	MaxPacketSize = MaxPayloadSize + HeaderSize
)

// Header is the per-packet format descriptor
type Header struct {
	RateCode      uint8 // bit 7 selects the 44.1kHz base, low 7 bits multiply it
	SampleSize    uint8 // bits per sample
	Channels      uint8
	ChannelMapLSB uint8
	ChannelMapMSB uint8
}

// ParseHeader extracts the header from the first HeaderSize bytes of a packet
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedPacket, len(b), HeaderSize)
	}

	return Header{
		RateCode:      b[0],
		SampleSize:    b[1],
		Channels:      b[2],
		ChannelMapLSB: b[3],
		ChannelMapMSB: b[4],
	}, nil
}

// ChannelMap returns the 16-bit speaker position mask
func (h Header) ChannelMap() uint16 {
	return uint16(h.ChannelMapMSB)<<8 | uint16(h.ChannelMapLSB)
}

// AppendBinary appends the wire encoding of the header to dst
func (h Header) AppendBinary(dst []byte) []byte {
	return append(dst, h.RateCode, h.SampleSize, h.Channels, h.ChannelMapLSB, h.ChannelMapMSB)
}

func (h Header) String() string {
	return fmt.Sprintf("rate=%#02x bits=%d ch=%d map=%#04x", h.RateCode, h.SampleSize, h.Channels, h.ChannelMap())
}
