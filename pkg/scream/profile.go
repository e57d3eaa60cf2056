// ABOUTME: Protocol profiles for the current and legacy Scream framings
// ABOUTME: Each profile fixes header size, multicast group, payload size and byte order
package scream

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
)

const (
	// DefaultGroup is the multicast group of current senders
	DefaultGroup = "239.255.77.77"

	// DefaultPort is shared by both framings
	DefaultPort = 4010

	// LegacyHeaderSize is the header size of the legacy framing
	LegacyHeaderSize = 12

	// LegacyMaxPayloadSize is the largest legacy payload
	LegacyMaxPayloadSize = 320

	// LegacyGroup is the multicast group of legacy senders
	LegacyGroup = "224.0.0.56"
)

// LegacyHeader is the format every legacy packet carries; its header bytes
// describe no format.
var LegacyHeader = Header{
	RateCode:      1,
	SampleSize:    SupportedSampleSize,
	Channels:      2,
	ChannelMapLSB: 0x03,
}

// Profile is a selectable protocol version. Header sizes of different
// profiles are never mixed on one socket.
type Profile struct {
	Name           string
	HeaderSize     int
	MaxPayloadSize int
	Group          string
	Port           int
	ByteOrder      binary.ByteOrder

	// fixed is used instead of decoding header bytes when set
	fixed *Header
}

var (
	// Current is the 5-byte header framing
	Current = Profile{
		Name:           "scream",
		HeaderSize:     HeaderSize,
		MaxPayloadSize: MaxPayloadSize,
		Group:          DefaultGroup,
		Port:           DefaultPort,
		ByteOrder:      binary.LittleEndian,
	}

	// Legacy is the 12-byte header framing
	Legacy = Profile{
		Name:           "legacy",
		HeaderSize:     LegacyHeaderSize,
		MaxPayloadSize: LegacyMaxPayloadSize,
		Group:          LegacyGroup,
		Port:           DefaultPort,
		ByteOrder:      binary.BigEndian,
		fixed:          &LegacyHeader,
	}
)

// ProfileByName looks up a profile by its configuration name
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", Current.Name:
		return Current, nil
	case Legacy.Name:
		return Legacy, nil
	default:
		return Profile{}, fmt.Errorf("unknown protocol profile %q (supported: %s, %s)", name, Current.Name, Legacy.Name)
	}
}

// MaxPacketSize is the receive buffer size for the profile
func (p Profile) MaxPacketSize() int {
	return p.HeaderSize + p.MaxPayloadSize
}

// Addr returns the group:port the profile listens on
func (p Profile) Addr() string {
	return net.JoinHostPort(p.Group, strconv.Itoa(p.Port))
}

// Split separates a packet into its header and payload. The payload aliases packet.
func (p Profile) Split(packet []byte) (Header, []byte, error) {
	if len(packet) < p.HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes, %s header is %d",
			ErrMalformedPacket, len(packet), p.Name, p.HeaderSize)
	}

	if p.fixed != nil {
		return *p.fixed, packet[p.HeaderSize:], nil
	}

	h, err := ParseHeader(packet)
	if err != nil {
		return Header{}, nil, err
	}
	return h, packet[p.HeaderSize:], nil
}

// AppendHeader writes the profile header for h to dst (sender side)
func (p Profile) AppendHeader(dst []byte, h Header) []byte {
	if p.fixed != nil {
		return append(dst, make([]byte, p.HeaderSize)...)
	}
	return h.AppendBinary(dst)
}
