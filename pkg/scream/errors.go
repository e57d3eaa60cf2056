// ABOUTME: Error taxonomy for the receive pipeline
// ABOUTME: Sentinel errors and the ErrorKind published in receiver status
package scream

import (
	"encoding/json"
	"errors"
)

var (
	// ErrMalformedPacket means the datagram is shorter than the profile header
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnsupportedSampleSize means the header declares anything but 16-bit samples
	ErrUnsupportedSampleSize = errors.New("unsupported sample size")

	// ErrUnsupportedFormat means the header resolves to an unusable format (zero rate or channels)
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDevice means the output sink failed to open or write
	ErrDevice = errors.New("audio device error")

	// ErrTransport means a socket join, receive or close failed
	ErrTransport = errors.New("transport error")
)

// ErrorKind classifies the last error reported by the pipeline
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorMalformedPacket
	ErrorUnsupportedSampleSize
	ErrorUnsupportedFormat
	ErrorDevice
	ErrorTransport
	ErrorUnknown
)

var kindNames = map[ErrorKind]string{
	ErrorNone:                  "",
	ErrorMalformedPacket:       "MalformedPacket",
	ErrorUnsupportedSampleSize: "UnsupportedSampleSize",
	ErrorUnsupportedFormat:     "UnsupportedFormat",
	ErrorDevice:                "DeviceError",
	ErrorTransport:             "TransportError",
	ErrorUnknown:               "Unknown",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[ErrorUnknown]
}

// MarshalJSON encodes the kind by name
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Fatal reports whether the kind terminates the receive loop
func (k ErrorKind) Fatal() bool {
	return k == ErrorTransport
}

// KindOf maps a (possibly wrapped) error onto its ErrorKind
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, ErrMalformedPacket):
		return ErrorMalformedPacket
	case errors.Is(err, ErrUnsupportedSampleSize):
		return ErrorUnsupportedSampleSize
	case errors.Is(err, ErrUnsupportedFormat):
		return ErrorUnsupportedFormat
	case errors.Is(err, ErrDevice):
		return ErrorDevice
	case errors.Is(err, ErrTransport):
		return ErrorTransport
	default:
		return ErrorUnknown
	}
}
