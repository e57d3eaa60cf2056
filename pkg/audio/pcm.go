// ABOUTME: 16-bit PCM conversion helpers
// ABOUTME: Byte order aware decoding and encoding of interleaved samples
package audio

import "encoding/binary"

const (
	// BytesPerSample is the size of one 16-bit sample
	BytesPerSample = 2

	// MaxInt16 and MinInt16 bound 16-bit samples
	MaxInt16 = 32767
	MinInt16 = -32768
)

// DecodeInt16 appends the samples in payload to dst. A trailing odd byte is ignored.
func DecodeInt16(dst []int16, payload []byte, order binary.ByteOrder) []int16 {
	n := len(payload) / BytesPerSample
	for i := 0; i < n; i++ {
		dst = append(dst, int16(order.Uint16(payload[i*BytesPerSample:])))
	}
	return dst
}

// EncodeInt16 appends samples to dst in the given byte order
func EncodeInt16(dst []byte, samples []int16, order binary.ByteOrder) []byte {
	for _, s := range samples {
		dst = append(dst, 0, 0)
		order.PutUint16(dst[len(dst)-BytesPerSample:], uint16(s))
	}
	return dst
}

// PutInt16LE writes samples to out as little-endian, the native device order.
// out must hold len(samples)*2 bytes.
func PutInt16LE(out []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
}

// Clamp16 saturates a wider sample into the int16 range
func Clamp16(v int) int16 {
	if v > MaxInt16 {
		return MaxInt16
	}
	if v < MinInt16 {
		return MinInt16
	}
	return int16(v)
}
