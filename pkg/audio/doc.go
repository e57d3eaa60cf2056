// ABOUTME: Audio fundamentals package providing sample conversion utilities
// ABOUTME: Converts between wire PCM bytes and int16 samples, generates test tones
// Package audio provides 16-bit PCM helpers shared by the output sinks and
// the test sender.
//
// Wire payloads carry interleaved 16-bit samples in the byte order of the
// protocol profile. Sinks convert them to native samples with DecodeInt16;
// senders go the other way with EncodeInt16.
//
// Example:
//
//	samples := audio.DecodeInt16(nil, payload, binary.LittleEndian)
//	payload = audio.EncodeInt16(payload[:0], samples, binary.BigEndian)
package audio
