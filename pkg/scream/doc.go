// ABOUTME: Scream network audio wire protocol package
// ABOUTME: Defines packet headers, protocol profiles, format resolution and error kinds
// Package scream implements the Scream multicast audio framing.
//
// Each UDP datagram carries a small fixed header describing the PCM format
// followed by raw interleaved samples. Two framings exist and are exposed as
// profiles:
//   - Current: 5-byte header on 239.255.77.77:4010
//   - Legacy: 12-byte header on 224.0.0.56:4010, fixed 48kHz/16-bit/stereo
//
// Example:
//
//	header, payload, err := scream.Current.Split(packet)
//	format, err := scream.ResolveFormat(header)
package scream
