// ABOUTME: Scream packet sender
// ABOUTME: Packetizes PCM sources and transmits them at real-time pace
// Package sender emits Scream packets from an audio.Source.
//
// It exists to exercise receivers: a test tone or an MP3 file is cut into
// payloads of the profile's maximum size, prefixed with the header for the
// source format and sent to the multicast group at the rate the audio
// would play.
package sender
