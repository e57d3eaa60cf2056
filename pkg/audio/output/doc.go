// ABOUTME: Audio output package for playing received PCM
// ABOUTME: Provides Backend/Sink interfaces with malgo, oto and WAV implementations
// Package output provides audio sinks for the receive pipeline.
//
// A Backend opens one Sink per audio format. Sinks start playing silence as
// soon as they are opened and accept wire payloads without blocking: when the
// device buffer is full the excess is dropped.
//
// Backends:
//   - malgo: miniaudio device, reopened on every format change (default)
//   - oto: single process-wide context, format fixed after the first open
//   - wav: writes every format segment to its own WAV file
//
// Example:
//
//	backend, err := output.New("malgo", output.Options{BufferMs: 50})
//	sink, err := backend.Open(format, binary.LittleEndian)
//	n, err := sink.Write(payload)
//	err = sink.Close()
package output
