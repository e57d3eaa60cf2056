// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit audio between sample rates for the test sender
// Package resample provides sample rate conversion for 16-bit PCM.
//
// Uses linear interpolation and keeps state across chunks, so a stream can
// be converted piecewise.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out = r.Resample(out[:0], chunk)
package resample
