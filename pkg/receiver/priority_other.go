//go:build !linux

// ABOUTME: Worker thread priority fallback
// ABOUTME: No per-thread priority control outside Linux
package receiver

func raisePriority() error {
	return nil
}
