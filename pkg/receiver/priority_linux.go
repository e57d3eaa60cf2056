//go:build linux

// ABOUTME: Worker thread priority on Linux
// ABOUTME: Lowers the nice value of the locked receive thread
package receiver

import "golang.org/x/sys/unix"

// workerNice is the nice value requested for the receive thread
const workerNice = -10

// raisePriority applies to the calling OS thread; the caller must have
// locked its goroutine to the thread.
func raisePriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), workerNice)
}
