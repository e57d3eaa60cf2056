// ABOUTME: Multicast receive loop for Scream audio
// ABOUTME: Joins the group, decodes headers, reconfigures sinks and publishes status
// Package receiver runs the receive-decode-reconfigure-playback loop.
//
// One Receiver is one run: Run joins the multicast group, reads packets until
// Stop is called or the socket fails, and releases everything on the way out.
// Only the goroutine executing Run touches the socket and the sink; other
// goroutines read the published Status snapshot and Counters.
//
// State machine:
//
//	Idle -> JoiningGroup -> Receiving -> LeavingGroup -> Idle
package receiver
