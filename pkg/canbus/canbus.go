// Package canbus provides CAN frame transport for XCP sessions.
//
// A Transport delivers classic 8-byte CAN frames. Backends run their own
// receive path in the background and buffer frames matching the configured
// receive identifier into a FIFO queue; everything else on the bus is
// dropped before it reaches the caller.
package canbus

import "time"

// Frame is a classic CAN data frame with a full 8-byte payload.
type Frame struct {
	ID   uint32
	Data [8]byte
}

// Transport sends and receives frames for a single XCP session.
type Transport interface {
	// Send queues a frame for transmission to the identifier in frame.ID.
	Send(frame Frame) error
	// Receive returns the next buffered inbound frame, waiting up to
	// timeout. It returns (nil, nil) if no frame arrived in time.
	Receive(timeout time.Duration) (*Frame, error)
	Close() error
}

// queueDepth bounds how many unread inbound frames a backend buffers before
// it starts dropping. The driver issues at most one outstanding request plus
// a short block-mode burst, so a small queue is plenty.
const queueDepth = 64
