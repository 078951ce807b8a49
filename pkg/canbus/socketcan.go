package canbus

import (
	"fmt"
	"time"

	"github.com/brutella/can"
)

// SocketCAN is a Transport backed by a Linux SocketCAN interface.
type SocketCAN struct {
	bus    *can.Bus
	rxID   uint32
	frames chan Frame
}

// NewSocketCAN opens the named SocketCAN interface (e.g. "can0") and starts
// a background listener that buffers frames addressed to rxID.
func NewSocketCAN(iface string, rxID uint32) (*SocketCAN, error) {
	bus, err := can.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, fmt.Errorf("could not open CAN interface %s: %w", iface, err)
	}

	s := &SocketCAN{
		bus:    bus,
		rxID:   rxID,
		frames: make(chan Frame, queueDepth),
	}
	bus.SubscribeFunc(s.handle)
	go bus.ConnectAndPublish()
	return s, nil
}

// idMask strips the EFF/RTR/ERR flag bits from a SocketCAN identifier.
const idMask = 0x1FFFFFFF

func (s *SocketCAN) handle(frm can.Frame) {
	if frm.ID&idMask != s.rxID {
		return
	}
	f := Frame{ID: s.rxID}
	copy(f.Data[:], frm.Data[:])
	select {
	case s.frames <- f:
	default:
		// Queue full. Stale replies are retransmission fodder anyway.
	}
}

func (s *SocketCAN) Send(frame Frame) error {
	frm := can.Frame{ID: frame.ID, Length: 8}
	copy(frm.Data[:], frame.Data[:])
	return s.bus.Publish(frm)
}

func (s *SocketCAN) Receive(timeout time.Duration) (*Frame, error) {
	select {
	case f := <-s.frames:
		return &f, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (s *SocketCAN) Close() error {
	return s.bus.Disconnect()
}
