package xcp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xcptools/xcpflash/pkg/canbus"
)

const (
	testTxID = 0x701
	testRxID = 0x702
)

// fakeBus scripts a slave for driver tests. Every Send is recorded and
// handed to respond; a non-nil reply is queued for Receive. Receive never
// blocks, so a missing reply behaves like an expired timeout.
type fakeBus struct {
	sent    []canbus.Frame
	queue   []canbus.Frame
	respond func(f canbus.Frame) *canbus.Frame
}

func (b *fakeBus) Send(f canbus.Frame) error {
	b.sent = append(b.sent, f)
	if b.respond != nil {
		if r := b.respond(f); r != nil {
			b.queue = append(b.queue, *r)
		}
	}
	return nil
}

func (b *fakeBus) Receive(timeout time.Duration) (*canbus.Frame, error) {
	if len(b.queue) == 0 {
		return nil, nil
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return &f, nil
}

func (b *fakeBus) Close() error { return nil }

func reply(data ...byte) *canbus.Frame {
	f := &canbus.Frame{ID: testRxID}
	copy(f.Data[:], data)
	return f
}

func newTestSession(bus canbus.Transport) *Session {
	return NewSession(bus, Config{
		TXID:    testTxID,
		RXID:    testRxID,
		Timeout: time.Millisecond,
	})
}

func TestExchangeTimeoutAfterFiveSends(t *testing.T) {
	bus := &fakeBus{}
	s := newTestSession(bus)

	_, err := s.exchange(CmdConnect, encodeConnect(0))
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("want TimeoutError, got %v", err)
	}
	if te.Attempts != 5 {
		t.Errorf("want 5 attempts, got %d", te.Attempts)
	}
	if len(bus.sent) != 5 {
		t.Errorf("want exactly 5 sends, got %d", len(bus.sent))
	}
}

func TestExchangeDeviceErrorNotRetried(t *testing.T) {
	bus := &fakeBus{
		respond: func(f canbus.Frame) *canbus.Frame {
			return reply(pidError, ErrAccessLocked)
		},
	}
	s := newTestSession(bus)

	_, err := s.exchange(CmdProgramClear, encodeProgramClear(64))
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("want DeviceError, got %v", err)
	}
	if de.Code != ErrAccessLocked {
		t.Errorf("want code 0x%02x, got 0x%02x", ErrAccessLocked, de.Code)
	}
	if len(bus.sent) != 1 {
		t.Errorf("errors must not be retransmitted, got %d sends", len(bus.sent))
	}
}

func TestExchangeUnknownDiscriminator(t *testing.T) {
	bus := &fakeBus{
		respond: func(f canbus.Frame) *canbus.Frame {
			return reply(0x42)
		},
	}
	s := newTestSession(bus)

	_, err := s.exchange(CmdConnect, encodeConnect(0))
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProtocolError, got %v", err)
	}
}

func TestExchangeResendsOnUnrelatedTraffic(t *testing.T) {
	calls := 0
	bus := &fakeBus{}
	bus.respond = func(f canbus.Frame) *canbus.Frame {
		calls++
		if calls == 1 {
			// Unrelated frame from some other node.
			other := reply(pidSuccess)
			other.ID = 0x123
			return other
		}
		return reply(pidSuccess)
	}
	s := newTestSession(bus)

	if _, err := s.exchange(CmdConnect, encodeConnect(0)); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if len(bus.sent) != 2 {
		t.Errorf("want a single resend after unrelated traffic, got %d sends", len(bus.sent))
	}
}

func TestConnectCapabilityChecks(t *testing.T) {
	for _, tc := range []struct {
		desc      string
		resources byte
		commMode  byte
		wantErr   string
	}{
		{"no programming resource", 0x01, 0x00, "flash programming not supported"},
		{"word granularity", 0x10, 0x02, "address granularity"},
		{"dword granularity", 0x10, 0x04, "address granularity"},
		{"ok", 0x10, 0x00, ""},
	} {
		bus := &fakeBus{
			respond: func(f canbus.Frame) *canbus.Frame {
				return reply(pidSuccess, tc.resources, tc.commMode, 8, 0x00, 0x08)
			},
		}
		s := newTestSession(bus)
		err := s.Connect()
		if tc.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tc.desc, err)
			}
			if s.connected == nil || s.connected.MaxDTO != 8 {
				t.Errorf("%s: connect info not stored", tc.desc)
			}
			continue
		}
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("%s: want ProtocolError, got %v", tc.desc, err)
			continue
		}
		if !strings.Contains(pe.Reason, tc.wantErr) {
			t.Errorf("%s: error %q does not mention %q", tc.desc, pe.Reason, tc.wantErr)
		}
	}
}

func TestProgramBeforeNegotiation(t *testing.T) {
	bus := &fakeBus{}
	s := newTestSession(bus)

	err := s.Program([]byte{1, 2, 3})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProtocolError, got %v", err)
	}
	if len(bus.sent) != 0 {
		t.Errorf("no frame may be sent before limits are negotiated, got %d", len(bus.sent))
	}
}

func TestFlashAlwaysDisconnects(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		failOn  Command
		wantErr bool
	}{
		{"connect fails", CmdConnect, true},
		{"erase fails", CmdProgramClear, true},
		{"program fails", CmdProgram, true},
		{"reset fails", CmdProgramReset, true},
		{"all good", 0, false},
	} {
		slave := newFakeSlave(8, 2)
		slave.failOn = tc.failOn
		bus := &fakeBus{respond: slave.respond}
		s := newTestSession(bus)

		err := s.Flash(0x8000, []byte{1, 2, 3, 4, 5})
		if tc.wantErr != (err != nil) {
			t.Errorf("%s: err = %v, want failure=%v", tc.desc, err, tc.wantErr)
		}
		if slave.disconnects != 1 {
			t.Errorf("%s: disconnect sent %d times, want exactly 1", tc.desc, slave.disconnects)
		}
	}
}

func TestFlashCapabilityFailureStillDisconnects(t *testing.T) {
	slave := newFakeSlave(8, 2)
	slave.resources = 0x01 // no programming resource
	bus := &fakeBus{respond: slave.respond}
	s := newTestSession(bus)

	err := s.Flash(0x8000, []byte{1, 2, 3})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProtocolError, got %v", err)
	}
	if !strings.Contains(pe.Reason, "flash programming not supported") {
		t.Errorf("unexpected reason %q", pe.Reason)
	}
	if slave.disconnects != 1 {
		t.Errorf("disconnect sent %d times, want exactly 1", slave.disconnects)
	}
	if len(slave.written) != 0 {
		t.Error("no block transfer may happen after a failed connect")
	}
}

func TestFlashDisconnectFailureDoesNotMaskOriginal(t *testing.T) {
	slave := newFakeSlave(8, 2)
	slave.failOn = CmdConnect
	slave.failOnDisconnect = true
	bus := &fakeBus{respond: slave.respond}
	s := newTestSession(bus)

	err := s.Flash(0x8000, []byte{1})
	if err == nil {
		t.Fatal("want error")
	}
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("want DeviceError in aggregate, got %v", err)
	}
	// Both the connect failure and the disconnect failure must surface.
	if got := err.Error(); !strings.Contains(got, "CONNECT") || !strings.Contains(got, "DISCONNECT") {
		t.Errorf("aggregate error missing a stage: %q", got)
	}
}

func TestIdentifier(t *testing.T) {
	slave := newFakeSlave(8, 2)
	slave.identifier = "XCPsim-ECU-rev2"
	bus := &fakeBus{respond: slave.respond}
	s := newTestSession(bus)

	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	id, err := s.Identifier()
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	if id != slave.identifier {
		t.Errorf("got %q, want %q", id, slave.identifier)
	}
	for _, n := range slave.uploadSizes {
		if n > 7 {
			t.Errorf("UPLOAD requested %d bytes, more than MAX_CTO-1", n)
		}
	}
}

func TestIdentifierRequiresConnect(t *testing.T) {
	s := newTestSession(&fakeBus{})
	if _, err := s.Identifier(); err == nil {
		t.Fatal("want error before CONNECT")
	}
}
