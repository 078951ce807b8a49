package xcp

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/xcptools/xcpflash/pkg/canbus"
)

const (
	// DefaultTimeout is the per-attempt reply timeout. Flash erasure can
	// stall the slave's command processor for a long time, so this is
	// deliberately generous.
	DefaultTimeout = 30 * time.Second
	// DefaultAttempts is the total number of sends per exchange: the
	// initial transmission plus four retransmissions.
	DefaultAttempts = 5
)

// Config carries the session identifiers and tunables.
type Config struct {
	// TXID is the arbitration identifier for outbound command frames.
	TXID uint32
	// RXID is the arbitration identifier the slave replies on.
	RXID uint32
	// Mode is the connection mode requested in CONNECT byte 1.
	Mode byte
	// Timeout is the per-attempt reply timeout (DefaultTimeout if zero).
	Timeout time.Duration
	// Attempts is the total sends per exchange (DefaultAttempts if zero).
	Attempts int
	// Progress, if set, is called after each programmed unit with the
	// cumulative byte count and the image total.
	Progress func(sent, total int)
}

// Session drives one connect, erase, program, reset, disconnect sequence
// against a single slave. The transfer limits advertised by the device are
// learned from the CONNECT and PROGRAM_START responses and are set exactly
// once per session; a Session must not be reused after Flash returns.
type Session struct {
	bus canbus.Transport
	cfg Config

	// Negotiated session parameters. connected is written only by
	// Connect, limits only by Clear's PROGRAM_START handler.
	connected *ConnectInfo
	limits    *ProgramLimits
}

func NewSession(bus canbus.Transport, cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	return &Session{bus: bus, cfg: cfg}
}

// send transmits a frame without waiting for a reply. Used for interior
// block-mode frames only.
func (s *Session) send(data [8]byte) error {
	return s.bus.Send(canbus.Frame{ID: s.cfg.TXID, Data: data})
}

// exchange sends a command frame and waits for the matching reply,
// retransmitting the original frame on silence or unrelated traffic. A
// reply tagged as an error packet fails immediately and is never retried.
func (s *Session) exchange(cmd Command, data [8]byte) ([8]byte, error) {
	frame := canbus.Frame{ID: s.cfg.TXID, Data: data}
	if err := s.bus.Send(frame); err != nil {
		return [8]byte{}, fmt.Errorf("send %s: %w", cmd, err)
	}

	attempts := 1
	for {
		reply, err := s.bus.Receive(s.cfg.Timeout)
		if err != nil {
			return [8]byte{}, fmt.Errorf("receive %s: %w", cmd, err)
		}
		if reply != nil && reply.ID == s.cfg.RXID {
			switch reply.Data[0] {
			case pidSuccess:
				return reply.Data, nil
			case pidError:
				return [8]byte{}, &DeviceError{Command: cmd, Code: reply.Data[1]}
			default:
				return [8]byte{}, &ProtocolError{
					Reason: fmt.Sprintf("%s: unexpected packet identifier 0x%02x", cmd, reply.Data[0]),
				}
			}
		}

		// Either the attempt timed out or an unrelated frame surfaced.
		// The commands are idempotent, so blindly resend.
		if attempts >= s.cfg.Attempts {
			return [8]byte{}, &TimeoutError{Command: cmd, Attempts: attempts}
		}
		if err := s.bus.Send(frame); err != nil {
			return [8]byte{}, fmt.Errorf("resend %s: %w", cmd, err)
		}
		attempts++
	}
}

// Connect opens the session and verifies the slave can be reprogrammed over
// it: the programming resource must be advertised and the slave must
// address memory with byte granularity.
func (s *Session) Connect() error {
	reply, err := s.exchange(CmdConnect, encodeConnect(s.cfg.Mode))
	if err != nil {
		return err
	}
	info := decodeConnect(reply)
	if info.Resources&resourceProgramming == 0 {
		return &ProtocolError{Reason: "flash programming not supported by the connected device"}
	}
	if info.CommModeBasic&granularityMask != 0 {
		return &ProtocolError{Reason: "address granularity larger than one byte not supported"}
	}
	s.connected = &info
	return nil
}

// Clear prepares the slave for programming and erases length bytes starting
// at startAddr. The PROGRAM_START response fixes the block transfer limits
// for the rest of the session.
func (s *Session) Clear(startAddr, length uint32) error {
	reply, err := s.exchange(CmdProgramStart, encodeBare(CmdProgramStart))
	if err != nil {
		return err
	}
	limits := decodeProgramStart(reply)
	if limits.BlockBytes <= 0 || limits.UnitFrames <= 0 {
		return &ProtocolError{
			Reason: fmt.Sprintf("unusable programming limits (%d bytes/frame, %d frames/unit)",
				limits.BlockBytes, limits.UnitFrames),
		}
	}
	s.limits = &limits

	if _, err := s.exchange(CmdSetMTA, encodeSetMTA(0, startAddr)); err != nil {
		return err
	}
	if _, err := s.exchange(CmdProgramClear, encodeProgramClear(length)); err != nil {
		return err
	}
	return nil
}

// Disconnect closes the session. It is issued unconditionally during
// cleanup so the slave is never left with a half-open session.
func (s *Session) Disconnect() error {
	_, err := s.exchange(CmdDisconnect, encodeBare(CmdDisconnect))
	return err
}

// CommModeInfo queries the slave's optional communication parameters.
func (s *Session) CommModeInfo() (*CommModeInfo, error) {
	reply, err := s.exchange(CmdGetCommModeInfo, encodeBare(CmdGetCommModeInfo))
	if err != nil {
		return nil, err
	}
	info := decodeCommModeInfo(reply)
	return &info, nil
}

// Identifier reads the slave's station identifier. GET_ID reports the
// length and points the MTA at the identifier, which is then read back with
// single-frame uploads of at most MAX_CTO-1 bytes.
func (s *Session) Identifier() (string, error) {
	if s.connected == nil {
		return "", &ProtocolError{Reason: "identifier requested before CONNECT"}
	}
	reply, err := s.exchange(CmdGetID, encodeGetID(0))
	if err != nil {
		return "", err
	}
	length := int(binary.BigEndian.Uint32(reply[4:8]))

	chunk := int(s.connected.MaxCTO) - 1
	if chunk > 7 {
		chunk = 7
	}
	if chunk <= 0 {
		return "", &ProtocolError{Reason: "MAX_CTO too small for UPLOAD"}
	}

	var id []byte
	for len(id) < length {
		n := length - len(id)
		if n > chunk {
			n = chunk
		}
		part, err := s.exchange(CmdUpload, encodeUpload(byte(n)))
		if err != nil {
			return "", err
		}
		id = append(id, part[1:1+n]...)
	}
	return string(id), nil
}

// Flash runs the full connect, erase, program sequence against the slave
// and always disconnects afterwards, even when an earlier stage failed.
// A failure during disconnect is reported alongside the original failure
// without masking it. All failures are terminal for this operation; none
// are retried above the single-exchange level.
func (s *Session) Flash(startAddr uint32, data []byte) error {
	var errs error

	if err := s.run(startAddr, data); err != nil {
		slog.Error("Flashing failed", "err", err)
		errs = multierror.Append(errs, err)
	}

	slog.Info("Disconnecting...")
	if err := s.Disconnect(); err != nil {
		slog.Error("Disconnect failed", "err", err)
		errs = multierror.Append(errs, err)
	}
	return errs
}

func (s *Session) run(startAddr uint32, data []byte) error {
	slog.Info("Connecting...", "txid", fmt.Sprintf("0x%x", s.cfg.TXID), "rxid", fmt.Sprintf("0x%x", s.cfg.RXID))
	if err := s.Connect(); err != nil {
		return err
	}
	slog.Info("Erasing device (this may take several minutes)...", "addr", fmt.Sprintf("0x%08x", startAddr), "bytes", len(data))
	if err := s.Clear(startAddr, uint32(len(data))); err != nil {
		return err
	}
	slog.Info("Flashing new firmware...")
	if err := s.Program(data); err != nil {
		return err
	}
	return nil
}
