package xcp

import "fmt"

// Slave error codes, byte 1 of an error packet.
const (
	ErrCmdSynch        = 0x00
	ErrCmdBusy         = 0x10
	ErrDAQActive       = 0x11
	ErrPgmActive       = 0x12
	ErrCmdUnknown      = 0x20
	ErrCmdSyntax       = 0x21
	ErrOutOfRange      = 0x22
	ErrWriteProtected  = 0x23
	ErrAccessDenied    = 0x24
	ErrAccessLocked    = 0x25
	ErrPageNotValid    = 0x26
	ErrModeNotValid    = 0x27
	ErrSegmentNotValid = 0x28
	ErrSequence        = 0x29
	ErrDAQConfig       = 0x2A
	ErrMemoryOverflow  = 0x30
	ErrGeneric         = 0x31
	ErrVerify          = 0x32
)

var errorMessages = map[byte]string{
	ErrCmdSynch:        "Command processor synchronization.",
	ErrCmdBusy:         "Command was not executed.",
	ErrDAQActive:       "Command rejected because DAQ is running.",
	ErrPgmActive:       "Command rejected because PGM is running.",
	ErrCmdUnknown:      "Unknown command or not implemented optional command.",
	ErrCmdSyntax:       "Command syntax invalid.",
	ErrOutOfRange:      "Command syntax valid but command parameter(s) out of range.",
	ErrWriteProtected:  "The memory location is write protected.",
	ErrAccessDenied:    "The memory location is not accessible.",
	ErrAccessLocked:    "Access denied, Seed & Key are required.",
	ErrPageNotValid:    "Selected page is not available.",
	ErrModeNotValid:    "Selected page mode is not available.",
	ErrSegmentNotValid: "Selected segment is not valid.",
	ErrSequence:        "Sequence error.",
	ErrDAQConfig:       "DAQ configuration is not valid.",
	ErrMemoryOverflow:  "Memory overflow error.",
	ErrGeneric:         "Generic error.",
	ErrVerify:          "The slave internal program verify routine detects an error.",
}

// ErrorMessage returns the human-readable cause for a slave error code.
// Used for presentation only.
func ErrorMessage(code byte) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error code 0x%02x", code)
}

// DeviceError is returned when the slave answers a command with an error
// packet. The code is one of the Err* constants.
type DeviceError struct {
	Command Command
	Code    byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: device reported 0x%02x: %s", e.Command, e.Code, ErrorMessage(e.Code))
}

// TimeoutError is returned when a command exchange exhausts its send
// attempts without a matching reply.
type TimeoutError struct {
	Command  Command
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply after %d attempts", e.Command, e.Attempts)
}

// ProtocolError is returned for malformed or unexpected reply content, and
// for failed capability checks at connect time.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return e.Reason
}
