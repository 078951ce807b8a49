package xcp

import (
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	for code, want := range map[byte]string{
		ErrAccessLocked:   "Seed & Key",
		ErrWriteProtected: "write protected",
		ErrMemoryOverflow: "overflow",
		ErrVerify:         "verify",
	} {
		if got := ErrorMessage(code); !strings.Contains(got, want) {
			t.Errorf("0x%02x: %q does not mention %q", code, got, want)
		}
	}
	if len(errorMessages) != 18 {
		t.Errorf("error table has %d entries, want 18", len(errorMessages))
	}
}

func TestErrorMessageUnknownCode(t *testing.T) {
	if got := ErrorMessage(0xEE); !strings.Contains(got, "0xee") {
		t.Errorf("unknown code message %q should carry the code", got)
	}
}

func TestDeviceErrorString(t *testing.T) {
	err := &DeviceError{Command: CmdProgramClear, Code: ErrAccessLocked}
	got := err.Error()
	if !strings.Contains(got, "PROGRAM_CLEAR") || !strings.Contains(got, "0x25") {
		t.Errorf("unexpected message %q", got)
	}
}

func TestTimeoutErrorString(t *testing.T) {
	err := &TimeoutError{Command: CmdConnect, Attempts: 5}
	if got := err.Error(); !strings.Contains(got, "CONNECT") || !strings.Contains(got, "5") {
		t.Errorf("unexpected message %q", got)
	}
}
