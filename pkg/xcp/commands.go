// Package xcp implements the master side of the XCP flash programming
// command set over classic 8-byte CAN frames: connecting to a slave,
// erasing a memory range, streaming a firmware image in block mode and
// resetting the device.
package xcp

import "encoding/binary"

type Command uint8

const (
	CmdConnect         Command = 0xFF
	CmdDisconnect      Command = 0xFE
	CmdGetCommModeInfo Command = 0xFB
	CmdGetID           Command = 0xFA
	CmdSetMTA          Command = 0xF6
	CmdUpload          Command = 0xF5
	CmdProgramStart    Command = 0xD2
	CmdProgramClear    Command = 0xD1
	CmdProgram         Command = 0xD0
	CmdProgramReset    Command = 0xCF
	CmdProgramNext     Command = 0xCA
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdDisconnect:
		return "DISCONNECT"
	case CmdGetCommModeInfo:
		return "GET_COMM_MODE_INFO"
	case CmdGetID:
		return "GET_ID"
	case CmdSetMTA:
		return "SET_MTA"
	case CmdUpload:
		return "UPLOAD"
	case CmdProgramStart:
		return "PROGRAM_START"
	case CmdProgramClear:
		return "PROGRAM_CLEAR"
	case CmdProgram:
		return "PROGRAM"
	case CmdProgramReset:
		return "PROGRAM_RESET"
	case CmdProgramNext:
		return "PROGRAM_NEXT"
	}
	return "UNKNOWN"
}

// Response packet identifiers, byte 0 of every slave reply.
const (
	pidSuccess = 0xFF
	pidError   = 0xFE
)

// MaxBlockBytes is the most payload bytes a single PROGRAM/PROGRAM_NEXT
// frame can carry: 8 frame bytes minus the packet identifier and the size
// field.
const MaxBlockBytes = 6

// encodeBare encodes a command that carries no arguments (DISCONNECT,
// PROGRAM_START, PROGRAM_RESET, GET_COMM_MODE_INFO).
func encodeBare(cmd Command) [8]byte {
	var d [8]byte
	d[0] = byte(cmd)
	return d
}

func encodeConnect(mode byte) [8]byte {
	var d [8]byte
	d[0] = byte(CmdConnect)
	d[1] = mode
	return d
}

func encodeSetMTA(addrExt byte, addr uint32) [8]byte {
	var d [8]byte
	d[0] = byte(CmdSetMTA)
	d[3] = addrExt
	binary.BigEndian.PutUint32(d[4:], addr)
	return d
}

func encodeProgramClear(length uint32) [8]byte {
	var d [8]byte
	d[0] = byte(CmdProgramClear)
	binary.BigEndian.PutUint32(d[4:], length)
	return d
}

// encodeBlock encodes a PROGRAM or PROGRAM_NEXT frame. size declares how
// many bytes of the logical unit are still outstanding (including payload),
// while payload itself carries at most MaxBlockBytes actual bytes.
func encodeBlock(cmd Command, size byte, payload []byte) [8]byte {
	var d [8]byte
	d[0] = byte(cmd)
	d[1] = size
	copy(d[2:], payload)
	return d
}

func encodeGetID(idType byte) [8]byte {
	var d [8]byte
	d[0] = byte(CmdGetID)
	d[1] = idType
	return d
}

func encodeUpload(n byte) [8]byte {
	var d [8]byte
	d[0] = byte(CmdUpload)
	d[1] = n
	return d
}

// ConnectInfo holds the session parameters negotiated by the CONNECT
// response.
type ConnectInfo struct {
	// Resources advertises which protocol resources the slave implements.
	Resources byte
	// CommModeBasic carries byte order and address granularity flags.
	CommModeBasic byte
	// MaxCTO is the maximum command transfer object length in bytes.
	MaxCTO byte
	// MaxDTO is the maximum data transfer object length in bytes.
	MaxDTO uint16
}

const (
	// resourceProgramming is set in ConnectInfo.Resources when the slave
	// supports flash programming.
	resourceProgramming = 0x10
	// granularityMask covers the CommModeBasic address granularity field;
	// nonzero means the slave addresses memory in units larger than a byte.
	granularityMask = 0x06
)

func decodeConnect(d [8]byte) ConnectInfo {
	return ConnectInfo{
		Resources:     d[1],
		CommModeBasic: d[2],
		MaxCTO:        d[3],
		MaxDTO:        binary.BigEndian.Uint16(d[4:6]),
	}
}

// ProgramLimits holds the transfer limits negotiated by the PROGRAM_START
// response. They govern every subsequent sizing decision of the block
// scheduler.
type ProgramLimits struct {
	// BlockBytes is how many payload bytes fit in one PROGRAM/PROGRAM_NEXT
	// frame: MAX_CTO_PGM minus the two header bytes.
	BlockBytes int
	// UnitFrames is how many consecutive block frames the slave accepts
	// before a reply must be awaited (MAX_BS_PGM).
	UnitFrames int
}

func decodeProgramStart(d [8]byte) ProgramLimits {
	bb := int(d[3]) - 2
	if bb > MaxBlockBytes {
		bb = MaxBlockBytes
	}
	return ProgramLimits{
		BlockBytes: bb,
		UnitFrames: int(d[4]),
	}
}

// CommModeInfo holds the optional communication parameters reported by
// GET_COMM_MODE_INFO.
type CommModeInfo struct {
	CommModeOptional byte
	MaxBS            byte
	MinST            byte
	QueueSize        byte
	DriverVersion    byte
}

func decodeCommModeInfo(d [8]byte) CommModeInfo {
	return CommModeInfo{
		CommModeOptional: d[2],
		MaxBS:            d[4],
		MinST:            d[5],
		QueueSize:        d[6],
		DriverVersion:    d[7],
	}
}
