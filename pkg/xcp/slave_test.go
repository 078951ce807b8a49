package xcp

import (
	"encoding/binary"

	"github.com/xcptools/xcpflash/pkg/canbus"
)

// fakeSlave emulates the device side of the programming sequence for use
// with fakeBus. It reassembles programmed bytes, tracks per-frame payload
// sizes and acknowledges only the final transfer of each logical unit,
// like a block-mode slave would.
type fakeSlave struct {
	maxCTOPgm byte
	maxBS     byte
	resources byte
	commMode  byte

	identifier       string
	failOn           Command
	failOnDisconnect bool

	disconnects     int
	mta             uint32
	clearedLen      uint32
	written         []byte
	payloadSizes    []int
	declaredSizes   []int
	uploadSizes     []int
	uploadPos       int
	resetSeen       bool
	wroteAfterReset bool
}

func newFakeSlave(maxCTOPgm, maxBS byte) *fakeSlave {
	return &fakeSlave{maxCTOPgm: maxCTOPgm, maxBS: maxBS, resources: 0x10}
}

func (d *fakeSlave) blockBytes() int {
	bb := int(d.maxCTOPgm) - 2
	if bb > MaxBlockBytes {
		bb = MaxBlockBytes
	}
	return bb
}

func (d *fakeSlave) respond(f canbus.Frame) *canbus.Frame {
	cmd := Command(f.Data[0])
	if d.failOn != 0 && cmd == d.failOn {
		return reply(pidError, ErrGeneric)
	}
	switch cmd {
	case CmdConnect:
		return reply(pidSuccess, d.resources, d.commMode, 8, 0x00, 0x08)
	case CmdDisconnect:
		d.disconnects++
		if d.failOnDisconnect {
			return reply(pidError, ErrCmdBusy)
		}
		return reply(pidSuccess)
	case CmdProgramStart:
		return reply(pidSuccess, 0, 0, d.maxCTOPgm, d.maxBS)
	case CmdSetMTA:
		d.mta = binary.BigEndian.Uint32(f.Data[4:8])
		return reply(pidSuccess)
	case CmdProgramClear:
		d.clearedLen = binary.BigEndian.Uint32(f.Data[4:8])
		return reply(pidSuccess)
	case CmdProgram, CmdProgramNext:
		size := int(f.Data[1])
		n := size
		if n > d.blockBytes() {
			n = d.blockBytes()
		}
		d.payloadSizes = append(d.payloadSizes, n)
		if cmd == CmdProgram {
			d.declaredSizes = append(d.declaredSizes, size)
		}
		d.written = append(d.written, f.Data[2:2+n]...)
		if d.resetSeen {
			d.wroteAfterReset = true
		}
		if size <= d.blockBytes() {
			return reply(pidSuccess)
		}
		// Interior transfer of a unit: no acknowledgement yet.
		return nil
	case CmdProgramReset:
		d.resetSeen = true
		return reply(pidSuccess)
	case CmdGetID:
		var r [4]byte
		binary.BigEndian.PutUint32(r[:], uint32(len(d.identifier)))
		return reply(pidSuccess, 0, 0, 0, r[0], r[1], r[2], r[3])
	case CmdUpload:
		n := int(f.Data[1])
		d.uploadSizes = append(d.uploadSizes, n)
		chunk := []byte(d.identifier)[d.uploadPos : d.uploadPos+n]
		d.uploadPos += n
		return reply(append([]byte{pidSuccess}, chunk...)...)
	case CmdGetCommModeInfo:
		return reply(pidSuccess, 0, 0x01, 0, d.maxBS, 0, 1, 0x19)
	}
	return reply(pidError, ErrCmdUnknown)
}
