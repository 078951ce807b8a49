package xcp

// Program transfers the firmware byte stream to the slave in logical units
// sized from the negotiated limits, then issues PROGRAM_RESET. It must not
// be called before Clear has processed the PROGRAM_START response.
//
// Each unit starts with a PROGRAM frame whose size field declares the
// unit's total length and continues with PROGRAM_NEXT frames carrying the
// decreasing remainder. Frames before the last one in a unit are sent
// without awaiting a reply, which the slave permits for up to UnitFrames
// consecutive transfers; only the unit's final frame is acknowledged.
func (s *Session) Program(data []byte) error {
	if s.limits == nil {
		return &ProtocolError{Reason: "programming limits not negotiated"}
	}
	lim := *s.limits

	// The size field is a single byte, so a unit can never declare more
	// than 255 outstanding bytes regardless of what UnitFrames would allow.
	unitBytes := lim.BlockBytes * lim.UnitFrames
	if unitBytes > 255 {
		unitBytes = 255
	}

	sent := 0
	for sent < len(data) {
		unit := unitBytes
		if unit > len(data)-sent {
			unit = len(data) - sent
		}
		if err := s.programUnit(data[sent:sent+unit], lim.BlockBytes); err != nil {
			return err
		}
		sent += unit
		s.reportProgress(sent, len(data))
	}
	s.reportProgress(len(data), len(data))

	_, err := s.exchange(CmdProgramReset, encodeBare(CmdProgramReset))
	return err
}

// programUnit transfers one logical unit of at most 255 bytes.
func (s *Session) programUnit(unit []byte, blockBytes int) error {
	cmd := CmdProgram
	remaining := len(unit)
	off := 0
	for remaining > 0 {
		n := blockBytes
		if n > remaining {
			n = remaining
		}
		frame := encodeBlock(cmd, byte(remaining), unit[off:off+n])
		if remaining > n {
			// More transfers follow within this unit.
			if err := s.send(frame); err != nil {
				return err
			}
		} else {
			if _, err := s.exchange(cmd, frame); err != nil {
				return err
			}
		}
		off += n
		remaining -= n
		cmd = CmdProgramNext
	}
	return nil
}

func (s *Session) reportProgress(sent, total int) {
	if s.cfg.Progress != nil {
		s.cfg.Progress(sent, total)
	}
}
