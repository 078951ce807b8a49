package firmware

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// ParseSRecords reads a Motorola S-record stream. S1/S2/S3 data records are
// collected into the image; header and termination records are checked and
// otherwise ignored.
func ParseSRecords(r io.Reader) (*Image, error) {
	var segs []segment

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) < 4 || line[0] != 'S' {
			return nil, fmt.Errorf("line %d: not an S-record", lineno)
		}

		typ := line[1]
		raw, err := hex.DecodeString(line[2:])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad hex: %w", lineno, err)
		}
		if len(raw) < 2 || int(raw[0]) != len(raw)-1 {
			return nil, fmt.Errorf("line %d: length mismatch", lineno)
		}

		var sum byte
		for _, b := range raw[:len(raw)-1] {
			sum += b
		}
		if ^sum != raw[len(raw)-1] {
			return nil, fmt.Errorf("line %d: checksum mismatch", lineno)
		}

		// Byte count covers address, data and checksum.
		body := raw[1 : len(raw)-1]
		var addrLen int
		switch typ {
		case '0', '5', '6':
			continue
		case '1', '9':
			addrLen = 2
		case '2', '8':
			addrLen = 3
		case '3', '7':
			addrLen = 4
		default:
			return nil, fmt.Errorf("line %d: unsupported record type S%c", lineno, typ)
		}
		if len(body) < addrLen {
			return nil, fmt.Errorf("line %d: record too short", lineno)
		}

		// S7/S8/S9 terminate the stream; their address is the entrypoint,
		// which the flash tool does not use.
		if typ == '7' || typ == '8' || typ == '9' {
			break
		}

		var addr uint32
		for _, b := range body[:addrLen] {
			addr = addr<<8 | uint32(b)
		}
		data := body[addrLen:]
		if len(data) == 0 {
			continue
		}
		segs = append(segs, segment{addr: addr, data: append([]byte(nil), data...)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return flatten(segs)
}
