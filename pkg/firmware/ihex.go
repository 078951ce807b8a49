package firmware

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// ParseIntelHex reads an Intel HEX stream.
func ParseIntelHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("could not parse Intel HEX: %w", err)
	}

	var segs []segment
	for _, s := range mem.GetDataSegments() {
		segs = append(segs, segment{addr: s.Address, data: s.Data})
	}
	return flatten(segs)
}
