// Package firmware loads vendor firmware files into a flat byte stream
// plus a load address, ready for transfer to a device.
//
// Supported formats, chosen by file extension: Motorola S-records
// (.s19/.s28/.s37/.srec/.mot), Intel HEX (.hex/.ihex) and raw binary
// (.bin, which needs an explicit base address). A trailing .xz extension
// is decompressed transparently.
package firmware

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ulikunitz/xz"
)

// Image is an ordered byte stream with a single load address. Gaps between
// the source file's data records are filled with 0xFF, the erased state of
// NOR flash.
type Image struct {
	LoadAddress uint32
	Data        []byte
}

// maxImageBytes caps the flattened image size so a stray address record
// cannot balloon the gap fill into gigabytes.
const maxImageBytes = 64 << 20

// Load reads the firmware file at path. base is only consulted for raw
// binary files, which carry no address information of their own.
func Load(path string, base uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	name := path
	if strings.HasSuffix(name, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not open xz stream: %w", err)
		}
		r = xr
		name = strings.TrimSuffix(name, ".xz")
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".s19", ".s28", ".s37", ".srec", ".mot":
		return ParseSRecords(r)
	case ".hex", ".ihex":
		return ParseIntelHex(r)
	case ".bin":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return &Image{LoadAddress: base, Data: data}, nil
	default:
		return nil, fmt.Errorf("unrecognized firmware format %q", filepath.Ext(name))
	}
}

// segment is a contiguous run of bytes at an absolute address.
type segment struct {
	addr uint32
	data []byte
}

// flatten merges segments into a single image starting at the lowest
// address, filling holes with 0xFF.
func flatten(segs []segment) (*Image, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("no data records found")
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].addr < segs[j].addr })

	lo := segs[0].addr
	hi := uint64(lo)
	for _, s := range segs {
		end := uint64(s.addr) + uint64(len(s.data))
		if end > uint64(^uint32(0))+1 {
			return nil, fmt.Errorf("data record past the 32-bit address space")
		}
		if end > hi {
			hi = end
		}
	}
	size := hi - uint64(lo)
	if size > maxImageBytes {
		return nil, fmt.Errorf("image spans %d bytes, refusing to flatten", size)
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	for _, s := range segs {
		copy(data[s.addr-lo:], s.data)
	}
	return &Image{LoadAddress: lo, Data: data}, nil
}
