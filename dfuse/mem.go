// Package dfuse implements the ST DfuSe 1.1a extension on top of the dfu
// package: memory-layout parsing, the special erase/address/unprotect
// commands, and the DfuSe container file format.
package dfuse

import (
	"regexp"
	"strconv"

	"github.com/o-murphy/go-dfu/dfufile"
)

// Memory access bits decoded from a layout segment's type letter, per ST
// document UM0424 section 4.3.2.
const (
	Readable = 0x1
	Erasable = 0x2
	Writeable = 0x4
)

// MemSegment is one contiguous, uniformly-erasable region of device memory.
// The alt-setting string descriptor decodes to a slice of these rather than
// the linked list the format's originating tooling uses.
type MemSegment struct {
	Start    uint32
	End      uint32
	PageSize uint32
	MemType  uint8
}

func (s MemSegment) contains(address uint32) bool {
	return address >= s.Start && address <= s.End
}

// FindSegment returns the segment covering address, if any.
func FindSegment(segments []MemSegment, address uint32) (MemSegment, bool) {
	for _, s := range segments {
		if s.contains(address) {
			return s, true
		}
	}
	return MemSegment{}, false
}

var (
	nameRE    = regexp.MustCompile(`^@([^/]+)`)
	addressRE = regexp.MustCompile(`^/0x([0-9A-Fa-f]+)/`)
	sectorRE  = regexp.MustCompile(`^(\d+)\*(\d+)(\w)(\w)[,/]?`)
)

// ParseMemoryLayout decodes a DfuSe alt-setting name string of the form
// "@Internal Flash/0x08000000/4*016Kg,1*064Kg,7*128Kg" into a segment list
// and the human-readable interface name.
func ParseMemoryLayout(desc string) (name string, segments []MemSegment, err error) {
	m := nameRE.FindStringSubmatch(desc)
	if m == nil {
		return "", nil, dfufile.DataError("DfuSe layout string missing @name prefix: %q", desc)
	}
	name = m[1]
	rest := desc[len(m[0]):]

	sawAddress := false

	for {
		am := addressRE.FindStringSubmatch(rest)
		if am == nil {
			break
		}
		sawAddress = true
		address64, perr := strconv.ParseUint(am[1], 16, 32)
		if perr != nil {
			return "", nil, dfufile.DataError("DfuSe layout string has invalid address %q", am[1])
		}
		address := uint32(address64)
		rest = rest[len(am[0]):]

		for {
			sm := sectorRE.FindStringSubmatch(rest)
			if sm == nil {
				break
			}
			sectors, _ := strconv.Atoi(sm[1])
			size, _ := strconv.Atoi(sm[2])
			multiplier := sm[3][0]
			typeLetter := sm[4][0]
			rest = rest[len(sm[0]):]

			switch multiplier {
			case 'B':
				// bytes, no scaling
			case 'K':
				size *= 1024
			case 'M':
				size *= 1024 * 1024
			case 'a', 'b', 'c', 'd', 'e', 'f', 'g':
				if typeLetter == 0 {
					typeLetter = multiplier
				}
			}

			segSize := uint32(size)
			segments = append(segments, MemSegment{
				Start:    address,
				End:      address + uint32(sectors)*segSize - 1,
				PageSize: segSize,
				MemType:  typeLetter & 7,
			})

			address += uint32(sectors) * segSize
		}
	}

	if !sawAddress {
		return "", nil, dfufile.DataError("DfuSe layout string has no address sections: %q", desc)
	}

	return name, segments, nil
}
