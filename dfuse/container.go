package dfuse

import (
	"encoding/binary"

	"github.com/o-murphy/go-dfu/dfufile"
)

const (
	filePrefixLength   = 11
	targetPrefixLength = 274
	elementHeaderLength = 8
	targetNameLength    = 255
)

// FilePrefix is the 11-byte header at the start of a DfuSe container,
// identifying it as distinct from a plain DFU file (§4.7).
type FilePrefix struct {
	ImageSize uint32
	Targets   uint8
}

// Target is one flashable region set within a container: zero or more
// Elements, each an absolute address plus a data blob.
type Target struct {
	AltSetting uint8
	Named      bool
	Name       string
	Elements   []Element
}

// Element is a single contiguous write within a Target.
type Element struct {
	Address uint32
	Data    []byte
}

// ParseContainer decodes a complete DfuSe container (the firmware payload
// after the DFU prefix/suffix have already been stripped by dfufile.Load).
func ParseContainer(b []byte) (FilePrefix, []Target, error) {
	if len(b) < filePrefixLength {
		return FilePrefix{}, nil, dfufile.DataError("DfuSe container too short for file prefix")
	}
	if string(b[0:5]) != "DfuSe" {
		return FilePrefix{}, nil, dfufile.DataError("missing DfuSe container signature")
	}
	if b[5] != 0x01 {
		return FilePrefix{}, nil, dfufile.DataError("unsupported DfuSe container version %d", b[5])
	}
	prefix := FilePrefix{
		ImageSize: binary.LittleEndian.Uint32(b[6:10]),
		Targets:   b[10],
	}

	rest := b[filePrefixLength:]
	targets := make([]Target, 0, prefix.Targets)

	for i := 0; i < int(prefix.Targets); i++ {
		if len(rest) < targetPrefixLength {
			return FilePrefix{}, nil, dfufile.DataError("DfuSe container truncated at target %d prefix", i)
		}
		if string(rest[0:6]) != "Target" {
			return FilePrefix{}, nil, dfufile.DataError("missing Target signature at target %d", i)
		}
		altSetting := rest[6]
		named := binary.LittleEndian.Uint32(rest[7:11]) != 0
		name := cStringTrim(rest[11 : 11+targetNameLength])
		targetSize := binary.LittleEndian.Uint32(rest[266:270])
		nbElements := binary.LittleEndian.Uint32(rest[270:274])

		rest = rest[targetPrefixLength:]
		if uint32(len(rest)) < targetSize {
			return FilePrefix{}, nil, dfufile.DataError("DfuSe container truncated within target %d body", i)
		}
		body := rest[:targetSize]
		rest = rest[targetSize:]

		elements := make([]Element, 0, nbElements)
		for e := 0; e < int(nbElements); e++ {
			if len(body) < elementHeaderLength {
				return FilePrefix{}, nil, dfufile.DataError("DfuSe target %d truncated at element %d header", i, e)
			}
			addr := binary.LittleEndian.Uint32(body[0:4])
			size := binary.LittleEndian.Uint32(body[4:8])
			body = body[elementHeaderLength:]
			if uint32(len(body)) < size {
				return FilePrefix{}, nil, dfufile.DataError("DfuSe target %d truncated at element %d payload", i, e)
			}
			elements = append(elements, Element{Address: addr, Data: body[:size]})
			body = body[size:]
		}

		targets = append(targets, Target{
			AltSetting: altSetting,
			Named:      named,
			Name:       name,
			Elements:   elements,
		})
	}

	return prefix, targets, nil
}

// EncodeContainer serializes targets into a DfuSe container body (the
// caller attaches the DFU prefix/suffix separately via dfufile.Dump).
func EncodeContainer(targets []Target) []byte {
	var body []byte
	for _, t := range targets {
		tb := make([]byte, 0, targetPrefixLength)
		tb = append(tb, []byte("Target")...)
		tb = append(tb, t.AltSetting)
		named := uint32(0)
		if t.Named {
			named = 1
		}
		namedBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(namedBuf, named)
		tb = append(tb, namedBuf...)

		name := make([]byte, targetNameLength)
		copy(name, t.Name)
		tb = append(tb, name...)

		var elementBytes []byte
		for _, e := range t.Elements {
			hdr := make([]byte, elementHeaderLength)
			binary.LittleEndian.PutUint32(hdr[0:4], e.Address)
			binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Data)))
			elementBytes = append(elementBytes, hdr...)
			elementBytes = append(elementBytes, e.Data...)
		}

		sizeBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(sizeBuf, uint32(len(elementBytes)))
		tb = append(tb, sizeBuf...)

		nbBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(nbBuf, uint32(len(t.Elements)))
		tb = append(tb, nbBuf...)

		tb = append(tb, elementBytes...)
		body = append(body, tb...)
	}

	imageSize := uint32(len(body))
	out := make([]byte, 0, filePrefixLength+len(body))
	out = append(out, []byte("DfuSe")...)
	out = append(out, 0x01)
	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, imageSize)
	out = append(out, sizeBuf...)
	out = append(out, byte(len(targets)))
	out = append(out, body...)
	return out
}

func cStringTrim(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
