package dfufile

import "encoding/binary"

const (
	SuffixLength = 16

	WildcardID = 0xffff
)

// SuffixReq and PrefixReq tell Load how strict to be about the presence of
// a suffix/prefix.
type SuffixReq int

const (
	SuffixNone  SuffixReq = iota // no suffix expected; reject if present
	SuffixNeeds                  // suffix is mandatory
	SuffixMaybe                  // suffix is optional
)

type PrefixReq int

const (
	PrefixNone PrefixReq = iota
	PrefixNeeds
	PrefixMaybe
)

// Suffix is the parsed 16-byte DFU suffix (§4.8).
type Suffix struct {
	BcdDevice uint16
	IDProduct uint16
	IDVendor  uint16
	BcdDFU    uint16
	CRC       uint32
}

// errNoSuffixSignature is returned by parseSuffix when the trailing bytes
// do not carry the "UFD" signature at all — as opposed to carrying it with
// a corrupt bLength or CRC, which is a hard error even under SuffixMaybe.
var errNoSuffixSignature = DataError("no DFU suffix signature present")

// hasSuffixSignature reports whether the signature bytes are in place,
// without validating bLength or CRC.
func hasSuffixSignature(all []byte) bool {
	if len(all) < SuffixLength {
		return false
	}
	suffix := all[len(all)-SuffixLength:]
	return suffix[8] == 'U' && suffix[9] == 'F' && suffix[10] == 'D'
}

// parseSuffix decodes the trailing 16 bytes of a firmware file and verifies
// the signature and CRC. all is the whole file; the CRC check covers every
// byte of it except the final 4.
func parseSuffix(all []byte) (Suffix, error) {
	if !hasSuffixSignature(all) {
		return Suffix{}, errNoSuffixSignature
	}
	suffix := all[len(all)-SuffixLength:]

	bLength := suffix[11]
	if bLength < SuffixLength {
		return Suffix{}, DataError("unsupported DFU suffix length %d", bLength)
	}
	if int(bLength) > len(all) {
		return Suffix{}, DataError("invalid DFU suffix length %d exceeds file size", bLength)
	}

	wantCRC := binary.LittleEndian.Uint32(suffix[12:16])
	gotCRC := CRC32(all[:len(all)-4])
	if wantCRC != gotCRC {
		return Suffix{}, DataError("DFU suffix CRC mismatch: file has 0x%08x, computed 0x%08x", wantCRC, gotCRC)
	}

	return Suffix{
		BcdDevice: binary.LittleEndian.Uint16(suffix[0:2]),
		IDProduct: binary.LittleEndian.Uint16(suffix[2:4]),
		IDVendor:  binary.LittleEndian.Uint16(suffix[4:6]),
		BcdDFU:    binary.LittleEndian.Uint16(suffix[6:8]),
		CRC:       wantCRC,
	}, nil
}

// encodeSuffix serializes s into its 16-byte wire form, computing the CRC
// over prefixAndPayload followed by the first 12 bytes of the suffix
// itself, per the dump policy in §4.8.
func encodeSuffix(s Suffix, prefixAndPayload []byte) []byte {
	buf := make([]byte, SuffixLength)
	binary.LittleEndian.PutUint16(buf[0:2], s.BcdDevice)
	binary.LittleEndian.PutUint16(buf[2:4], s.IDProduct)
	binary.LittleEndian.PutUint16(buf[4:6], s.IDVendor)
	binary.LittleEndian.PutUint16(buf[6:8], s.BcdDFU)
	buf[8], buf[9], buf[10] = 'U', 'F', 'D'
	buf[11] = SuffixLength

	crcInput := append(append([]byte(nil), prefixAndPayload...), buf[:12]...)
	crc := CRC32(crcInput)
	binary.LittleEndian.PutUint32(buf[12:16], crc)
	return buf
}
