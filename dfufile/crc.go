// Package dfufile implements the DFU firmware file codec: the 16-byte
// suffix, the optional TI Stellaris and NXP LPC vendor prefixes, and the
// CRC-32 that ties them to the payload (§4.1, §4.8).
package dfufile

import "hash/crc32"

// CRC32 computes the DFU suffix checksum over b. The algorithm is the
// standard reflected CRC-32 (polynomial 0xEDB88320, initial value
// 0xFFFFFFFF) that hash/crc32's IEEE table already implements, except the
// DFU suffix format wants the raw accumulator with no final complement —
// crc32.ChecksumIEEE applies that complement, so it is undone here rather
// than hand-rolling a second table-driven implementation.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b) ^ 0xffffffff
}
