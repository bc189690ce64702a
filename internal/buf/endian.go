// Package buf contains helpers for endian-safe, bounds-tolerant decoding.
package buf

import "encoding/binary"

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U32LEAt reads a little-endian uint32 at offset off. The second return is
// false when the read would fall outside b.
func U32LEAt(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[off:]), true
}

// PutU32LEAt writes v little-endian at offset off. Returns false when the
// write would fall outside b.
func PutU32LEAt(b []byte, off int, v uint32) bool {
	if off < 0 || off+4 > len(b) {
		return false
	}
	binary.LittleEndian.PutUint32(b[off:], v)
	return true
}

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
