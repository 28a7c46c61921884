// Package codec provides the small set of endian-aware byte helpers the
// manufacturer decoders share: big/little-endian signed and unsigned reads,
// the byte-pair swap Veteran uses for its distance fields, hex formatting for
// logging, and the two checksum algorithms the wire formats require.
package codec

import "fmt"

// BeU16 reads a big-endian uint16 starting at off.
func BeU16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

// BeI16 reads a big-endian int16 starting at off.
func BeI16(b []byte, off int) int16 {
	return int16(BeU16(b, off))
}

// BeU32 reads a big-endian uint32 starting at off.
func BeU32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

// BeI32 reads a big-endian int32 starting at off.
func BeI32(b []byte, off int) int32 {
	return int32(BeU32(b, off))
}

// LeU16 reads a little-endian uint16 starting at off.
func LeU16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

// LeI16 reads a little-endian int16 starting at off.
func LeI16(b []byte, off int) int16 {
	return int16(LeU16(b, off))
}

// LeU32 reads a little-endian uint32 starting at off.
func LeU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// LeI32 reads a little-endian int32 starting at off.
func LeI32(b []byte, off int) int32 {
	return int32(LeU32(b, off))
}

// SwapPairs returns a copy of b with each 4-byte group's two 16-bit halves
// swapped (b[0],b[1],b[2],b[3] -> b[2],b[3],b[0],b[1]). Veteran stores its
// 4-byte distance fields this way relative to natural big-endian order. Any
// trailing bytes that don't fill a full 4-byte group are copied unchanged.
func SwapPairs(b []byte) []byte {
	out := make([]byte, len(b))
	i := 0
	for ; i+3 < len(b); i += 4 {
		out[i], out[i+1] = b[i+2], b[i+3]
		out[i+2], out[i+3] = b[i], b[i+1]
	}
	for ; i < len(b); i++ {
		out[i] = b[i]
	}
	return out
}

// Hex formats b as a space-separated uppercase hex string, used in decoder
// logging and test fixtures.
func Hex(b []byte) string {
	s := make([]byte, 0, len(b)*3)
	for i, v := range b {
		if i > 0 {
			s = append(s, ' ')
		}
		s = append(s, []byte(fmt.Sprintf("%02X", v))...)
	}
	return string(s)
}

// CRC16 implements the sum-XOR-0xFFFF checksum shared by the Ninebot and
// Ninebot-Z wire formats: sum every byte of the plaintext body, then XOR the
// running sum with 0xFFFF and mask to 16 bits.
func CRC16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum ^ 0xFFFF
}

// crc32Table is the reflected IEEE 802.3 CRC-32 table (poly 0xEDB88320),
// used by Veteran's optional trailing CRC-32.
var crc32Table = func() [256]uint32 {
	var t [256]uint32
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC32 computes the IEEE reflected CRC-32 (initial/final XOR 0xFFFFFFFF)
// that Veteran uses once CRC mode is latched.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc32Table[byte(crc)^b] ^ (crc >> 8)
	}
	return crc ^ 0xFFFFFFFF
}

// RoundHalfAwayFromZero rounds a float64 to the nearest integer, rounding
// halves away from zero (never banker's rounding). Every decoder in this
// module relies on this exact rounding behavior to keep fixed-point fields
// reproducible.
func RoundHalfAwayFromZero(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}
