package unpacker

import "bytes"

const gotwayFrameSize = 24

// garbage5 and garbage6 are the two "the real frame starts later" patterns
// the Gotway wire format is known to emit mid-stream: a wheel that starts
// transmitting a second frame before the assembler realizes the first one
// was bogus leaves one of these five/six-byte prefixes behind.
var (
	garbage5 = []byte{0x55, 0xAA, 0x5A, 0x55, 0xAA}
	garbage6 = []byte{0x55, 0xAA, 0x5A, 0x5A, 0x55, 0xAA}
)

// GotwayUnpacker assembles the fixed 24-byte Gotway frame:
// 55 AA | 16 data bytes | type | 0x18 | 5A 5A 5A 5A.
type GotwayUnpacker struct {
	state    State
	buf      []byte
	havePrev bool
	prev     byte
}

// NewGotwayUnpacker returns an Assembler ready to scan for a Gotway header.
func NewGotwayUnpacker() *GotwayUnpacker {
	return &GotwayUnpacker{state: Idle}
}

// Feed implements Assembler.
func (u *GotwayUnpacker) Feed(b byte) bool {
	switch u.state {
	case Idle, Started:
		if u.havePrev && u.prev == 0x55 && b == 0xAA {
			u.buf = append(u.buf[:0], 0x55, 0xAA)
			u.state = Collecting
			u.havePrev = false
			return false
		}
		u.prev = b
		u.havePrev = true
		return false

	case Collecting:
		u.buf = append(u.buf, b)
		n := len(u.buf)

		if n == 5 && bytes.Equal(u.buf, garbage5) {
			// The real header was the later "55 AA" — restart collection
			// from it, keeping just those two bytes.
			u.buf = append(u.buf[:0], u.buf[len(u.buf)-2:]...)
			return false
		}
		if n == 6 && bytes.Equal(u.buf, garbage6) {
			u.buf = append(u.buf[:0], u.buf[len(u.buf)-2:]...)
			return false
		}

		if n >= 21 {
			if b != 0x5A {
				u.Reset()
				return false
			}
			if n == gotwayFrameSize {
				u.state = Done
				return true
			}
		}
		return false

	default:
		return false
	}
}

// Frame implements Assembler.
func (u *GotwayUnpacker) Frame() []byte {
	return u.buf
}

// Reset implements Assembler.
func (u *GotwayUnpacker) Reset() {
	u.state = Idle
	u.buf = u.buf[:0]
	u.havePrev = false
}
