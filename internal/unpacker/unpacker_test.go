package unpacker

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/codec"
)

func feedAll(t *testing.T, a Assembler, data []byte) bool {
	t.Helper()
	done := false
	for _, b := range data {
		if a.Feed(b) {
			done = true
		}
	}
	return done
}

func TestGotwayUnpackerHappyPath(t *testing.T) {
	frame := make([]byte, gotwayFrameSize)
	frame[0], frame[1] = 0x55, 0xAA
	for i := 20; i < 24; i++ {
		frame[i] = 0x5A
	}

	u := NewGotwayUnpacker()
	if !feedAll(t, u, frame) {
		t.Fatalf("expected a complete frame")
	}
	if len(u.Frame()) != gotwayFrameSize {
		t.Errorf("frame length = %d, want %d", len(u.Frame()), gotwayFrameSize)
	}
}

func TestGotwayUnpackerGarbagePattern(t *testing.T) {
	stream := append([]byte{}, garbage5...)
	for i := 0; i < 18; i++ {
		stream = append(stream, 0x00)
	}
	for i := 0; i < 4; i++ {
		stream = append(stream, 0x5A)
	}

	u := NewGotwayUnpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected recovery from garbage prefix and a complete frame")
	}
	if len(u.Frame()) != gotwayFrameSize {
		t.Errorf("frame length = %d, want %d", len(u.Frame()), gotwayFrameSize)
	}
}

func TestGotwayUnpackerBadFooterResets(t *testing.T) {
	frame := make([]byte, 21)
	frame[0], frame[1] = 0x55, 0xAA
	frame[20] = 0x00 // not 0x5A

	u := NewGotwayUnpacker()
	if feedAll(t, u, frame) {
		t.Fatalf("did not expect a complete frame")
	}
	if len(u.Frame()) != 0 {
		t.Errorf("expected buffer cleared after bad footer byte")
	}
}

func veteranFrameNoCRC() []byte {
	data := make([]byte, 32)
	frame := append([]byte{}, veteranHeader...)
	frame = append(frame, byte(len(data)))
	frame = append(frame, data...)
	// checkSanityAndFinish reads these as absolute offsets into the frame,
	// header and length byte included.
	frame[22] = 0x00
	frame[23] = 0x00
	frame[30] = 0x07
	return frame
}

func TestVeteranUnpackerNoCRCPath(t *testing.T) {
	u := NewVeteranUnpacker()
	if !feedAll(t, u, veteranFrameNoCRC()) {
		t.Fatalf("expected a complete frame")
	}
}

func TestVeteranUnpackerCRCLatches(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	crc := codec.CRC32(data)
	frame := append([]byte{}, veteranHeader...)
	frame = append(frame, byte(len(data)))
	frame = append(frame, data...)
	frame = append(frame, byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))

	u := NewVeteranUnpacker()
	if !feedAll(t, u, frame) {
		t.Fatalf("expected a complete CRC frame")
	}
	if !u.crcLatched {
		t.Fatalf("expected CRC mode latched")
	}

	// A subsequent short, CRC-less-looking frame must still demand a CRC
	// because the dialect is latched.
	short := append([]byte{}, veteranHeader...)
	shortData := make([]byte, 10)
	short = append(short, byte(len(shortData)))
	short = append(short, shortData...)
	shortCRC := codec.CRC32(shortData)
	short = append(short, byte(shortCRC), byte(shortCRC>>8), byte(shortCRC>>16), byte(shortCRC>>24))

	if !feedAll(t, u, short) {
		t.Fatalf("expected latched CRC mode to still complete a short frame with a trailing CRC")
	}
}

func TestKingsongUnpacker(t *testing.T) {
	frame := append([]byte{}, kingsongHeader...)
	for i := 0; i < 18; i++ {
		frame = append(frame, byte(i))
	}
	u := NewKingsongUnpacker()
	if !feedAll(t, u, frame) {
		t.Fatalf("expected a complete frame")
	}
	if len(u.Frame()) != kingsongFrameSize {
		t.Errorf("frame length = %d, want %d", len(u.Frame()), kingsongFrameSize)
	}
}

func TestInMotionV1UnpackerEscapingAndTerminator(t *testing.T) {
	payload := []byte{0x01, 0xAA, 0x02} // 0xAA must be escaped on the wire
	var sum byte
	for _, b := range payload {
		sum += b
	}

	stream := append([]byte{}, inmotionHeader...)
	for _, b := range payload {
		if b == 0xAA || b == 0x55 || b == 0xA5 {
			stream = append(stream, 0xA5, b)
		} else {
			stream = append(stream, b)
		}
	}
	stream = append(stream, sum)
	stream = append(stream, 0x55, 0x55)

	u := NewInMotionV1Unpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected a complete frame")
	}
	got := u.Frame()
	want := append(append([]byte{}, payload...), sum)
	if len(got) != len(want) {
		t.Fatalf("decoded length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decoded[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestInMotionV2UnpackerLengthCounted(t *testing.T) {
	// flags, length=2, command, data byte, checksum
	flags, length, command, data := byte(0x00), byte(2), byte(0x10), byte(0x42)
	checksum := flags ^ length ^ command ^ data
	decoded := []byte{flags, length, command, data, checksum}

	stream := append([]byte{}, inmotionHeader...)
	stream = append(stream, decoded...)

	u := NewInMotionV2Unpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected a complete frame")
	}
	got := u.Frame()
	if len(got) != len(decoded) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(decoded))
	}
}

func TestInMotionV2UnpackerEscapesAAAndA5Only(t *testing.T) {
	flags, length, command, data := byte(0xAA), byte(2), byte(0xA5), byte(0x55)
	checksum := flags ^ length ^ command ^ data
	decoded := []byte{flags, length, command, data, checksum}

	stream := append([]byte{}, inmotionHeader...)
	for _, b := range decoded {
		if b == 0xAA || b == 0xA5 {
			stream = append(stream, 0xA5, b)
		} else {
			stream = append(stream, b)
		}
	}

	u := NewInMotionV2Unpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected a complete frame")
	}
	got := u.Frame()
	if len(got) != len(decoded) {
		t.Fatalf("decoded length = %d, want %d (%v)", len(got), len(decoded), got)
	}
	for i := range decoded {
		if got[i] != decoded[i] {
			t.Errorf("decoded[%d] = %#x, want %#x", i, got[i], decoded[i])
		}
	}
}

func TestNinebotUnpackerLengthFraming(t *testing.T) {
	dataLen := 5
	stream := append([]byte{}, ninebotHeader...)
	stream = append(stream, byte(dataLen))
	for i := 0; i < dataLen+6; i++ {
		stream = append(stream, byte(i))
	}

	u := NewNinebotUnpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected a complete frame")
	}
	if len(u.Frame()) != dataLen+9 {
		t.Errorf("frame length = %d, want %d", len(u.Frame()), dataLen+9)
	}
}

func TestNinebotZUnpackerLengthFraming(t *testing.T) {
	dataLen := 8
	stream := append([]byte{}, ninebotZHeader...)
	stream = append(stream, byte(dataLen))
	for i := 0; i < dataLen+6; i++ {
		stream = append(stream, byte(i))
	}

	u := NewNinebotZUnpacker()
	if !feedAll(t, u, stream) {
		t.Fatalf("expected a complete frame")
	}
	if len(u.Frame()) != dataLen+9 {
		t.Errorf("frame length = %d, want %d", len(u.Frame()), dataLen+9)
	}
}

func TestResetClearsAllAssemblers(t *testing.T) {
	assemblers := []Assembler{
		NewGotwayUnpacker(),
		NewVeteranUnpacker(),
		NewKingsongUnpacker(),
		NewInMotionV1Unpacker(),
		NewInMotionV2Unpacker(),
		NewNinebotUnpacker(),
		NewNinebotZUnpacker(),
	}
	for _, a := range assemblers {
		a.Feed(0x55)
		a.Reset()
		if len(a.Frame()) != 0 {
			t.Errorf("%T: expected empty frame after Reset, got %v", a, a.Frame())
		}
	}
}
