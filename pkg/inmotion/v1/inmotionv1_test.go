package v1

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

func escapedFrame(payload []byte) []byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	full := append(append([]byte{}, payload...), sum)

	stream := []byte{0xAA, 0xAA}
	for _, b := range full {
		if b == 0xAA || b == 0x55 || b == 0xA5 {
			stream = append(stream, 0xA5, b)
		} else {
			stream = append(stream, b)
		}
	}
	stream = append(stream, 0x55, 0x55)
	return stream
}

func canPayload(id uint32, data [8]byte) []byte {
	p := make([]byte, 16)
	p[0] = byte(id)
	p[1] = byte(id >> 8)
	p[2] = byte(id >> 16)
	p[3] = byte(id >> 24)
	copy(p[4:12], data[:])
	return p
}

func TestDecodeFastInfoFrame(t *testing.T) {
	d := New()
	d.model = "R-series"

	var data [8]byte
	data[0], data[1] = 0x10, 0x00 // rawSpeed LE = 16
	data[6] = 42                  // battery level

	frame := escapedFrame(canPayload(idFastInfo, data))
	out, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded frame")
	}
	if out.NewState.BatteryLevel != 42 {
		t.Errorf("BatteryLevel = %d, want 42", out.NewState.BatteryLevel)
	}
}

func TestBadChecksumDiscardsFrame(t *testing.T) {
	d := New()
	var data [8]byte
	frame := escapedFrame(canPayload(idFastInfo, data))
	// Flip a payload bit without updating the checksum byte.
	frame[3] ^= 0x01

	_, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if ok {
		t.Errorf("expected bad checksum to discard the frame")
	}
}

func TestModelFamilyMapping(t *testing.T) {
	if got := modelFamily("V1"); got != "V10" {
		t.Errorf("modelFamily(V1) = %q, want V10", got)
	}
	if got := modelFamily("ZZ"); got != "R-series" {
		t.Errorf("modelFamily(ZZ) = %q, want R-series", got)
	}
}
