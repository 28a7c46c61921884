package autodetect

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

func TestLatchesGotwayFromHeader(t *testing.T) {
	d := New()
	frame := make([]byte, 24)
	frame[0], frame[1] = 0x55, 0xAA
	frame[18] = 0x00
	frame[19] = 0x18
	frame[20], frame[21], frame[22], frame[23] = 0x5A, 0x5A, 0x5A, 0x5A

	d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if d.latched != wheel.TypeGotway {
		t.Errorf("latched = %v, want TypeGotway", d.latched)
	}
}

func TestLatchesVeteranFromHeader(t *testing.T) {
	d := New()
	frame := make([]byte, 36)
	frame[0], frame[1], frame[2] = 0xDC, 0x5A, 0x5C

	d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if d.latched != wheel.TypeVeteran {
		t.Errorf("latched = %v, want TypeVeteran", d.latched)
	}
}

func TestResetClearsLatch(t *testing.T) {
	d := New()
	frame := make([]byte, 24)
	frame[0], frame[1] = 0x55, 0xAA
	d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	d.Reset()
	if d.latched != wheel.TypeUnknown {
		t.Errorf("latched = %v after Reset, want TypeUnknown", d.latched)
	}
}
