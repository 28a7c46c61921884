package ninebot

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

// buildFrame encrypts body (source, destination, parameter, data...) with
// the all-zero initial gamma (a no-op XOR) and appends the CRC-16.
func buildFrame(body []byte) []byte {
	plain := append([]byte{byte(len(body) - 4)}, body...)
	crc := crc16(plain[1:])
	plain = append(plain, byte(crc), byte(crc>>8))

	f := []byte{0x55, 0xAA}
	f = append(f, plain...)
	return f
}

func crc16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum ^ 0xFFFF
}

func TestDecodeLiveDataFrame(t *testing.T) {
	d := New()

	payload := make([]byte, 20)
	payload[0], payload[1] = 0x10, 0x27 // voltage LE = 0x2710

	body := append([]byte{0x20, 0x03, 0xB0}, payload...)
	frame := buildFrame(body)

	out, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded frame")
	}
	if out.NewState.Voltage != 0x2710 {
		t.Errorf("Voltage = %d, want %d", out.NewState.Voltage, 0x2710)
	}
}

func TestDecodeLiveData4FrameAppliesTemperature2Quirk(t *testing.T) {
	d := New()

	payload := make([]byte, 20)
	payload[18] = 5

	body := append([]byte{0x20, 0x03, paramLiveData4}, payload...)
	out, ok := d.Decode(buildFrame(body), wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded frame")
	}
	if out.NewState.Temperature2 != 500 {
		t.Errorf("Temperature2 = %d, want 500 (preserved ×100 quirk)", out.NewState.Temperature2)
	}
}

func TestDecodeLiveDataFrameTemperature2(t *testing.T) {
	d := New()

	payload := make([]byte, 20)
	payload[18] = 5

	body := append([]byte{0x20, 0x03, 0xB0}, payload...)
	out, ok := d.Decode(buildFrame(body), wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded frame")
	}
	if out.NewState.Temperature2 != 50 {
		t.Errorf("Temperature2 = %d, want 50", out.NewState.Temperature2)
	}
}

func TestSerialPartsAssembleConnectionState(t *testing.T) {
	d := New()
	for _, part := range []struct {
		param byte
		data  string
	}{
		{0x10, "AAA"},
		{0x13, "BBB"},
		{0x16, "CCC"},
	} {
		body := append([]byte{0x20, 0x03, part.param}, []byte(part.data)...)
		d.Decode(buildFrame(body), wheel.State{}, wheel.DefaultDecoderConfig())
	}
	if d.state != stateWaitVersion {
		t.Errorf("state = %v, want stateWaitVersion after all three serial parts", d.state)
	}
}

func TestBadCRCIsIgnored(t *testing.T) {
	d := New()
	body := append([]byte{0x20, 0x03, 0xB0}, make([]byte, 20)...)
	frame := buildFrame(body)
	frame[len(frame)-1] ^= 0xFF // corrupt CRC

	_, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if ok {
		t.Errorf("expected bad CRC frame to be silently discarded")
	}
}
