package ninebotz

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

func sumXorCRC(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum ^ 0xFFFF
}

func buildFrame(gamma [16]byte, body []byte) []byte {
	plain := append([]byte{byte(len(body) - 4)}, body...)
	crc := sumXorCRC(plain[1:])
	plain = append(plain, byte(crc), byte(crc>>8))

	enc := make([]byte, len(plain))
	enc[0] = plain[0]
	for j := 1; j < len(plain); j++ {
		enc[j] = plain[j] ^ gamma[(j-1)%16]
	}

	f := []byte{0x5A, 0xA5}
	f = append(f, enc...)
	return f
}

func TestKeyGeneratorReplacesGammaThenUnlocksSerial(t *testing.T) {
	d := New()

	var newKey [16]byte
	for i := range newKey {
		newKey[i] = byte(i + 1)
	}
	body := append([]byte{0x20, 0x03, paramKeyGenerator}, newKey[:]...)
	frame := buildFrame([16]byte{}, body)

	d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())

	if d.gamma != newKey {
		t.Fatalf("gamma not replaced by handshake response")
	}
	if d.state != stateSerial {
		t.Errorf("state = %v, want stateSerial", d.state)
	}
}

func TestLiveDataUsesCurrentGamma(t *testing.T) {
	d := New()
	var gamma [16]byte
	for i := range gamma {
		gamma[i] = byte(0xAA ^ i)
	}
	d.gamma = gamma
	d.state = stateReady

	payload := make([]byte, 20)
	payload[0], payload[1] = 0x88, 0x13 // voltage LE

	body := append([]byte{0x20, 0x03, paramLiveData}, payload...)
	frame := buildFrame(gamma, body)

	out, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded live-data frame")
	}
	want := uint32(0x1388)
	if out.NewState.Voltage != want {
		t.Errorf("Voltage = %#x, want %#x", out.NewState.Voltage, want)
	}
}

func TestLiveData4AppliesTemperature2Quirk(t *testing.T) {
	d := New()
	d.state = stateReady

	payload := make([]byte, 20)
	payload[18] = 5

	body := append([]byte{0x20, 0x03, paramLiveData4}, payload...)
	frame := buildFrame([16]byte{}, body)

	out, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded live-data4 frame")
	}
	if out.NewState.Temperature2 != 500 {
		t.Errorf("Temperature2 = %d, want 500 (preserved ×100 quirk)", out.NewState.Temperature2)
	}
}

func TestWrongGammaFailsCRC(t *testing.T) {
	d := New()
	var gamma [16]byte
	gamma[0] = 0x01
	d.gamma = [16]byte{} // decoder still has the all-zero initial gamma

	body := append([]byte{0x20, 0x03, paramLiveData}, make([]byte, 20)...)
	frame := buildFrame(gamma, body) // but the frame was encrypted with a different gamma

	_, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if ok {
		t.Errorf("expected gamma mismatch to fail the CRC check and be discarded")
	}
}
