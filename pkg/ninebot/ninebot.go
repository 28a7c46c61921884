// Package ninebot decodes the Ninebot/Segway wire protocol shared by the
// DEFAULT, S2, and MINI model variants: encrypted CAN-like frames, a
// 3-state connection machine (serial, version, ready), and a 3-part serial
// number assembly.
package ninebot

import (
	"sync"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

type connState int

const (
	stateWaitSerial connState = iota
	stateWaitVersion
	stateReady
)

const keepAliveIntervalMillis = 125

// paramLiveData4 is the extended real-time report param byte some Ninebot
// firmware sends instead of the base 0xB0 report (see parseLiveData4).
const paramLiveData4 byte = 0xB4

// Decoder implements wheel.Decoder for Ninebot-compatible wheels.
type Decoder struct {
	mu sync.Mutex

	asm   *unpacker.NinebotUnpacker
	gamma [16]byte

	state   connState
	serial  [3]string
	version string
}

// New returns a Decoder in the serial-acquisition connection state.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewNinebotUnpacker(), state: stateWaitSerial}
}

// IsReady implements wheel.Decoder.
func (d *Decoder) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateReady
}

// Reset implements wheel.Decoder.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asm.Reset()
	d.gamma = [16]byte{}
	d.state = stateWaitSerial
	d.serial = [3]string{}
	d.version = ""
}

// InitCommands implements wheel.Decoder.
func (d *Decoder) InitCommands() []wheel.Command { return nil }

// KeepAliveCommand implements wheel.Decoder: the request appropriate to the
// current connection-state-machine step.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case stateWaitSerial:
		return requestFrame(0x10), true
	case stateWaitVersion:
		return requestFrame(0x1A), true
	default:
		return requestFrame(0xB0), true
	}
}

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return keepAliveIntervalMillis }

// BuildCommand implements wheel.Decoder. Ninebot's documented outbound
// surface in this module's scope is limited to the keep-alive polling
// requests KeepAliveCommand issues.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

func requestFrame(param byte) wheel.Command {
	body := []byte{0x20, 0x03, param}
	crc := codec.CRC16(body)
	f := make([]byte, 0, 2+1+len(body)+2)
	f = append(f, 0x55, 0xAA)
	f = append(f, byte(len(body)))
	f = append(f, body...)
	f = append(f, byte(crc), byte(crc>>8))
	return wheel.RawCommand(f)
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := prev
	changed := false

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		frame := append([]byte(nil), d.asm.Frame()...)
		d.asm.Reset()

		next, ok := d.decodeFrame(frame, state, cfg)
		if !ok {
			continue
		}
		state = next
		changed = true
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.WheelType = wheel.TypeNinebot
	state.SerialNumber = d.serial[0] + d.serial[1] + d.serial[2]
	state.Version = d.version
	return wheel.DecodedData{NewState: state, HasNewData: true}, true
}

// decodeFrame decrypts the plaintext body with the current gamma key,
// verifies the CRC-16, and dispatches on the parameter byte.
func (d *Decoder) decodeFrame(f []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.State, bool) {
	if len(f) < 9 {
		return prev, false
	}
	dataLen := int(f[2])
	body := make([]byte, 1+dataLen+6)
	copy(body, f[2:2+len(body)])
	plain := make([]byte, len(body))
	plain[0] = body[0]
	for j := 1; j < len(body); j++ {
		plain[j] = body[j] ^ d.gamma[(j-1)%16]
	}

	crcEnd := len(plain) - 2
	if crcEnd < 1 {
		return prev, false
	}
	want := codec.CRC16(plain[1:crcEnd])
	got := uint16(plain[crcEnd]) | uint16(plain[crcEnd+1])<<8
	if got != want {
		return prev, false
	}

	param := plain[3]
	payload := plain[4:crcEnd]
	state := prev

	switch param {
	case 0x10, 0x13, 0x16:
		idx := map[byte]int{0x10: 0, 0x13: 1, 0x16: 2}[param]
		d.serial[idx] = string(payload)
		if d.serial[0] != "" && d.serial[1] != "" && d.serial[2] != "" && d.state == stateWaitSerial {
			d.state = stateWaitVersion
		}
		return state, false

	case 0x1A:
		d.version = codec.Hex(payload)
		if d.state == stateWaitVersion {
			d.state = stateReady
		}
		return state, false

	case 0xB0:
		return parseLiveData(payload, state, cfg), true

	case paramLiveData4:
		return parseLiveData4(payload, state, cfg), true

	default:
		return prev, false
	}
}

func parseLiveData(p []byte, prev wheel.State, cfg wheel.DecoderConfig) wheel.State {
	state := prev
	if len(p) < 20 {
		return state
	}
	state.Voltage = uint32(codec.LeU16(p, 0))
	state.Current = int32(codec.LeI16(p, 2))

	switch cfg.NinebotVariant {
	case wheel.NinebotS2:
		if len(p) > 29 {
			state.Speed = int32(codec.BeI16(p, 28))
		}
	default:
		state.Speed = int32(codec.BeI16(p, 10)) / 10
	}

	state.TotalDistance = int64(codec.LeU32(p, 12))
	state.Temperature = int32(p[16]) * 10 * 10
	state.BatteryLevel = int32(p[17])
	state.Temperature2 = int32(p[18]) * 10

	if state.Voltage > 0 {
		state.Power = int32(codec.RoundHalfAwayFromZero(float64(state.Current) / 100.0 * float64(state.Voltage)))
	}
	return state
}

// parseLiveData4 is the extended real-time report a subset of Ninebot
// firmware sends in place of the 0xB0 payload. It shares parseLiveData's
// layout but applies a ×100 multiplier to Temperature2, a ×10 discrepancy
// against parseLiveData's own ×10 that the spec calls out explicitly as a
// preserved quirk, not a bug to fix.
func parseLiveData4(p []byte, prev wheel.State, cfg wheel.DecoderConfig) wheel.State {
	state := parseLiveData(p, prev, cfg)
	if len(p) < 20 {
		return state
	}
	state.Temperature2 = int32(p[18]) * 100 // preserved: ×100 vs parseLiveData's ×10
	return state
}
