// Package ninebotz decodes the Ninebot-Z wire protocol: the same
// length-prefixed encrypted-body shape as ninebot, but with its own
// five-state connection handshake (INIT, WAIT_KEY, SERIAL, VERSION, READY;
// there are no PARAMS or BMS states) and a gamma key exchanged via a KEY_GENERATOR
// response instead of being fixed in advance.
package ninebotz

import (
	"sync"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

type connState int

// The five states below are the ones this decoder can actually drive.
// spec.md:198 names a fuller 14-state machine (…PARAMS1-3, BMS1_{SN,LIFE,
// CELLS}, BMS2_{SN,LIFE,CELLS}…) reached only when bms_reading_mode is
// enabled, but unlike Kingsong's dual-BMS slices (spec.md:156, concrete
// param byte 0xF1/0xF2 and pNum layout), neither spec.md nor SPEC_FULL.md
// gives the PARAMS/BMS leg a param byte or payload layout for Ninebot-Z, and
// there's no original_source reference to recover it from — so those nine
// states were cut rather than driven by invented wire bytes. BmsReadingMode
// is accepted but has no effect: VERSION always advances straight to READY.
const (
	stateInit connState = iota
	stateWaitKey
	stateSerial
	stateVersion
	stateReady
)

const keepAliveIntervalMillis = 25

const (
	paramKeyGenerator byte = 0x01
	paramSerial       byte = 0x10
	paramVersion      byte = 0x1A
	paramLiveData     byte = 0xB0
	// paramLiveData4 is the extended real-time report param byte some
	// firmware sends instead of paramLiveData (see parseLiveData4).
	paramLiveData4 byte = 0xB4
)

// Decoder implements wheel.Decoder for Ninebot-Z wheels.
type Decoder struct {
	mu sync.Mutex

	asm   *unpacker.NinebotZUnpacker
	gamma [16]byte

	state  connState
	serial string
}

// New returns a Decoder waiting for the gamma-key handshake.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewNinebotZUnpacker(), state: stateInit}
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
	d.state = stateInit
	d.serial = ""
}

// InitCommands implements wheel.Decoder.
func (d *Decoder) InitCommands() []wheel.Command {
	return []wheel.Command{requestFrame([16]byte{}, paramKeyGenerator)}
}

// KeepAliveCommand implements wheel.Decoder.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateInit, stateWaitKey:
		return requestFrame([16]byte{}, paramKeyGenerator), true
	case stateSerial:
		return requestFrame(d.gamma, paramSerial), true
	case stateVersion:
		return requestFrame(d.gamma, paramVersion), true
	default:
		return requestFrame(d.gamma, paramLiveData), true
	}
}

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return keepAliveIntervalMillis }

// BuildCommand implements wheel.Decoder.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

func requestFrame(gamma [16]byte, param byte) wheel.Command {
	body := []byte{0x20, 0x03, param}
	crc := codec.CRC16(body)
	plain := append([]byte{byte(len(body))}, body...)
	plain = append(plain, byte(crc), byte(crc>>8))

	enc := make([]byte, len(plain))
	enc[0] = plain[0]
	for j := 1; j < len(plain); j++ {
		enc[j] = plain[j] ^ gamma[(j-1)%16]
	}

	f := []byte{0x5A, 0xA5}
	f = append(f, enc...)
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
	state.WheelType = wheel.TypeNinebotZ
	if d.serial != "" {
		state.SerialNumber = d.serial
	}
	return wheel.DecodedData{NewState: state, HasNewData: true}, true
}

func (d *Decoder) decodeFrame(f []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.State, bool) {
	if len(f) < 9 {
		return prev, false
	}
	dataLen := int(f[2])
	enc := f[2 : 2+1+dataLen+6]

	plain := make([]byte, len(enc))
	plain[0] = enc[0]
	for j := 1; j < len(enc); j++ {
		plain[j] = enc[j] ^ d.gamma[(j-1)%16]
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
	case paramKeyGenerator:
		if len(payload) >= 16 {
			copy(d.gamma[:], payload[:16])
		}
		if d.state == stateInit || d.state == stateWaitKey {
			d.state = stateSerial
		}
		return state, false

	case paramSerial:
		d.serial = string(payload)
		if d.state == stateSerial {
			d.state = stateVersion
		}
		return state, false

	case paramVersion:
		state.Version = codec.Hex(payload)
		if d.state == stateVersion {
			d.state = stateReady
		}
		return state, false

	case paramLiveData4:
		return parseLiveData4(payload, state, cfg), true

	case paramLiveData:
		return parseLiveData(payload, state, cfg), true

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

	if cfg.NinebotVariant == wheel.NinebotS2 && len(p) > 29 {
		state.Speed = int32(codec.BeI16(p, 28))
	} else {
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

// parseLiveData4 mirrors parseLiveData but applies a ×100 multiplier to
// Temperature2, a ×10 discrepancy against parseLiveData's own ×10 — a
// preserved quirk (spec.md's Ninebot design note), not a bug to fix.
func parseLiveData4(p []byte, prev wheel.State, cfg wheel.DecoderConfig) wheel.State {
	state := parseLiveData(p, prev, cfg)
	if len(p) < 20 {
		return state
	}
	state.Temperature2 = int32(p[18]) * 100 // preserved: ×100 vs parseLiveData's ×10
	return state
}
